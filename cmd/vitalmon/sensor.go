/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/generator"
	"github.com/mfreeman451/vitalmon/pkg/hal/sim"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/logger"
)

func sensorCmd(flags *rootFlags) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "sensor",
		Short: "Run the simulated sensor service on the IPC endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSensor(cmd.Context(), flags, seed)
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed, 0 picks one from the clock")

	return cmd
}

func runSensor(ctx context.Context, flags *rootFlags, seed uint64) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging, "vitalmon-sensor")
	defer func() { _ = log.Sync() }()

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	vitalsPub, err := ipc.Listen(cfg.IPC.Vitals, ipc.TopicVitals, ipc.WithPublisherLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = vitalsPub.Close() }()

	wavesPub, err := ipc.Listen(cfg.IPC.Waveforms, ipc.TopicWaveforms, ipc.WithPublisherLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = wavesPub.Close() }()

	s, err := sim.NewSensor(cfg.Slots, vitalsPub, wavesPub, log, generator.WithSeed(seed))
	if s == nil {
		return err
	}
	defer s.Close()

	if err != nil {
		log.Warn("some simulated drivers failed to initialise", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pollControl(ctx, cfg.IPC.Control, s, log)

	log.Info("simulated sensor running",
		zap.Int("slots", cfg.Slots),
		zap.String("vitals", cfg.IPC.Vitals),
		zap.String("waveforms", cfg.IPC.Waveforms))

	return s.Run(ctx, cfg.VitalsInterval.Std(), cfg.WaveformInterval.Std())
}

// pollControl feeds NIBP_START requests to the sensor, redialling the
// control endpoint until ctx ends.
func pollControl(ctx context.Context, endpoint string, s *sim.Sensor, log *zap.Logger) {
	const retry = 3 * time.Second

	for ctx.Err() == nil {
		sub, err := ipc.Dial(endpoint, ipc.TopicControl, ipc.WithSubscriberLogger(log))
		if err != nil {
			log.Debug("control endpoint unavailable", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
				continue
			}
		}

		sub.SetHandler(s.HandleControl)

		for ctx.Err() == nil {
			if _, err := sub.Poll(100 * time.Millisecond); err != nil && !errors.Is(err, ipc.ErrTimeout) {
				log.Warn("control receive failed", zap.Error(err))
				break
			}
		}

		_ = sub.Close()
	}
}
