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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"github.com/mfreeman451/vitalmon/pkg/core"
	"github.com/mfreeman451/vitalmon/pkg/diag"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
	"github.com/mfreeman451/vitalmon/pkg/logger"
)

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging, "vitalmon")
	defer func() { _ = log.Sync() }()

	hs := health.NewServer()

	c, err := core.New(cfg, log, core.WithHealth(hs))
	if err != nil {
		log.Error("failed to build monitor core", zap.Error(err))
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), lifecycle.ShutdownTimeout)
		defer cancel()

		_ = c.Stop(stopCtx)
	}()

	if cfg.DiagAddr != "" {
		d, err := startDiag(cfg.DiagAddr, cfg.DiagAllowOrigin, c, log)
		if err != nil {
			return err
		}

		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), lifecycle.ShutdownTimeout)
			defer cancel()

			if err := d.Stop(stopCtx); err != nil {
				log.Warn("diagnostics shutdown", zap.Error(err))
			}
		}()
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: "vitalmon",
		Process:     c,
		Logger:      log,
		HealthAddr:  cfg.HealthAddr,
		Health:      hs,
	})
}

// startDiag serves the core's status snapshot and metrics. Handlers read
// core state through Do so they never touch it off the owner thread.
func startDiag(addr, origin string, c *core.Core, log *zap.Logger) (*diag.Server, error) {
	d := diag.New(log, diag.WithAllowedOrigin(origin))

	d.Handle("/status", func(ctx context.Context) (any, error) {
		var st core.Status
		err := c.Do(ctx, func() { st = c.Status() })

		return st, err
	})

	d.Handle("/technical", func(ctx context.Context) (any, error) {
		var t core.Technical
		err := c.Do(ctx, func() { t = c.Technical() })

		return t, err
	})

	d.HandleMetrics(c.Metrics().Handler())

	if err := d.Listen(addr); err != nil {
		return nil, err
	}

	go func() {
		if err := d.Serve(); err != nil {
			log.Error("diagnostics server failed", zap.Error(err))
		}
	}()

	return d, nil
}
