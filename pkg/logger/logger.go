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

// Package logger builds the process zap logger, optionally rotating to a
// file through lumberjack.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding, and destination.
type Config struct {
	Level        string `json:"level"`  // debug, info, warn, error
	Format       string `json:"format"` // json or console
	File         string `json:"file"`
	MaxSizeMB    int    `json:"max_size_mb"`
	MaxBackups   int    `json:"max_backups"`
	MaxAgeDays   int    `json:"max_age_days"`
	Compress     bool   `json:"compress"`
	LogToConsole bool   `json:"log_to_console"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		MaxSizeMB:  5,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// ParseLevel maps a level name to zap; unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoder(format string) zapcore.Encoder {
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

		return zapcore.NewConsoleEncoder(cfg)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewJSONEncoder(cfg)
}

// New builds a logger tagged with service. Without a file the logger
// writes to stdout; with one it writes to the rotating file and, when
// LogToConsole is set, to stdout as well.
func New(cfg Config, service string) *zap.Logger {
	return build(cfg, service, os.Stdout)
}

func build(cfg Config, service string, console io.Writer) *zap.Logger {
	var sinks []zapcore.WriteSyncer

	if cfg.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	if cfg.File == "" || cfg.LogToConsole {
		sinks = append(sinks, zapcore.AddSync(console))
	}

	core := zapcore.NewCore(encoder(cfg.Format), zapcore.NewMultiWriteSyncer(sinks...), ParseLevel(cfg.Level))
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	if service != "" {
		log = log.With(zap.String("service", service))
	}

	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.With(zap.String("hostname", host))
	}

	return log
}
