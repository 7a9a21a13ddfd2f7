// Package config resolves runtime configuration from an optional .env file,
// MEMWATCH_* environment variables, and defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	merr "memwatch/internal/errors"
)

// Config holds the daemon's runtime settings.
type Config struct {
	MemInfoPath        string
	ProcRoot           string
	MemInfoBufferBytes int

	PollInterval   time.Duration
	ReportInterval time.Duration

	SelfOOMScoreAdj    int
	SetSelfOOMScoreAdj bool

	Debug bool
}

// Load resolves configuration from the environment. A .env file in the
// working directory is honored when present; real environment variables win
// over it (godotenv does not override existing keys).
func Load(logger *slog.Logger) *Config {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Debug("no .env file found, using environment variables only")
	}

	return &Config{
		MemInfoPath:        getEnv("MEMWATCH_MEMINFO_PATH", DefaultMemInfoPath),
		ProcRoot:           getEnv("MEMWATCH_PROC_ROOT", DefaultProcRoot),
		MemInfoBufferBytes: getEnvInt("MEMWATCH_MEMINFO_BUFFER_BYTES", DefaultMemInfoBufferBytes),
		PollInterval:       getEnvDuration("MEMWATCH_POLL_INTERVAL", DefaultPollInterval),
		ReportInterval:     getEnvDuration("MEMWATCH_REPORT_INTERVAL", DefaultReportInterval),
		SelfOOMScoreAdj:    getEnvInt("MEMWATCH_SELF_OOM_SCORE_ADJ", DefaultSelfOOMScoreAdj),
		SetSelfOOMScoreAdj: getEnvBool("MEMWATCH_SET_SELF_OOM_SCORE_ADJ", true),
		Debug:              getEnvBool("MEMWATCH_DEBUG", false),
	}
}

// Validate checks the configuration for values the daemon cannot run with,
// aggregating every problem into one error.
func (c *Config) Validate() error {
	var errs merr.MultiError

	if c.MemInfoPath == "" {
		errs.Add(fmt.Errorf("meminfo path must not be empty"))
	}
	if c.ProcRoot == "" {
		errs.Add(fmt.Errorf("proc root must not be empty"))
	}
	if c.MemInfoBufferBytes < MinMemInfoBufferBytes {
		errs.Add(fmt.Errorf("meminfo buffer of %d bytes is below the %d byte minimum",
			c.MemInfoBufferBytes, MinMemInfoBufferBytes))
	}
	if c.PollInterval <= 0 {
		errs.Add(fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.ReportInterval < c.PollInterval {
		errs.Add(fmt.Errorf("report interval %s must not be shorter than poll interval %s",
			c.ReportInterval, c.PollInterval))
	}
	if c.SelfOOMScoreAdj < -1000 || c.SelfOOMScoreAdj > 1000 {
		errs.Add(fmt.Errorf("self oom_score_adj %d outside [-1000, 1000]", c.SelfOOMScoreAdj))
	}

	return errs.ErrorOrNil()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
