// Package pipeconfig loads the env-var configuration surface for a pipeline
// binary (cmd/upiped): hand-rolled getEnv/getEnvInt/getEnvDuration parsing
// rather than a struct-tag config library, covering the source URI,
// worker-bin queue depth, metrics/health listen addresses, and the
// optional BISS-CA key path.
package pipeconfig

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting a pipeline binary reads from the environment.
type Config struct {
	// SourceURI is the http(s) URI of the TS (or HLS/direct) stream to
	// demux. Required.
	SourceURI string

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the metrics server.
	MetricsAddr string

	// HealthAddr is the listen address for the /healthz liveness endpoint.
	// Empty disables the health server.
	HealthAddr string

	// WorkerQueueDepth bounds each direction of a workerbin's queues
	// (spec.md §5 max_urefs).
	WorkerQueueDepth int

	// BissCAKeyPath optionally names a PEM-encoded RSA private key for
	// BISS-CA ECM/EMM key recovery (spec.md §4.7.4). Nothing reads the
	// key: when the path is set, cmd/upiped only logs that no key-recovery
	// backend is wired, and the demux runs its CA plumbing with a null
	// decoder either way (spec.md §9 open question 3).
	BissCAKeyPath string

	// HTTPTimeout is the HTTP source pipe's read watchdog: the longest gap
	// between reads before the pipe throws Stalled (spec.md §4.8).
	HTTPTimeout time.Duration

	// RateLogBurst and RateLogEvery configure internal/ratelog's
	// WARN-suppression policy (spec.md §7).
	RateLogBurst int
	RateLogEvery time.Duration

	// DumpPath, when non-empty, rewrites a DOT graph of the pipeline to
	// this path each time the demux's program set changes (spec.md §6 dump
	// format).
	DumpPath string

	// FUSEMount optionally mounts the live introspection filesystem
	// (SPEC_FULL.md §4.10) at this path.
	FUSEMount string
}

// Load reads Config from the process environment, applying the defaults a
// production binary in this corpus would: generous but finite timeouts,
// a metrics/health surface on by default, descrambling off by default.
func Load() *Config {
	return &Config{
		SourceURI:        os.Getenv("UPIPE_SOURCE_URI"),
		MetricsAddr:      getEnv("UPIPE_METRICS_ADDR", ":9102"),
		HealthAddr:       getEnv("UPIPE_HEALTH_ADDR", ":9103"),
		WorkerQueueDepth: getEnvInt("UPIPE_WORKER_QUEUE_DEPTH", 256),
		BissCAKeyPath:    os.Getenv("UPIPE_BISSCA_KEY_PATH"),
		HTTPTimeout:      getEnvDuration("UPIPE_HTTP_TIMEOUT", 15*time.Second),
		RateLogBurst:     getEnvInt("UPIPE_RATELOG_BURST", 5),
		RateLogEvery:     getEnvDuration("UPIPE_RATELOG_EVERY", time.Second),
		DumpPath:         os.Getenv("UPIPE_DUMP_PATH"),
		FUSEMount:        os.Getenv("UPIPE_FUSE_MOUNT"),
	}
}

// Validate reports the first reason Config is unusable, or nil.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceURI) == "" {
		return errMissingSourceURI
	}
	return nil
}

var errMissingSourceURI = &configError{"UPIPE_SOURCE_URI is required"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
