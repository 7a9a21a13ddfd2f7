package config

import "time"

const (
	// DefaultMemInfoPath and DefaultProcRoot point at the live kernel
	// pseudo-filesystem; tests override them with fixture trees.
	DefaultMemInfoPath = "/proc/meminfo"
	DefaultProcRoot    = "/proc"

	// DefaultMemInfoBufferBytes caps a single meminfo read. The file weighs
	// in around 1.4 KiB on recent kernels, so 8 KiB leaves ample headroom.
	DefaultMemInfoBufferBytes = 8192

	// MinMemInfoBufferBytes rejects caps too small to hold the mandatory
	// fields.
	MinMemInfoBufferBytes = 512

	// Default intervals for the polling daemon.
	DefaultPollInterval   = 1 * time.Second
	DefaultReportInterval = 10 * time.Second

	// DefaultSelfOOMScoreAdj keeps the watchdog near the back of the OOM
	// killer's queue.
	DefaultSelfOOMScoreAdj = -100
)
