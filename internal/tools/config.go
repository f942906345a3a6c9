package tools

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultOverflowThreshold is the size, in characters, above which a
	// readFile result is summarized for display and cached in full.
	DefaultOverflowThreshold = 500

	// DefaultShellTimeout applies when executeShell is called without a timeout.
	DefaultShellTimeout = 30 * time.Second

	// MaxShellTimeout caps any timeout requested by the model.
	MaxShellTimeout = 300 * time.Second
)

// Options configures an Executor.
type Options struct {
	OverflowThreshold int
	ShellTimeout      time.Duration
	Limits            OutputLimits
	Logger            *zap.Logger
}

// OutputLimits defines limits for tool output.
type OutputLimits struct {
	MaxBytes int64 // Max bytes per shell stream (default 50KB)
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxBytes: 50 * 1024, // 50KB
	}
}

func (o Options) withDefaults() Options {
	if o.OverflowThreshold <= 0 {
		o.OverflowThreshold = DefaultOverflowThreshold
	}
	if o.ShellTimeout <= 0 {
		o.ShellTimeout = DefaultShellTimeout
	}
	if o.ShellTimeout > MaxShellTimeout {
		o.ShellTimeout = MaxShellTimeout
	}
	if o.Limits.MaxBytes <= 0 {
		o.Limits = DefaultOutputLimits()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
