package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validPolicies = map[string]bool{
	PolicyDrop:      true,
	PolicyStall:     true,
	PolicyOverwrite: true,
}

// ValidationResult separates problems that must stop startup from values
// that were clamped to a safe range.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config. Out-of-range numeric values are clamped
// and reported as warnings; anything the viewer cannot run with is fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if strings.TrimSpace(c.Device) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("device must not be empty"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Fatals = append(r.Fatals, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Fatals = append(r.Fatals, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	policy := strings.ToLower(c.Pipeline.PublishPolicy)
	if policy == "" {
		c.Pipeline.PublishPolicy = PolicyDrop
	} else if !validPolicies[policy] {
		r.Fatals = append(r.Fatals, fmt.Errorf("pipeline.publish_policy %q is not valid (use drop, stall, overwrite)", c.Pipeline.PublishPolicy))
	} else {
		c.Pipeline.PublishPolicy = policy
	}

	// Fewer than two capture buffers cannot stream without tearing.
	if c.Capture.BufferCount < 2 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.buffer_count %d is below minimum 2, clamping", c.Capture.BufferCount))
		c.Capture.BufferCount = 2
	} else if c.Capture.BufferCount > 32 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.buffer_count %d exceeds maximum 32, clamping", c.Capture.BufferCount))
		c.Capture.BufferCount = 32
	}

	if c.Capture.DiscardFrames < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.discard_frames %d is below minimum 0, clamping", c.Capture.DiscardFrames))
		c.Capture.DiscardFrames = 0
	} else if c.Capture.DiscardFrames > 30 {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.discard_frames %d exceeds maximum 30, clamping", c.Capture.DiscardFrames))
		c.Capture.DiscardFrames = 30
	}

	if c.Capture.ReadTimeout < 100*time.Millisecond {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.read_timeout %s is below minimum 100ms, clamping", c.Capture.ReadTimeout))
		c.Capture.ReadTimeout = 100 * time.Millisecond
	} else if c.Capture.ReadTimeout > 30*time.Second {
		r.Warnings = append(r.Warnings, fmt.Errorf("capture.read_timeout %s exceeds maximum 30s, clamping", c.Capture.ReadTimeout))
		c.Capture.ReadTimeout = 30 * time.Second
	}

	if c.Stats.Interval < time.Second {
		r.Warnings = append(r.Warnings, fmt.Errorf("stats.interval %s is below minimum 1s, clamping", c.Stats.Interval))
		c.Stats.Interval = time.Second
	}

	if c.Display.Title == "" {
		c.Display.Title = "wl-camera"
	}
	if c.Display.AppID == "" {
		c.Display.AppID = "wl-camera"
	}

	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return r
}
