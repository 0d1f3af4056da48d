package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var knownSinks = map[string]bool{
	SinkLocal: true,
	SinkS3:    true,
	SinkGCS:   true,
	SinkAzure: true,
	SinkB2:    true,
}

// ValidationResult separates problems that make the config unusable from
// those that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config, clamping out-of-range values to safe
// defaults. Clamped values are warnings; missing sink settings are fatal
// only when capture is enabled.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	warn := func(format string, args ...any) { r.Warnings = append(r.Warnings, fmt.Errorf(format, args...)) }
	fatal := func(format string, args ...any) { r.Fatals = append(r.Fatals, fmt.Errorf(format, args...)) }

	if c.UID < 0 {
		fatal("uid %d is negative", c.UID)
	} else if c.UID == 0 {
		warn("uid 0 targets root's own user and gui domains")
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json)", c.LogFormat)
	}

	// 0 leaves launchctl and dscl calls unbounded.
	if c.CommandTimeoutSeconds < 0 {
		warn("command_timeout_seconds %d is negative, disabling the timeout", c.CommandTimeoutSeconds)
		c.CommandTimeoutSeconds = 0
	} else if c.CommandTimeoutSeconds > 600 {
		warn("command_timeout_seconds %d exceeds maximum 600, clamping", c.CommandTimeoutSeconds)
		c.CommandTimeoutSeconds = 600
	}

	if c.VerifyTimeoutSeconds < 1 {
		warn("verify_timeout_seconds %d is below minimum 1, clamping", c.VerifyTimeoutSeconds)
		c.VerifyTimeoutSeconds = 1
	} else if c.VerifyTimeoutSeconds > 120 {
		warn("verify_timeout_seconds %d exceeds maximum 120, clamping", c.VerifyTimeoutSeconds)
		c.VerifyTimeoutSeconds = 120
	}

	if c.Audit.MaxSizeMB < 1 {
		warn("audit.max_size_mb %d is below minimum 1, clamping", c.Audit.MaxSizeMB)
		c.Audit.MaxSizeMB = 1
	} else if c.Audit.MaxSizeMB > 1024 {
		warn("audit.max_size_mb %d exceeds maximum 1024, clamping", c.Audit.MaxSizeMB)
		c.Audit.MaxSizeMB = 1024
	}
	if c.Audit.MaxBackups < 0 {
		warn("audit.max_backups %d is negative, clamping", c.Audit.MaxBackups)
		c.Audit.MaxBackups = 0
	}

	for i, p := range c.ExtraPatterns {
		if strings.TrimSpace(p) == "" {
			warn("extra_patterns[%d] is empty and will be ignored", i)
		}
	}

	c.Capture.Sink = strings.ToLower(strings.TrimSpace(c.Capture.Sink))
	if c.Capture.Sink == "" {
		c.Capture.Sink = SinkLocal
	} else if !knownSinks[c.Capture.Sink] {
		warn("capture.sink %q is not known, falling back to %s", c.Capture.Sink, SinkLocal)
		c.Capture.Sink = SinkLocal
	}
	if c.Capture.Dir == "" {
		c.Capture.Dir = "logs"
	}

	if c.Capture.Enabled {
		switch c.Capture.Sink {
		case SinkS3:
			if c.Capture.S3.Bucket == "" || c.Capture.S3.Region == "" {
				fatal("capture.s3.bucket and capture.s3.region are required for the s3 sink")
			}
		case SinkGCS:
			if c.Capture.GCS.Bucket == "" {
				fatal("capture.gcs.bucket is required for the gcs sink")
			}
		case SinkAzure:
			if c.Capture.Azure.ConnectionString == "" || c.Capture.Azure.Container == "" {
				fatal("capture.azure.connection_string and capture.azure.container are required for the azure sink")
			}
		case SinkB2:
			if c.Capture.B2.AccountID == "" || c.Capture.B2.ApplicationKey == "" || c.Capture.B2.Bucket == "" {
				fatal("capture.b2.account_id, capture.b2.application_key and capture.b2.bucket are required for the b2 sink")
			}
		}
	}

	return r
}

// Validate runs ValidateTiered, logs every problem as a warning and
// returns them all.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}
