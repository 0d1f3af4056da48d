package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredNegativeUIDIsFatal(t *testing.T) {
	cfg := Default()
	cfg.UID = -1
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("negative uid should be fatal")
	}
}

func TestValidateTieredRootUIDIsKept(t *testing.T) {
	cfg := Default()
	cfg.UID = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("uid 0 should be a warning: %v", result.Fatals)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	if cfg.UID != 0 {
		t.Fatalf("UID = %d, want 0 kept", cfg.UID)
	}
}

func TestValidateTieredZeroCommandTimeoutIsUnbounded(t *testing.T) {
	cfg := Default()
	if cfg.CommandTimeoutSeconds != 0 {
		t.Fatalf("default CommandTimeoutSeconds = %d, want 0", cfg.CommandTimeoutSeconds)
	}
	result := cfg.ValidateTiered()
	if len(result.Warnings) != 0 || result.HasFatals() {
		t.Fatalf("zero timeout should be accepted silently: %+v", result)
	}
	if cfg.CommandTimeoutSeconds != 0 {
		t.Fatalf("CommandTimeoutSeconds = %d, want 0", cfg.CommandTimeoutSeconds)
	}
}

func TestValidateTieredTimeoutClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.CommandTimeoutSeconds = -5
	cfg.VerifyTimeoutSeconds = 9999
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped timeouts should be warnings, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
	if cfg.CommandTimeoutSeconds != 0 {
		t.Fatalf("CommandTimeoutSeconds = %d, want 0 (disabled)", cfg.CommandTimeoutSeconds)
	}
	if cfg.VerifyTimeoutSeconds != 120 {
		t.Fatalf("VerifyTimeoutSeconds = %d, want 120 (clamped)", cfg.VerifyTimeoutSeconds)
	}
}

func TestValidateTieredUnknownSinkFallsBackToLocal(t *testing.T) {
	cfg := Default()
	cfg.Capture.Sink = "Dropbox"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown sink should not be fatal")
	}
	if cfg.Capture.Sink != SinkLocal {
		t.Fatalf("Sink = %q, want local", cfg.Capture.Sink)
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "dropbox") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected warning naming the sink, got %v", result.Warnings)
	}
}

func TestValidateTieredSinkSettingsOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Capture.Sink = SinkS3
	if r := cfg.ValidateTiered(); r.HasFatals() {
		t.Fatalf("disabled capture should not require a bucket: %v", r.Fatals)
	}

	cfg.Capture.Enabled = true
	if r := cfg.ValidateTiered(); !r.HasFatals() {
		t.Fatal("enabled s3 capture without bucket should be fatal")
	}

	cfg.Capture.S3.Bucket = "adm-captures"
	cfg.Capture.S3.Region = "us-east-1"
	if r := cfg.ValidateTiered(); r.HasFatals() {
		t.Fatalf("s3 with bucket should pass: %v", r.Fatals)
	}
}

func TestValidateTieredCloudSinksRequireSettings(t *testing.T) {
	for _, sink := range []string{SinkGCS, SinkAzure, SinkB2} {
		cfg := Default()
		cfg.Capture.Enabled = true
		cfg.Capture.Sink = sink
		if r := cfg.ValidateTiered(); !r.HasFatals() {
			t.Errorf("%s sink without settings should be fatal", sink)
		}
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestValidateTieredEmptyPatternIsWarning(t *testing.T) {
	cfg := Default()
	cfg.ExtraPatterns = []string{"com.example.updater", "  "}
	result := cfg.ValidateTiered()
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0].Error(), "extra_patterns[1]") {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.UID = -5          // fatal
	cfg.LogFormat = "xml" // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestDefaultConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config has errors: %v", errs)
	}
}

func TestValidateTieredAuditClamping(t *testing.T) {
	cfg := Default()
	cfg.Audit.MaxSizeMB = 0
	cfg.Audit.MaxBackups = -1
	result := cfg.ValidateTiered()
	if len(result.Warnings) != 2 || result.HasFatals() {
		t.Fatalf("result = %+v", result)
	}
	if cfg.Audit.MaxSizeMB != 1 || cfg.Audit.MaxBackups != 0 {
		t.Fatalf("audit = %+v", cfg.Audit)
	}
}
