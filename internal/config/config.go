package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// DefaultUID is the uid of the first interactive account created on a Mac.
const DefaultUID = 501

// Capture sinks.
const (
	SinkLocal = "local"
	SinkS3    = "s3"
	SinkGCS   = "gcs"
	SinkAzure = "azure"
	SinkB2    = "b2"
)

type Config struct {
	UID       int    `mapstructure:"uid"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	BroadMatch        bool     `mapstructure:"broad_match"`
	IncludeNonNeeded  bool     `mapstructure:"include_non_needed"`
	IncludeSystemUIDs bool     `mapstructure:"include_system_uids"`
	GUI               bool     `mapstructure:"gui"`
	ExtraPatterns     []string `mapstructure:"extra_patterns"`

	LaunchctlPath         string `mapstructure:"launchctl_path"`
	SudoPath              string `mapstructure:"sudo_path"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds"`
	VerifyTimeoutSeconds  int    `mapstructure:"verify_timeout_seconds"`

	Capture CaptureConfig `mapstructure:"capture"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// AuditConfig controls the journal of launchd changes.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// JournalPath resolves the journal location; empty Path selects
// audit.jsonl next to the user config file.
func (a AuditConfig) JournalPath() string {
	if a.Path != "" {
		return a.Path
	}
	return filepath.Join(userConfigDir(), "audit.jsonl")
}

// CaptureConfig selects where launchd log snapshots are written.
type CaptureConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	LaunchdLog string `mapstructure:"launchd_log"`
	Compress   bool   `mapstructure:"compress"`
	Sink       string `mapstructure:"sink"`

	S3    S3Sink    `mapstructure:"s3"`
	GCS   GCSSink   `mapstructure:"gcs"`
	Azure AzureSink `mapstructure:"azure"`
	B2    B2Sink    `mapstructure:"b2"`
}

type S3Sink struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

type GCSSink struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureSink struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

type B2Sink struct {
	AccountID      string `mapstructure:"account_id"`
	ApplicationKey string `mapstructure:"application_key"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
}

func Default() *Config {
	return &Config{
		UID:                   DefaultUID,
		LogLevel:              "warn",
		LogFormat:             "text",
		BroadMatch:            true,
		LaunchctlPath:         "/bin/launchctl",
		SudoPath:              "/usr/bin/sudo",
		CommandTimeoutSeconds: 0,
		VerifyTimeoutSeconds:  5,
		Capture: CaptureConfig{
			Dir:        "logs",
			LaunchdLog: "/private/var/log/com.apple.xpc.launchd/launchd.log",
			Sink:       SinkLocal,
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads adm.yaml from cfgFile or the standard search path, then
// applies ADM_* environment overrides. A missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := newViper(cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("adm")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newViper builds a viper instance with every key registered so that
// AutomaticEnv can resolve ADM_CAPTURE_SINK style overrides for keys
// absent from the file.
func newViper(defaults *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ADM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range settings(defaults) {
		v.SetDefault(key, value)
	}
	return v
}

func settings(cfg *Config) map[string]any {
	return map[string]any{
		"uid":                     cfg.UID,
		"log_level":               cfg.LogLevel,
		"log_format":              cfg.LogFormat,
		"log_file":                cfg.LogFile,
		"broad_match":             cfg.BroadMatch,
		"include_non_needed":      cfg.IncludeNonNeeded,
		"include_system_uids":     cfg.IncludeSystemUIDs,
		"gui":                     cfg.GUI,
		"extra_patterns":          cfg.ExtraPatterns,
		"launchctl_path":          cfg.LaunchctlPath,
		"sudo_path":               cfg.SudoPath,
		"command_timeout_seconds": cfg.CommandTimeoutSeconds,
		"verify_timeout_seconds":  cfg.VerifyTimeoutSeconds,

		"capture.enabled":     cfg.Capture.Enabled,
		"capture.dir":         cfg.Capture.Dir,
		"capture.launchd_log": cfg.Capture.LaunchdLog,
		"capture.compress":    cfg.Capture.Compress,
		"capture.sink":        cfg.Capture.Sink,

		"capture.s3.bucket":            cfg.Capture.S3.Bucket,
		"capture.s3.region":            cfg.Capture.S3.Region,
		"capture.s3.endpoint":          cfg.Capture.S3.Endpoint,
		"capture.s3.prefix":            cfg.Capture.S3.Prefix,
		"capture.s3.access_key_id":     cfg.Capture.S3.AccessKeyID,
		"capture.s3.secret_access_key": cfg.Capture.S3.SecretAccessKey,
		"capture.s3.session_token":     cfg.Capture.S3.SessionToken,

		"capture.gcs.bucket":           cfg.Capture.GCS.Bucket,
		"capture.gcs.prefix":           cfg.Capture.GCS.Prefix,
		"capture.gcs.credentials_file": cfg.Capture.GCS.CredentialsFile,

		"capture.azure.connection_string": cfg.Capture.Azure.ConnectionString,
		"capture.azure.container":         cfg.Capture.Azure.Container,
		"capture.azure.prefix":            cfg.Capture.Azure.Prefix,

		"capture.b2.account_id":      cfg.Capture.B2.AccountID,
		"capture.b2.application_key": cfg.Capture.B2.ApplicationKey,
		"capture.b2.bucket":          cfg.Capture.B2.Bucket,
		"capture.b2.prefix":          cfg.Capture.B2.Prefix,

		"audit.enabled":     cfg.Audit.Enabled,
		"audit.path":        cfg.Audit.Path,
		"audit.max_size_mb": cfg.Audit.MaxSizeMB,
		"audit.max_backups": cfg.Audit.MaxBackups,
	}
}

func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(userConfigDir(), "adm.yaml")
		if err := os.MkdirAll(userConfigDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Cloud sink credentials may be stored inline.
	return os.Chmod(cfgPath, 0600)
}

func searchPaths() []string {
	paths := []string{userConfigDir()}
	if runtime.GOOS == "darwin" {
		paths = append(paths, "/Library/Application Support/adm")
	} else {
		paths = append(paths, "/etc/adm")
	}
	return append(paths, ".")
}

func userConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "adm")
	}
	return "."
}
