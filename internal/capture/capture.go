// Package capture snapshots the launchd log around an action so the
// effect of a bootout or bootstrap can be inspected afterwards.
package capture

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/breeze-rmm/adm/internal/capture/providers"
	"github.com/breeze-rmm/adm/internal/config"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("capture")

// Phase is the position of a snapshot relative to the action.
type Phase int

const (
	Before Phase = iota
	After
)

func (p Phase) String() string {
	if p == Before {
		return "before"
	}
	return "after"
}

// Capturer copies the launchd log into a provider under
// <service>/<domain-dashed>/launchd.<phase>.log.
type Capturer struct {
	provider providers.Provider
	source   string
	compress bool
}

// New returns a Capturer reading source and writing to provider.
func New(provider providers.Provider, source string, compress bool) *Capturer {
	return &Capturer{provider: provider, source: source, compress: compress}
}

// Provider returns the destination provider.
func (c *Capturer) Provider() providers.Provider { return c.provider }

// Key is the provider key a snapshot of t at phase is stored under.
func (c *Capturer) Key(t launchd.Target, phase Phase) string {
	key := path.Join(t.Service, t.Domain.Dashed(), fmt.Sprintf("launchd.%d.log", phase))
	if c.compress {
		key += ".gz"
	}
	return key
}

// Snapshot stores the current launchd log for t. A nil Capturer is a no-op.
func (c *Capturer) Snapshot(ctx context.Context, t launchd.Target, phase Phase) error {
	if c == nil {
		return nil
	}
	if _, err := os.Stat(c.source); err != nil {
		return fmt.Errorf("capture %s %s: %w", t, phase, err)
	}

	key := c.Key(t, phase)
	if err := c.provider.Upload(ctx, c.source, key); err != nil {
		return fmt.Errorf("capture %s %s: %w", t, phase, err)
	}
	log.Debug("snapshot stored", logging.KeyTarget, t.String(), "phase", phase.String(), "sink", c.provider.Name(), "key", key)
	return nil
}

// List returns stored snapshot keys under prefix.
func (c *Capturer) List(ctx context.Context, prefix string) ([]string, error) {
	return c.provider.List(ctx, prefix)
}

// NewProvider builds the provider selected by cfg.Sink.
func NewProvider(ctx context.Context, cfg config.CaptureConfig) (providers.Provider, error) {
	switch cfg.Sink {
	case "", config.SinkLocal:
		return providers.NewLocalProvider(cfg.Dir), nil
	case config.SinkS3:
		return providers.NewS3Provider(ctx, providers.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
		})
	case config.SinkGCS:
		return providers.NewGCSProvider(ctx, providers.GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
		})
	case config.SinkAzure:
		return providers.NewAzureProvider(providers.AzureConfig{
			ConnectionString: cfg.Azure.ConnectionString,
			Container:        cfg.Azure.Container,
			Prefix:           cfg.Azure.Prefix,
		})
	case config.SinkB2:
		return providers.NewB2Provider(ctx, providers.B2Config{
			AccountID:      cfg.B2.AccountID,
			ApplicationKey: cfg.B2.ApplicationKey,
			Bucket:         cfg.B2.Bucket,
			Prefix:         cfg.B2.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown capture sink %q", cfg.Sink)
}

// FromConfig returns a Capturer for cfg, or nil when capture is disabled.
func FromConfig(ctx context.Context, cfg config.CaptureConfig) (*Capturer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(p, cfg.LaunchdLog, cfg.Compress), nil
}
