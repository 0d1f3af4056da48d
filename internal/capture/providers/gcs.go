package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage bucket. An empty credentials
// file uses application default credentials.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// GCSProvider stores captures in a GCS bucket.
type GCSProvider struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSProvider creates the storage client.
func NewGCSProvider(ctx context.Context, cfg GCSConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSProvider{bucket: client.Bucket(cfg.Bucket), prefix: cfg.Prefix}, nil
}

func (g *GCSProvider) Name() string { return "gcs" }

// Upload streams a local file into the bucket.
func (g *GCSProvider) Upload(ctx context.Context, localPath, remotePath string) error {
	body, err := openUpload(localPath, remotePath)
	if err != nil {
		return err
	}
	defer body.Close()

	w := g.bucket.Object(joinKey(g.prefix, remotePath)).NewWriter(ctx)
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("gcs upload %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs upload %s: %w", remotePath, err)
	}
	return nil
}

// List lists object names under prefix.
func (g *GCSProvider) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: joinKey(g.prefix, prefix)})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list: %w", err)
		}
		names = append(names, attrs.Name)
	}
}
