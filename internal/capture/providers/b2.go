package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Backblaze/blazer/b2"
)

// B2Config configures a Backblaze B2 bucket.
type B2Config struct {
	AccountID      string
	ApplicationKey string
	Bucket         string
	Prefix         string
}

// B2Provider stores captures in a B2 bucket.
type B2Provider struct {
	bucket *b2.Bucket
	prefix string
}

// NewB2Provider authorizes the account and resolves the bucket.
func NewB2Provider(ctx context.Context, cfg B2Config) (*B2Provider, error) {
	if cfg.AccountID == "" || cfg.ApplicationKey == "" || cfg.Bucket == "" {
		return nil, errors.New("b2 account id, application key and bucket are required")
	}
	client, err := b2.NewClient(ctx, cfg.AccountID, cfg.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("create b2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open b2 bucket %s: %w", cfg.Bucket, err)
	}
	return &B2Provider{bucket: bucket, prefix: cfg.Prefix}, nil
}

func (b *B2Provider) Name() string { return "b2" }

// Upload streams a local file into the bucket.
func (b *B2Provider) Upload(ctx context.Context, localPath, remotePath string) error {
	body, err := openUpload(localPath, remotePath)
	if err != nil {
		return err
	}
	defer body.Close()

	w := b.bucket.Object(joinKey(b.prefix, remotePath)).NewWriter(ctx)
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("b2 upload %s: %w", remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("b2 upload %s: %w", remotePath, err)
	}
	return nil
}

// List lists object names under prefix.
func (b *B2Provider) List(ctx context.Context, prefix string) ([]string, error) {
	iter := b.bucket.List(ctx, b2.ListPrefix(joinKey(b.prefix, prefix)))
	var names []string
	for iter.Next() {
		names = append(names, iter.Object().Name())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("b2 list: %w", err)
	}
	return names, nil
}
