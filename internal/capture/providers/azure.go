package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig configures an Azure Blob Storage container.
type AzureConfig struct {
	ConnectionString string
	Container        string
	Prefix           string
}

// AzureProvider stores captures in a blob container.
type AzureProvider struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureProvider creates the blob client from a connection string.
func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	if cfg.ConnectionString == "" || cfg.Container == "" {
		return nil, errors.New("azure connection string and container are required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureProvider{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (a *AzureProvider) Name() string { return "azure" }

// Upload sends a local file to the container. Compressed uploads are
// staged through a temporary file because UploadFile needs a seekable
// source.
func (a *AzureProvider) Upload(ctx context.Context, localPath, remotePath string) error {
	body, err := openUpload(localPath, remotePath)
	if err != nil {
		return err
	}
	defer body.Close()

	f, ok := body.(*os.File)
	if !ok {
		tmp, err := os.CreateTemp("", "adm-capture-*")
		if err != nil {
			return fmt.Errorf("azure upload %s: %w", remotePath, err)
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()
		if _, err := io.Copy(tmp, body); err != nil {
			return fmt.Errorf("azure upload %s: %w", remotePath, err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("azure upload %s: %w", remotePath, err)
		}
		f = tmp
	}

	if _, err := a.client.UploadFile(ctx, a.container, joinKey(a.prefix, remotePath), f, nil); err != nil {
		return fmt.Errorf("azure upload %s: %w", remotePath, err)
	}
	return nil
}

// List lists blob names under prefix.
func (a *AzureProvider) List(ctx context.Context, prefix string) ([]string, error) {
	full := joinKey(a.prefix, prefix)
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &full})

	var names []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list: %w", err)
		}
		if resp.Segment == nil {
			continue
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}
