// Package providers stores captured log files on the local filesystem or
// in an object store.
package providers

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Provider is a destination for captured files. Remote paths are
// slash-separated keys; a ".gz" suffix stores the file gzip-compressed.
type Provider interface {
	Name() string
	Upload(ctx context.Context, localPath, remotePath string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

func joinKey(prefix, remotePath string) string {
	prefix = strings.Trim(prefix, "/")
	remotePath = strings.TrimLeft(remotePath, "/")
	if prefix == "" {
		return remotePath
	}
	return prefix + "/" + remotePath
}

// openUpload opens localPath for streaming to remotePath, compressing on
// the fly when remotePath ends in ".gz".
func openUpload(localPath, remotePath string) (io.ReadCloser, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	if !strings.HasSuffix(remotePath, ".gz") {
		return src, nil
	}

	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		zw.Name = filepath.Base(localPath)
		_, err := io.Copy(zw, src)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		src.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}
