package domain

import (
	"context"
	"io"
)

// BlobWriter writes objects to cold storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, contentType string, body io.Reader) error
}

// BlobReader reads objects back from cold storage.
type BlobReader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
