// Package storage defines object storage connections (a local directory or a GCS bucket)
// that exported files are published to.
package storage

import (
	"context"
	"io"
)

// Connection represents one named storage target.
type Connection interface {
	// Name returns the configuration key of the connection.
	Name() string
	// Type returns the backend type ("local", "gcs").
	Type() string
	// Upload stores data as objectName. An empty bucket means the configured default bucket.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object name under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
	// Close releases the client.
	Close() error
}

// Provider opens connections by name from the app.adaptor.storage configuration.
type Provider interface {
	// GetConnection retrieves a connection with the specified name.
	GetConnection(name string) (Connection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
}
