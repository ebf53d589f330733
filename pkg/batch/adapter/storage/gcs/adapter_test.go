package gcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	storageconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
)

func TestNewGCSAdapter_RequiresBucket(t *testing.T) {
	_, err := NewGCSAdapter(context.Background(), storageconfig.StorageConfig{Type: ProviderType}, "archive")
	assert.ErrorContains(t, err, "bucket_name")
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(storageconfig.StorageConfig{}))
	assert.Len(t, ClientOptions(storageconfig.StorageConfig{CredentialsFile: "/etc/key.json"}), 1)
	assert.Len(t, ClientOptions(storageconfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestNewGCSAdapter_WithEmulatorEndpoint(t *testing.T) {
	conn, err := NewGCSAdapter(context.Background(), storageconfig.StorageConfig{
		Type: ProviderType, BucketName: "exports", Endpoint: "http://127.0.0.1:1/storage/v1/",
	}, "archive")
	if assert.NoError(t, err) {
		assert.Equal(t, "gcs", conn.Type())
		assert.Equal(t, "exports", conn.(*gcsAdapter).bucketName(""))
		assert.NoError(t, conn.Close())
	}
}
