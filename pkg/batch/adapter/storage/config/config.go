// Package config defines the settings of a named storage adaptor.
package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("gcs", "local").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to a service account key for GCS.
	Endpoint        string `yaml:"endpoint"`         // Endpoint override, e.g. a GCS emulator.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}
