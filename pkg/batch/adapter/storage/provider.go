package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	coreconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "storage"

// Factory opens a connection of one backend type.
type Factory func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (Connection, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// RegisterFactory registers the Factory of a backend type. Backends call it from init.
func RegisterFactory(storageType string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storageType] = factory
}

func lookupFactory(storageType string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[storageType]
	return f, ok
}

// ConnectionProvider opens and caches named connections.
type ConnectionProvider struct {
	configs     map[string]storageconfig.StorageConfig
	connections map[string]Connection
	mu          sync.Mutex
}

var _ Provider = (*ConnectionProvider)(nil)

// NewProvider decodes app.adaptor.storage from cfg.
func NewProvider(cfg *coreconfig.Config) (*ConnectionProvider, error) {
	configs, err := coreconfig.DecodeAdaptorConfigs[storageconfig.StorageConfig](cfg, "storage")
	if err != nil {
		return nil, err
	}
	return NewProviderFromConfigs(configs), nil
}

// NewProviderFromConfigs creates a provider over already decoded configurations.
func NewProviderFromConfigs(configs map[string]storageconfig.StorageConfig) *ConnectionProvider {
	return &ConnectionProvider{
		configs:     configs,
		connections: make(map[string]Connection),
	}
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *ConnectionProvider) GetConnection(name string) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	cfg, ok := p.configs[name]
	if !ok {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("storage configuration '%s' not found under app.adaptor.storage", name), nil)
	}
	factory, ok := lookupFactory(cfg.Type)
	if !ok {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("storage '%s' has unsupported type '%s'", name, cfg.Type), nil)
	}
	conn, err := factory(context.Background(), cfg, name)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to open storage '%s'", name), err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", cfg.Type, name)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *ConnectionProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close storage connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
