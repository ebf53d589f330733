// Package gorm implements the database adaptor on gorm, with dialects registered
// by the sqlite, mysql and postgres subpackages.
package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "gorm_adapter"

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// GormProvider opens and caches named gorm connections.
type GormProvider struct {
	configs     map[string]dbconfig.DatabaseConfig
	logLevel    string
	connections map[string]*GormConnection
	mu          sync.RWMutex
}

var _ database.DBProvider = (*GormProvider)(nil)

// NewProvider decodes app.adaptor.database from cfg.
func NewProvider(cfg *config.Config) (*GormProvider, error) {
	configs, err := config.DecodeAdaptorConfigs[dbconfig.DatabaseConfig](cfg, "database")
	if err != nil {
		return nil, err
	}
	return NewProviderFromConfigs(configs), nil
}

// NewProviderFromConfigs creates a provider over already decoded configurations.
func NewProviderFromConfigs(configs map[string]dbconfig.DatabaseConfig) *GormProvider {
	return &GormProvider{
		configs:     configs,
		logLevel:    "SILENT",
		connections: make(map[string]*GormConnection),
	}
}

// SetLogLevel changes the gorm log level of connections opened afterwards.
func (p *GormProvider) SetLogLevel(level string) { p.logLevel = level }

// GetConnection retrieves an existing connection or establishes a new one.
func (p *GormProvider) GetConnection(name string) (database.DBConnection, error) {
	return p.GetGormConnection(name)
}

// GetGormConnection is GetConnection without the interface conversion.
func (p *GormProvider) GetGormConnection(name string) (*GormConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	dbConfig, ok := p.configs[name]
	if !ok {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("database configuration '%s' not found under app.adaptor.database", name), nil)
	}
	gormDB, err := p.connect(dbConfig)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to connect database '%s'", name), err)
	}

	conn = NewGormConnection(gormDB, dbConfig, name)
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s %s", name, dbConfig)
	return conn, nil
}

// connect establishes a gorm connection based on DatabaseConfig.
func (p *GormProvider) connect(dbConfig dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(dbConfig.NormalizedType())
	if err != nil {
		return nil, err
	}
	dialector, err := factory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(p.logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// CloseAll closes all connections managed by this provider.
func (p *GormProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			result = multierror.Append(result, err)
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
