package gorm

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
)

// GormConnection implements database.DBConnection on top of *gorm.DB.
type GormConnection struct {
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

// NewGormConnection wraps an opened *gorm.DB.
func NewGormConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormConnection {
	return &GormConnection{db: db, cfg: cfg, name: name}
}

// Gorm returns the gorm handle.
func (c *GormConnection) Gorm() *gorm.DB { return c.db }

func (c *GormConnection) Name() string { return c.name }

func (c *GormConnection) Type() string { return c.cfg.NormalizedType() }

func (c *GormConnection) Config() dbconfig.DatabaseConfig { return c.cfg }

// GetSQLDB returns the pool gorm was opened on.
func (c *GormConnection) GetSQLDB() (*sql.DB, error) {
	sqlDB, err := c.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB of '%s': %w", c.name, err)
	}
	return sqlDB, nil
}

// Close closes the underlying pool.
func (c *GormConnection) Close() error {
	sqlDB, err := c.GetSQLDB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
