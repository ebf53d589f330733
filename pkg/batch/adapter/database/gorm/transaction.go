package gorm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// GormTx is one database transaction of a chunk.
type GormTx struct {
	id string
	db *gorm.DB
}

// ID implements tx.Tx.
func (t *GormTx) ID() string { return t.id }

// DB returns the transactional handle writers stage their statements on.
func (t *GormTx) DB() *gorm.DB { return t.db }

// TxFrom unwraps a transaction begun by a TransactionManager.
func TxFrom(t tx.Tx) (*gorm.DB, error) {
	gt, ok := t.(*GormTx)
	if !ok || gt == nil {
		return nil, fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return gt.db, nil
}

// TransactionManager implements tx.TransactionManager over one connection.
type TransactionManager struct {
	conn *GormConnection
}

var _ tx.TransactionManager = (*TransactionManager)(nil)

// NewTransactionManager creates a TransactionManager bound to conn.
func NewTransactionManager(conn *GormConnection) *TransactionManager {
	return &TransactionManager{conn: conn}
}

func (m *TransactionManager) Begin(ctx context.Context) (tx.Tx, error) {
	gormTx := m.conn.Gorm().WithContext(ctx).Begin()
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.conn.Name(), gormTx.Error)
	}
	return &GormTx{id: uuid.NewString(), db: gormTx}, nil
}

func (m *TransactionManager) Commit(_ context.Context, t tx.Tx) error {
	db, err := TxFrom(t)
	if err != nil {
		return err
	}
	return db.Commit().Error
}

func (m *TransactionManager) Rollback(_ context.Context, t tx.Tx) error {
	db, err := TxFrom(t)
	if err != nil {
		return err
	}
	return db.Rollback().Error
}

// IsTableNotExistError reports whether err is a missing-table error of any supported dialect.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return (strings.Contains(errMsg, "relation \"") && strings.Contains(errMsg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(errMsg, "Error 1146") && strings.Contains(errMsg, "doesn't exist")) || // MySQL
		strings.Contains(errMsg, "no such table:") // SQLite
}
