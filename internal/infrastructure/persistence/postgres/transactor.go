package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/psn/internal/domain/repository"
)

type txKey struct{}

// withTx stores a gorm transaction in ctx for downstream repository usage.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// txFrom extracts a gorm transaction from ctx if present.
func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok
}

// session returns the transaction carried by ctx, or a fresh session on db.
func session(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// inTx runs fn in the transaction carried by ctx, or opens one. Inside an
// existing transaction gorm issues a savepoint, so a failing fn only rolls back its own work.
func inTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return session(ctx, db).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx), tx)
	})
}

// Transactor implements repository.Transactor on gorm.
type Transactor struct {
	db *gorm.DB
}

// NewTransactor creates a Transactor.
func NewTransactor(db *gorm.DB) repository.Transactor {
	return &Transactor{db: db}
}

// InTransaction runs fn in one transaction; fn's error rolls it back.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, t.db, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}
