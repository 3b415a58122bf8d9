package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// ContextWithTx returns a context carrying an open transaction.  Every
// repository method called with that context runs inside it.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction stored in ctx, or nil.
func TxFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// conn picks the transaction from ctx when present, otherwise the pool.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// TxManager runs functions inside one database transaction.
type TxManager struct{ DB *gorm.DB }

func NewTxManager(db *gorm.DB) *TxManager { return &TxManager{DB: db} }

// Do runs fn in a transaction committed when fn returns nil and rolled back
// otherwise.  A nested call joins the transaction already present in ctx.
func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ContextWithTx(ctx, tx))
	})
}
