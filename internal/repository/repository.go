package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection, for tests.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn inside a single database transaction. The passed
// repository is bound to the transaction; all-or-nothing units (request
// acceptance, race transitions plus their audit messages) go through here.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// forUpdate applies a row lock where the dialect supports it. SQLite (tests)
// serializes writes on its own.
func (r *Repository) forUpdate(tx *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
