package saga

import (
	"context"
	"errors"

	"github.com/meridianfi/ledger/internal/txstore"
)

type pgStore struct {
	db *txstore.DB
}

// NewStore adapts the Postgres storage layer to the saga's Store interface.
func NewStore(db *txstore.DB) Store {
	return pgStore{db: db}
}

func (s pgStore) Begin(ctx context.Context) (Tx, error) {
	sess, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// StoreNotFound reports whether err is the storage layer's missing-row sentinel.
func StoreNotFound(err error) bool {
	return errors.Is(err, txstore.ErrNotFound)
}
