package ndexdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// ErrAccountNotFound is returned when no account has the requested name.
var ErrAccountNotFound = errors.New("account not found")

// Accounts resolves account names to persistent handles.
//
// Account management proper (passwords, groups, profiles) lives elsewhere;
// this directory only knows names.
type Accounts struct {
	db *DB
}

// Accounts returns the account directory.
func (db *DB) Accounts() *Accounts {
	return &Accounts{db: db}
}

// AccountByName resolves name inside tx.
func (a *Accounts) AccountByName(tx *storage.BadgerTransaction, name string) (storage.NodeID, error) {
	node, err := tx.FindNodeByIndex(LabelAccount, PropAccountName, name)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %q", ErrAccountNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// CreateAccount registers a new account name.
//
// A taken name fails with an error matching storage.ErrAlreadyExists.
func (a *Accounts) CreateAccount(ctx context.Context, name string) (storage.NodeID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("account name is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id storage.NodeID
	err := a.db.storage.Update(func(tx *storage.BadgerTransaction) error {
		var err error
		id, err = a.db.CreateEntity(tx, LabelAccount, map[string]any{PropAccountName: name})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating account %q: %w", name, err)
	}
	return id, nil
}
