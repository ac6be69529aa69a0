package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrAccountNotFound is returned when the subject id has no account.
var ErrAccountNotFound = errors.New("account not found")

// Account is the minimal view of a user the gate needs: the user id and
// its role association.
type Account struct {
	ID       string
	RoleID   string
	RoleName string
}

// Directory resolves authenticated subjects to accounts. The user and role
// collections belong to the surrounding CRUD application; this interface is
// the only thing the connection core knows about them.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Account, error)
}

// PostgresDirectory reads accounts from the application's users/roles
// tables.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory wraps an existing database handle.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, userID string) (*Account, error) {
	account := &Account{}
	err := d.db.QueryRowContext(ctx,
		`SELECT u.id, COALESCE(u.role_id, ''), COALESCE(r.name, '')
		 FROM users u LEFT JOIN roles r ON r.id = u.role_id
		 WHERE u.id = $1`,
		userID,
	).Scan(&account.ID, &account.RoleID, &account.RoleName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

// MemoryDirectory is an in-process Directory for development mode and tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: make(map[string]Account)}
}

// Add registers an account.
func (d *MemoryDirectory) Add(a Account) {
	d.mu.Lock()
	d.accounts[a.ID] = a
	d.mu.Unlock()
}

func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (*Account, error) {
	d.mu.RLock()
	a, ok := d.accounts[userID]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := a
	return &cp, nil
}
