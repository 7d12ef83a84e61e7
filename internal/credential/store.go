// Package credential stores user records and verifies passwords.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"golang.org/x/crypto/bcrypt"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

var (
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// dummyHash is compared against when the user does not exist so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-user"), bcrypt.MinCost)

// Option configures a Store.
type Option func(*Store)

// WithCost sets the bcrypt cost used for new hashes.
func WithCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// Store is the SQLite-backed credential table.
type Store struct {
	db   *sql.DB
	cost int
}

// Open opens (creating if needed) the database at path and initializes the
// schema.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if err = s.Init(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Init creates the users table if absent. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	// Column names match the table earlier deployments created.
	_, err := s.db.ExecContext(ctx, `
    CREATE TABLE IF NOT EXISTS users (
        username TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        password TEXT NOT NULL
    )`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Register hashes password and inserts a new user. An existing username is
// left untouched and ErrUsernameTaken is returned.
func (s *Store) Register(ctx context.Context, username, displayName, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, name, password) VALUES (?, ?, ?) ON CONFLICT(username) DO NOTHING",
		username, displayName, string(hash))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return ErrUsernameTaken
	}
	return nil
}

// Authenticate returns the display name of username when password matches.
func (s *Store) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return user.DisplayName, nil
}

// Lookup returns the record for username, or nil when there is none.
func (s *Store) Lookup(ctx context.Context, username string) (*model.User, error) {
	return s.lookup(ctx, username)
}

func (s *Store) lookup(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx,
		"SELECT username, name, password FROM users WHERE username = ?", username).
		Scan(&user.Username, &user.DisplayName, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}
