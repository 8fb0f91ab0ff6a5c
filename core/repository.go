package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents the persisted projection of a user, including
// the password hash. It never crosses the HTTP boundary.
type UserRecord struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	LastLogin    time.Time
	CreatedAt    time.Time
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	Create(ctx context.Context, username, email, passwordHash, role string) (int64, error)
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
	HasAdmin(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT id, username, email, password_hash, role, last_login, created_at FROM users WHERE username=$1`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.LastLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) Create(ctx context.Context, username, email, passwordHash, role string) (int64, error) {
	const q = `INSERT INTO users (username, email, password_hash, role) VALUES ($1,$2,$3,$4) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, username, email, passwordHash, role).Scan(&id); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return 0, ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

func (r *PgUserRepository) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login=$1 WHERE id=$2`, at, userID)
	return err
}

func (r *PgUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users WHERE role='admin' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MemoryUserRepository is an in-memory UserRepository used by tests and
// fixture backends.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*UserRecord
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1, users: make(map[string]*UserRecord)}
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, username, email, passwordHash, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; ok {
		return 0, ErrUserExists
	}
	id := r.nextID
	r.nextID++
	r.users[username] = &UserRecord{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	return id, nil
}

func (r *MemoryUserRepository) UpdateLastLogin(_ context.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == userID {
			u.LastLogin = at
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *MemoryUserRepository) HasAdmin(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// Usernames returns the stored usernames sorted, for test assertions.
func (r *MemoryUserRepository) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users))
	for name := range r.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
