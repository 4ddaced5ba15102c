// internal/auth/repository.go

package auth

import (
    "context"
    "database/sql"
    "errors"

    "github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

// Repository is the user store
type Repository interface {
    CreateUser(ctx context.Context, user *User) error
    GetUserByID(ctx context.Context, id int64) (*User, error)
    GetUserByEmail(ctx context.Context, email string) (*User, error)
    GetUserByUsername(ctx context.Context, username string) (*User, error)
}

type PostgresRepository struct {
    db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
    return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *User) error {
    query := `
        INSERT INTO users (username, email, password_hash, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id`

    return r.db.QueryRowContext(ctx, query,
        user.Username, user.Email, user.PasswordHash, user.CreatedAt,
    ).Scan(&user.ID)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
    var user User
    err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrUserNotFound
    }
    if err != nil {
        return nil, err
    }
    return &user, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
    var user User
    err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrUserNotFound
    }
    if err != nil {
        return nil, err
    }
    return &user, nil
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
    var user User
    err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = $1`, username)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrUserNotFound
    }
    if err != nil {
        return nil, err
    }
    return &user, nil
}
