package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account already exists")
)

// Account is the login record behind a user profile.
type Account struct {
	ID           string
	Email        string
	UserName     string
	AvatarURL    string
	PasswordHash []byte
	CreatedAt    time.Time
}

type Accounts struct {
	db *sql.DB
}

func NewAccounts(db *sql.DB) *Accounts {
	return &Accounts{db: db}
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT:
			return true
		}
	}
	return false
}

func (a *Accounts) Insert(ctx context.Context, account Account) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO accounts (id, email, username, avatar_url, password, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		account.ID, account.Email, account.UserName, account.AvatarURL, account.PasswordHash, account.CreatedAt.UnixMilli(),
	)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (a *Accounts) scan(row *sql.Row) (Account, error) {
	var account Account
	var createdAt int64

	err := row.Scan(&account.ID, &account.Email, &account.UserName, &account.AvatarURL, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}

	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return account, nil
}

func (a *Accounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	return a.scan(a.db.QueryRowContext(ctx,
		"SELECT id, email, username, avatar_url, password, created_at FROM accounts WHERE email = ?", email))
}

func (a *Accounts) FindByID(ctx context.Context, id string) (Account, error) {
	return a.scan(a.db.QueryRowContext(ctx,
		"SELECT id, email, username, avatar_url, password, created_at FROM accounts WHERE id = ?", id))
}

func (a *Accounts) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := a.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)", id).Scan(&found)
	return found, err
}

// UpdateProfile keeps the stored username and avatar in step with profile
// edits so a later login restores the current values.
func (a *Accounts) UpdateProfile(ctx context.Context, id, username, avatarURL string) error {
	result, err := a.db.ExecContext(ctx, "UPDATE accounts SET username = ?, avatar_url = ? WHERE id = ?", username, avatarURL, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
