package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO users(username,email,password_hash,is_active,created_at)
VALUES (?,?,?,?,?)`, u.Username, u.Email, u.PasswordHash, boolInt(u.IsActive), u.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanUserRow(scan func(...any) error) (domain.User, error) {
	var u domain.User
	var active int
	err := scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.IsActive = active != 0
	return u, nil
}

const userCols = `id,username,email,password_hash,is_active,created_at`

// UserExists reports whether any user already holds the username or email.
func (r Repo) UserExists(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE username=? OR email=?`, username, email).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUserByLogin accepts either a username or an email address.
func (r Repo) GetUserByLogin(ctx context.Context, login string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username=? OR email=?`, login, login)
	return scanUserRow(row.Scan)
}

func (r Repo) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id)
	return scanUserRow(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUserRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET is_active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
