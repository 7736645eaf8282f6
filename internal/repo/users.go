package repo

import (
	"context"
	"database/sql"

	"officedesk/internal/domain"
)

const userSelect = `SELECT id,username,password_digest,role,created_at,updated_at FROM users`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,username,password_digest,role,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, u.PasswordDigest, u.Role, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+` WHERE id=?`, id).Scan)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+` WHERE username=?`, username).Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, userSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET username=?, password_digest=?, role=?, updated_at=? WHERE id=?`,
		u.Username, u.PasswordDigest, u.Role, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
