package repo

import (
	"context"
	"database/sql"
	"strings"

	"officedesk/internal/domain"
)

const documentSelect = `SELECT documents.id,documents.filename,documents.stored_name,documents.size_bytes,documents.content_type,documents.uploaded_at FROM documents`

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var d domain.Document
	var contentType sql.NullString
	err := scan(&d.ID, &d.Filename, &d.StoredName, &d.SizeBytes, &contentType, &d.UploadedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if contentType.Valid {
		d.ContentType = contentType.String
	}
	return d, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,filename,stored_name,size_bytes,content_type,uploaded_at) VALUES (?,?,?,?,?,?)`,
		d.ID, d.Filename, d.StoredName, d.SizeBytes, nullable(d.ContentType), d.UploadedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, documentSelect+` WHERE id=?`, id).Scan)
}

func (r Repo) GetDocumentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Document, error) {
	return scanDocument(tx.QueryRowContext(ctx, documentSelect+` WHERE id=?`, id).Scan)
}

type DocumentFilters struct {
	Limit            int
	CursorUploadedAt string
	CursorID         string
}

func (r Repo) ListDocuments(ctx context.Context, f DocumentFilters) ([]domain.Document, error) {
	var clauses []string
	var args []any
	if f.CursorUploadedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(uploaded_at < ? OR (uploaded_at = ? AND id < ?))")
		args = append(args, f.CursorUploadedAt, f.CursorUploadedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := documentSelect + ` ` + where + ` ORDER BY uploaded_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r Repo) DeleteDocument(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
