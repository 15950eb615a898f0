package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"rutas_admin/internal/domain"
)

// only plain top-level fields are allowed into the JSON path
var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Repo is a domain.DocumentStore on a single MySQL documents table.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	row := r.db.QueryRowContext(ctx, getDocumentSQL, collection, id)

	var d domain.Document
	if err := row.Scan(&d.ID, &d.Data, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, domain.ErrNotFound
		}
		return domain.Document{}, err
	}
	return d, nil
}

func (r *Repo) List(ctx context.Context, collection string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, listDocumentsSQL, collection)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (r *Repo) FindBy(ctx context.Context, collection, field, value string) ([]domain.Document, error) {
	if !fieldRe.MatchString(field) {
		return nil, fmt.Errorf("find by %q: %w", field, domain.ErrInvalidInput)
	}
	rows, err := r.db.QueryContext(ctx, findDocumentsSQL, collection, "$."+field, value)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (r *Repo) Put(ctx context.Context, collection, id string, data []byte) error {
	_, err := r.db.ExecContext(ctx, upsertDocumentSQL, collection, id, string(data))
	return err
}

func (r *Repo) SetIfEmpty(ctx context.Context, collection, id, field, value string) (bool, error) {
	if !fieldRe.MatchString(field) {
		return false, fmt.Errorf("set %q: %w", field, domain.ErrInvalidInput)
	}
	path := "$." + field
	res, err := r.db.ExecContext(ctx, setIfEmptySQL, path, value, collection, id, path)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var one int
	if err := r.db.QueryRowContext(ctx, existsDocumentSQL, collection, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return false, nil
}

func (r *Repo) Delete(ctx context.Context, collection, id string) error {
	res, err := r.db.ExecContext(ctx, deleteDocumentSQL, collection, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var (
			d    domain.Document
			data sql.RawBytes
		)
		if err := rows.Scan(&d.ID, &data, &d.UpdatedAt); err != nil {
			return nil, err
		}
		// RawBytes is only valid until the next Scan
		d.Data = append([]byte(nil), data...)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
