package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"stockroom/internal/domain"
)

type CategoryRepo struct{ store *Store }

func NewCategoryRepo(s *Store) *CategoryRepo { return &CategoryRepo{store: s} }

// Create inserts a category. An existing name yields ErrDuplicate.
func (r *CategoryRepo) Create(ctx context.Context, name string) (domain.Category, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Category{}, err
	}
	name = strings.TrimSpace(name)
	res, err := db.ExecContext(ctx, `INSERT INTO categories(name) VALUES(?)`, name)
	if isUniqueViolation(err) {
		return domain.Category{}, fmt.Errorf("category %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return domain.Category{}, err
	}
	id, _ := res.LastInsertId()
	return domain.Category{ID: id, Name: name}, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	out := []domain.Category{}
	err = db.SelectContext(ctx, &out, `SELECT id, name FROM categories ORDER BY name ASC`)
	return out, err
}

func (r *CategoryRepo) Exists(ctx context.Context, name string) (bool, error) {
	db, err := r.store.DB()
	if err != nil {
		return false, err
	}
	var n int
	err = db.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories WHERE name = ?`, strings.TrimSpace(name))
	return n > 0, err
}

// Delete removes a category after detaching its items; the items themselves
// become Uncategorized. Deleting a missing category reports false.
func (r *CategoryRepo) Delete(ctx context.Context, name string) (bool, error) {
	db, err := r.store.DB()
	if err != nil {
		return false, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM categories WHERE name = ?`, strings.TrimSpace(name)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE items SET category_id = NULL WHERE category_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Totals returns stock per category, plus a trailing Uncategorized row
// (ID 0) when any item lacks a live category.
func (r *CategoryRepo) Totals(ctx context.Context) ([]domain.CategoryTotal, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	out := []domain.CategoryTotal{}
	if err := db.SelectContext(ctx, &out, `
		SELECT c.id, c.name, IFNULL(SUM(i.stock), 0) AS total_stock
		FROM categories c
		LEFT JOIN items i ON i.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name ASC
	`); err != nil {
		return nil, err
	}
	var loose struct {
		N     int `db:"n"`
		Stock int `db:"stock"`
	}
	if err := db.GetContext(ctx, &loose, `
		SELECT COUNT(*) AS n, IFNULL(SUM(stock), 0) AS stock FROM items
		WHERE category_id IS NULL OR category_id NOT IN (SELECT id FROM categories)
	`); err != nil {
		return nil, err
	}
	if loose.N > 0 {
		out = append(out, domain.CategoryTotal{Name: domain.Uncategorized, TotalStock: loose.Stock})
	}
	return out, nil
}

// categoryID resolves name inside tx. Empty names map to NULL. Unknown names
// are created when create is set and map to NULL otherwise.
func categoryID(ctx context.Context, tx *sqlx.Tx, name string, create bool) (sql.NullInt64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return sql.NullInt64{}, nil
	}
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM categories WHERE name = ?`, name)
	switch {
	case err == nil:
		return sql.NullInt64{Int64: id, Valid: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return sql.NullInt64{}, err
	case !create:
		return sql.NullInt64{}, nil
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO categories(name) VALUES(?)`, name)
	if err != nil {
		return sql.NullInt64{}, err
	}
	id, err = res.LastInsertId()
	return sql.NullInt64{Int64: id, Valid: true}, err
}
