package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stockroom/internal/domain"
)

type ItemRepo struct{ store *Store }

func NewItemRepo(s *Store) *ItemRepo { return &ItemRepo{store: s} }

const itemCols = `
	SELECT i.id, COALESCE(c.name,'') AS category, i.name, i.stock, i.price,
	       COALESCE(i.img,'') AS img, COALESCE(i.rfid,'') AS rfid
	FROM items i
	LEFT JOIN categories c ON c.id = i.category_id`

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *ItemRepo) Get(ctx context.Context, id int64) (domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Item{}, err
	}
	var it domain.Item
	err = db.GetContext(ctx, &it, itemCols+` WHERE i.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, ErrNotFound
	}
	return it, err
}

// FindByTag returns the item carrying tag, or ErrNotFound.
func (r *ItemRepo) FindByTag(ctx context.Context, tag string) (domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Item{}, err
	}
	var it domain.Item
	err = db.GetContext(ctx, &it, itemCols+` WHERE i.rfid = ?`, strings.TrimSpace(tag))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, ErrNotFound
	}
	return it, err
}

// Insert adds a user-created item. A tag already present yields ErrDuplicate
// so bulk import can tally it and move on. Unknown category names leave the
// item Uncategorized.
func (r *ItemRepo) Insert(ctx context.Context, it domain.Item) (domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Item{}, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	tag := nullable(it.RFID)
	if tag.Valid {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM items WHERE rfid = ?`, tag.String); err != nil {
			return domain.Item{}, err
		}
		if n > 0 {
			return domain.Item{}, fmt.Errorf("rfid %s: %w", tag.String, ErrDuplicate)
		}
	}
	catID, err := categoryID(ctx, tx, it.Category, false)
	if err != nil {
		return domain.Item{}, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO items(category_id, name, stock, price, img, rfid)
		VALUES(?, ?, ?, ?, ?, ?)`,
		catID, it.Name, it.Stock, it.Price, nullable(it.Image), tag)
	if isUniqueViolation(err) {
		return domain.Item{}, fmt.Errorf("rfid %s: %w", tag.String, ErrDuplicate)
	}
	if err != nil {
		return domain.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Item{}, err
	}
	it.ID, _ = res.LastInsertId()
	it.RFID = tag.String
	if !catID.Valid {
		it.Category = ""
	}
	return it, nil
}

// Update rewrites the row with it.ID and returns the previous version.
func (r *ItemRepo) Update(ctx context.Context, it domain.Item) (domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Item{}, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var prev domain.Item
	if err := tx.GetContext(ctx, &prev, itemCols+` WHERE i.id = ?`, it.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, err
	}
	tag := nullable(it.RFID)
	if tag.Valid && tag.String != prev.RFID {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM items WHERE rfid = ? AND id <> ?`, tag.String, it.ID); err != nil {
			return domain.Item{}, err
		}
		if n > 0 {
			return domain.Item{}, fmt.Errorf("rfid %s: %w", tag.String, ErrDuplicate)
		}
	}
	catID, err := categoryID(ctx, tx, it.Category, false)
	if err != nil {
		return domain.Item{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET category_id = ?, name = ?, stock = ?, price = ?, img = ?, rfid = ?
		WHERE id = ?`,
		catID, it.Name, it.Stock, it.Price, nullable(it.Image), tag, it.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Item{}, fmt.Errorf("rfid %s: %w", tag.String, ErrDuplicate)
		}
		return domain.Item{}, err
	}
	return prev, tx.Commit()
}

// UpsertByTag applies a remote row: update in place when the tag exists,
// insert otherwise. Stock and image are local attributes and survive updates;
// new rows start with stock 1. Named categories are created on demand.
// Applying the same record twice leaves the same state.
func (r *ItemRepo) UpsertByTag(ctx context.Context, rec domain.Record) (created bool, err error) {
	db, err := r.store.DB()
	if err != nil {
		return false, err
	}
	tag := nullable(rec.RFID)
	if !tag.Valid {
		return false, errors.New("upsert requires an rfid")
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	catID, err := categoryID(ctx, tx, rec.Category, true)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE items SET name = ?, price = ?, category_id = ? WHERE rfid = ?`,
		rec.Name, rec.Price, catID, tag.String)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items(category_id, name, stock, price, rfid) VALUES(?, ?, 1, ?, ?)`,
			catID, rec.Name, rec.Price, tag.String); err != nil {
			return false, err
		}
		created = true
	}
	return created, tx.Commit()
}

// DeleteByTag removes the tagged item. A missing tag is not an error.
func (r *ItemRepo) DeleteByTag(ctx context.Context, tag string) (bool, error) {
	db, err := r.store.DB()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM items WHERE rfid = ?`, strings.TrimSpace(tag))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete removes the row by id and returns it.
func (r *ItemRepo) Delete(ctx context.Context, id int64) (domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return domain.Item{}, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var it domain.Item
	if err := tx.GetContext(ctx, &it, itemCols+` WHERE i.id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return domain.Item{}, err
	}
	return it, tx.Commit()
}

func (r *ItemRepo) List(ctx context.Context) ([]domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	out := []domain.Item{}
	err = db.SelectContext(ctx, &out, itemCols+` ORDER BY i.id DESC`)
	return out, err
}

// ListByCategory lists items in the named category. An empty name lists the
// Uncategorized bucket: null references and references to deleted categories.
func (r *ItemRepo) ListByCategory(ctx context.Context, name string) ([]domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	out := []domain.Item{}
	name = strings.TrimSpace(name)
	if name == "" || name == domain.Uncategorized {
		err = db.SelectContext(ctx, &out, itemCols+`
			WHERE i.category_id IS NULL OR i.category_id NOT IN (SELECT id FROM categories)
			ORDER BY i.id DESC`)
		return out, err
	}
	err = db.SelectContext(ctx, &out, itemCols+` WHERE c.name = ? ORDER BY i.id DESC`, name)
	return out, err
}

// DeleteUncategorized drops every item outside a live category.
func (r *ItemRepo) DeleteUncategorized(ctx context.Context) ([]domain.Item, error) {
	db, err := r.store.DB()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	gone := []domain.Item{}
	if err := tx.SelectContext(ctx, &gone, itemCols+`
		WHERE i.category_id IS NULL OR i.category_id NOT IN (SELECT id FROM categories)`); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM items
		WHERE category_id IS NULL OR category_id NOT IN (SELECT id FROM categories)`); err != nil {
		return nil, err
	}
	return gone, tx.Commit()
}

func (r *ItemRepo) Count(ctx context.Context) (int, error) {
	db, err := r.store.DB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`)
	return n, err
}
