package bridge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"stockroom/internal/domain"
)

var (
	itemHeader     = []string{"RFID", "Name", "Price", "Category"}
	categoryHeader = []string{"Name"}
)

// Inventory is the authoritative item table, kept in memory in insertion order
// and rewritten to CSV after every mutation. Tags match case-insensitively.
// An empty path keeps the table in memory only.
type Inventory struct {
	path    string
	catPath string

	mu    sync.RWMutex
	rows  []domain.Record
	index map[string]int
	cats  []string
}

func normalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// OpenInventory loads path and catPath, creating them with a header when absent.
func OpenInventory(path, catPath string) (*Inventory, error) {
	inv := &Inventory{path: path, catPath: catPath, index: map[string]int{}}
	rows, err := readCSV(path, itemHeader)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for _, r := range rows {
		rec := domain.Record{RFID: strings.TrimSpace(field(r, 0)), Name: field(r, 1), Price: field(r, 2), Category: field(r, 3)}
		if len(r) > 4 {
			rec.Category = strings.Join(r[3:], ",")
		}
		if rec.RFID == "" {
			continue
		}
		if i, ok := inv.index[normalizeTag(rec.RFID)]; ok {
			inv.rows[i] = rec
			continue
		}
		inv.index[normalizeTag(rec.RFID)] = len(inv.rows)
		inv.rows = append(inv.rows, rec)
	}
	cats, err := readCSV(catPath, categoryHeader)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", catPath, err)
	}
	for _, r := range cats {
		if name := strings.TrimSpace(field(r, 0)); name != "" && !slices.Contains(inv.cats, name) {
			inv.cats = append(inv.cats, name)
		}
	}
	if err := inv.persistItems(); err != nil {
		return nil, err
	}
	if err := inv.persistCategories(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Inventory) Get(tag string) (domain.Record, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	i, ok := inv.index[normalizeTag(tag)]
	if !ok {
		return domain.Record{}, false
	}
	return inv.rows[i], true
}

func (inv *Inventory) List() []domain.Record {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return append([]domain.Record{}, inv.rows...)
}

func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.rows)
}

// Upsert replaces the row carrying rec's tag, or appends it. On a persist
// failure the in-memory table is left as it was.
func (inv *Inventory) Upsert(rec domain.Record) (created bool, err error) {
	rec.RFID = strings.TrimSpace(rec.RFID)
	if rec.RFID == "" {
		return false, errors.New("upsert requires an rfid")
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	key := normalizeTag(rec.RFID)
	if i, ok := inv.index[key]; ok {
		prev := inv.rows[i]
		inv.rows[i] = rec
		if err := inv.persistItems(); err != nil {
			inv.rows[i] = prev
			return false, err
		}
		return false, nil
	}
	inv.index[key] = len(inv.rows)
	inv.rows = append(inv.rows, rec)
	if err := inv.persistItems(); err != nil {
		inv.rows = inv.rows[:len(inv.rows)-1]
		delete(inv.index, key)
		return false, err
	}
	return true, nil
}

// Delete removes the tagged row. Removing an absent tag changes nothing.
func (inv *Inventory) Delete(tag string) (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	i, ok := inv.index[normalizeTag(tag)]
	if !ok {
		return false, nil
	}
	prev := inv.rows
	inv.rows = append(append([]domain.Record{}, prev[:i]...), prev[i+1:]...)
	if err := inv.persistItems(); err != nil {
		inv.rows = prev
		return false, err
	}
	inv.reindexLocked()
	return true, nil
}

func (inv *Inventory) Categories() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return append([]string{}, inv.cats...)
}

// AddCategory records name; false means it already existed.
func (inv *Inventory) AddCategory(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("category name required")
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if slices.Contains(inv.cats, name) {
		return false, nil
	}
	inv.cats = append(inv.cats, name)
	if err := inv.persistCategories(); err != nil {
		inv.cats = inv.cats[:len(inv.cats)-1]
		return false, err
	}
	return true, nil
}

func (inv *Inventory) reindexLocked() {
	inv.index = make(map[string]int, len(inv.rows))
	for i, r := range inv.rows {
		inv.index[normalizeTag(r.RFID)] = i
	}
}

func (inv *Inventory) persistItems() error {
	out := make([][]string, len(inv.rows))
	for i, r := range inv.rows {
		out[i] = []string{r.RFID, r.Name, r.Price, r.Category}
	}
	return writeCSVAtomic(inv.path, itemHeader, out)
}

func (inv *Inventory) persistCategories() error {
	out := make([][]string, len(inv.cats))
	for i, c := range inv.cats {
		out[i] = []string{c}
	}
	return writeCSVAtomic(inv.catPath, categoryHeader, out)
}

// readCSV returns the data rows of path, skipping a leading header row. A
// missing file reads as empty.
func readCSV(path string, header []string) ([][]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for first := true; ; first = false {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first && strings.EqualFold(strings.TrimSpace(field(rec, 0)), header[0]) {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// writeCSVAtomic replaces path with header and rows via a synced temp file in
// the same directory, so readers see either the old or the new table.
func writeCSVAtomic(path string, header []string, rows [][]string) (err error) {
	if path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	w := csv.NewWriter(tmp)
	if err = w.Write(header); err != nil {
		return err
	}
	if err = w.WriteAll(rows); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func field(r []string, i int) string {
	if i < len(r) {
		return r[i]
	}
	return ""
}
