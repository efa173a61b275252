package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"stockroom/internal/domain"
	applog "stockroom/internal/log"
	"stockroom/internal/repos"
	"stockroom/internal/validate"
)

var exportHeader = []string{"ID", "Category", "Name", "Stock", "Price", "Image", "RFID"}

type CSVService struct {
	Inventory *InventoryService
}

// ImportReport tallies one import. Duplicates holds the names of rows whose
// tag was already present.
type ImportReport struct {
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates,omitempty"`
	Skipped    int      `json:"skipped"`
}

func (r ImportReport) String() string {
	s := fmt.Sprintf("imported %d item(s)", r.Imported)
	if n := len(r.Duplicates); n > 0 {
		shown := r.Duplicates
		more := ""
		if n > 5 {
			shown, more = shown[:5], "..."
		}
		s += fmt.Sprintf("; %d skipped, tag already present: %s%s", n, strings.Join(shown, ", "), more)
	}
	if r.Skipped > 0 {
		s += fmt.Sprintf("; %d invalid row(s) skipped", r.Skipped)
	}
	return s
}

// Export writes every local item, newest first.
func (s *CSVService) Export(ctx context.Context, w io.Writer) (int, error) {
	items, err := s.Inventory.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := cw.Write([]string{
			strconv.FormatInt(it.ID, 10), it.Category, it.Name, strconv.Itoa(it.Stock), it.Price, it.Image, it.RFID,
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(items), cw.Error()
}

func (s *CSVService) ExportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := s.Export(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		applog.Audit(nil, "csv.export", map[string]any{"path": path, "rows": n})
	}
	return n, err
}

// columns maps lower-cased header names to their index. Both the full export
// header and the short ID,Category,Name,Price,RFID form are accepted; a
// missing Stock column means 1.
func columns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.New("csv header has no Name column")
	}
	return cols, nil
}

// Import adds every row as a new item through the inventory service, so
// tagged rows are sent to the bridge. Rows whose tag already exists are
// tallied, not fatal. Unknown categories leave the item Uncategorized.
func (s *CSVService) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	var rep ImportReport
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return rep, nil
	}
	if err != nil {
		return rep, err
	}
	cols, err := columns(header)
	if err != nil {
		return rep, err
	}
	get := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, err
		}
		name := get(row, "name")
		if name == "" {
			continue
		}
		stock, ok := validate.Stock(get(row, "stock"))
		if !ok {
			rep.Skipped++
			continue
		}
		it := domain.Item{
			Category: get(row, "category"),
			Name:     name,
			Stock:    stock,
			Price:    get(row, "price"),
			Image:    get(row, "image"),
			RFID:     get(row, "rfid"),
		}
		_, err = s.Inventory.AddItem(ctx, it)
		switch {
		case err == nil:
			rep.Imported++
		case errors.Is(err, repos.ErrDuplicate):
			rep.Duplicates = append(rep.Duplicates, name)
		case errors.Is(err, ErrInvalid):
			applog.Warn(nil, "csv.import.row", err, map[string]any{"name": name})
			rep.Skipped++
		default:
			return rep, err
		}
	}
	return rep, nil
}

func (s *CSVService) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportReport{}, err
	}
	defer f.Close()
	rep, err := s.Import(ctx, f)
	if err == nil {
		applog.Audit(nil, "csv.import", map[string]any{
			"path": path, "imported": rep.Imported, "duplicates": len(rep.Duplicates), "skipped": rep.Skipped,
		})
	}
	return rep, err
}
