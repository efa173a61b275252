package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stockroom/internal/domain"
	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
	"stockroom/internal/repos"
	"stockroom/internal/validate"
)

// Sender hands a message to the sync channel. It queues while offline and only
// fails when the message cannot be encoded.
type Sender interface {
	Send(msg protocol.Message) error
}

// InventoryService applies user edits to the local store first and then
// forwards them to the bridge. Transmission is never awaited.
type InventoryService struct {
	Items      *repos.ItemRepo
	Categories *repos.CategoryRepo
	Link       Sender
}

func NewInventoryService(items *repos.ItemRepo, cats *repos.CategoryRepo, link Sender) *InventoryService {
	return &InventoryService{Items: items, Categories: cats, Link: link}
}

func (s *InventoryService) send(msg protocol.Message) {
	if s.Link == nil {
		return
	}
	if err := s.Link.Send(msg); err != nil {
		applog.Error(nil, "sync.send", err, map[string]any{"cmd": msg.Command.String()})
	}
}

func cleanItem(it domain.Item) (domain.Item, error) {
	var ok bool
	if it.Name, ok = validate.Name(it.Name); !ok {
		return it, fmt.Errorf("%w: name", ErrInvalid)
	}
	if it.Price, ok = validate.Price(it.Price); !ok {
		return it, fmt.Errorf("%w: price %q", ErrInvalid, it.Price)
	}
	if it.Stock < 0 {
		return it, fmt.Errorf("%w: stock %d", ErrInvalid, it.Stock)
	}
	if it.RFID = strings.TrimSpace(it.RFID); it.RFID != "" {
		if _, ok = validate.Tag(it.RFID); !ok {
			return it, fmt.Errorf("%w: rfid %q", ErrInvalid, it.RFID)
		}
	}
	it.Category = strings.TrimSpace(it.Category)
	return it, nil
}

// AddItem inserts locally and, for tagged items, sends ADD_ITEM. A tag that is
// already taken returns repos.ErrDuplicate and nothing is sent.
func (s *InventoryService) AddItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	it, err := cleanItem(it)
	if err != nil {
		return domain.Item{}, err
	}
	saved, err := s.Items.Insert(ctx, it)
	if err != nil {
		return domain.Item{}, err
	}
	if saved.RFID != "" {
		s.send(protocol.ItemMessage(protocol.CmdAddItem, saved.Record()))
	}
	applog.Audit(nil, "item.add", map[string]any{"id": saved.ID, "tag": saved.RFID})
	return saved, nil
}

// UpdateItem rewrites the row and sends UPDATE_ITEM. A changed tag also sends
// DELETE_ITEM for the old one so the bridge does not keep a stale row.
func (s *InventoryService) UpdateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	it, err := cleanItem(it)
	if err != nil {
		return domain.Item{}, err
	}
	prev, err := s.Items.Update(ctx, it)
	if err != nil {
		return domain.Item{}, err
	}
	saved, err := s.Items.Get(ctx, it.ID)
	if err != nil {
		return domain.Item{}, err
	}
	if prev.RFID != "" && !strings.EqualFold(prev.RFID, saved.RFID) {
		s.send(protocol.New(protocol.CmdDeleteItem, prev.RFID))
	}
	if saved.RFID != "" {
		s.send(protocol.ItemMessage(protocol.CmdUpdateItem, saved.Record()))
	}
	applog.Audit(nil, "item.update", map[string]any{"id": saved.ID, "tag": saved.RFID})
	return saved, nil
}

func (s *InventoryService) DeleteItem(ctx context.Context, id int64) (domain.Item, error) {
	it, err := s.Items.Delete(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	if it.RFID != "" {
		s.send(protocol.New(protocol.CmdDeleteItem, it.RFID))
	}
	applog.Audit(nil, "item.delete", map[string]any{"id": it.ID, "tag": it.RFID})
	return it, nil
}

// DeleteUncategorized drops every item outside a live category and sends
// DELETE_ITEM for the tagged ones.
func (s *InventoryService) DeleteUncategorized(ctx context.Context) ([]domain.Item, error) {
	gone, err := s.Items.DeleteUncategorized(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range gone {
		if it.RFID != "" {
			s.send(protocol.New(protocol.CmdDeleteItem, it.RFID))
		}
	}
	applog.Audit(nil, "item.purge_uncategorized", map[string]any{"count": len(gone)})
	return gone, nil
}

func (s *InventoryService) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.Items.List(ctx)
}

// ListByCategory lists one category; "" or Uncategorized lists loose items.
func (s *InventoryService) ListByCategory(ctx context.Context, name string) ([]domain.Item, error) {
	return s.Items.ListByCategory(ctx, name)
}

// AddCategory creates the category locally and announces it. A taken name
// returns repos.ErrDuplicate.
func (s *InventoryService) AddCategory(ctx context.Context, name string) (domain.Category, error) {
	name, ok := validate.Name(name)
	if !ok || strings.EqualFold(name, domain.Uncategorized) {
		return domain.Category{}, fmt.Errorf("%w: category name", ErrInvalid)
	}
	c, err := s.Categories.Create(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	s.send(protocol.New(protocol.CmdAddCategory, c.Name))
	applog.Audit(nil, "category.add", map[string]any{"name": c.Name})
	return c, nil
}

// DeleteCategory removes the category and leaves its items Uncategorized.
// It is local only; the bridge has no category delete.
func (s *InventoryService) DeleteCategory(ctx context.Context, name string) (bool, error) {
	ok, err := s.Categories.Delete(ctx, name)
	if err == nil && ok {
		applog.Audit(nil, "category.delete", map[string]any{"name": name})
	}
	return ok, err
}

// CategoryTotals reports stock and stock*price per category, including a
// trailing Uncategorized row when loose items exist.
func (s *InventoryService) CategoryTotals(ctx context.Context) ([]domain.CategoryTotal, error) {
	totals, err := s.Categories.Totals(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.Items.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(totals))
	for _, t := range totals {
		if t.ID != 0 {
			live[t.Name] = true
		}
	}
	value := map[string]decimal.Decimal{}
	for _, it := range items {
		key := it.Category
		if !live[key] {
			key = domain.Uncategorized
		}
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			continue
		}
		value[key] = value[key].Add(price.Mul(decimal.NewFromInt(int64(it.Stock))))
	}
	for i := range totals {
		key := totals[i].Name
		if totals[i].ID == 0 {
			key = domain.Uncategorized
		}
		totals[i].Value = value[key].StringFixed(2)
	}
	return totals, nil
}
