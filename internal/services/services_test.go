package services_test

import (
	"errors"
	"sync"
	"testing"

	"stockroom/internal/protocol"
	"stockroom/internal/repos"
	"stockroom/internal/services"
)

func memstore(t *testing.T) *repos.Store {
	t.Helper()
	s := repos.NewStore()
	if err := s.Open(":memory:"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recSender records what would have gone out on the sync channel.
type recSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (r *recSender) Send(msg protocol.Message) error {
	if r.fail {
		return errors.New("unencodable")
	}
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, raw)
	r.mu.Unlock()
	return nil
}

func (r *recSender) frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func newInventory(t *testing.T) (*services.InventoryService, *recSender) {
	t.Helper()
	s := memstore(t)
	link := &recSender{}
	return services.NewInventoryService(repos.NewItemRepo(s), repos.NewCategoryRepo(s), link), link
}
