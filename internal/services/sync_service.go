package services

import (
	"context"
	"errors"

	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
	"stockroom/internal/repos"
)

// SyncService applies bridge broadcasts to the local store and routes replies
// to whoever is waiting for them. It is the session's inbound handler; the
// session itself retires acknowledged writes.
type SyncService struct {
	Items      *repos.ItemRepo
	Categories *repos.CategoryRepo
	Scans      *ScanService
	Queries    *QueryService
}

func (s *SyncService) HandleMessage(ctx context.Context, msg protocol.Message) {
	cmd := msg.Command.String()
	switch msg.Command {
	case protocol.CmdItemUpdated:
		rec := msg.Record()
		if rec.RFID == "" {
			applog.Warn(nil, "sync.apply", errors.New("broadcast without tag"), map[string]any{"cmd": cmd})
			return
		}
		created, err := s.Items.UpsertByTag(ctx, rec)
		if err != nil {
			applog.Error(nil, "sync.apply", err, map[string]any{"cmd": cmd, "tag": rec.RFID})
			return
		}
		applog.Info(nil, "sync.apply", map[string]any{"cmd": cmd, "tag": rec.RFID, "created": created})

	case protocol.CmdItemRemoved:
		tag := msg.Arg(0)
		removed, err := s.Items.DeleteByTag(ctx, tag)
		if err != nil {
			applog.Error(nil, "sync.apply", err, map[string]any{"cmd": cmd, "tag": tag})
			return
		}
		applog.Info(nil, "sync.apply", map[string]any{"cmd": cmd, "tag": tag, "existed": removed})

	case protocol.CmdCategoryAdd:
		name := msg.Arg(0)
		if name == "" {
			return
		}
		if _, err := s.Categories.Create(ctx, name); err != nil && !errors.Is(err, repos.ErrDuplicate) {
			applog.Error(nil, "sync.apply", err, map[string]any{"cmd": cmd, "name": name})
			return
		}
		applog.Info(nil, "sync.apply", map[string]any{"cmd": cmd, "name": name})

	case protocol.CmdItemSaved, protocol.CmdItemNotSaved, protocol.CmdError:
		if msg.Command != protocol.CmdItemSaved {
			applog.Warn(nil, "sync.rejected", errors.New(msg.String()), map[string]any{"cmd": cmd})
		}

	case protocol.CmdPingRFID:
		// scan requests from other clients are for scanners

	case protocol.CmdRFID, protocol.CmdRFIDBusy, protocol.CmdRFIDTimeout:
		if s.Scans != nil {
			s.Scans.Deliver(msg)
		}

	case protocol.CmdItemFound, protocol.CmdItemNotFound, protocol.CmdItemList:
		if s.Queries != nil {
			s.Queries.Deliver(msg)
		}

	default:
		applog.Warn(nil, "sync.unexpected", nil, map[string]any{"cmd": cmd})
	}
}

// Pull replaces local knowledge of every bridge row with the bridge's current
// version. Local-only items are left alone.
func (s *SyncService) Pull(ctx context.Context) (int, error) {
	if s.Queries == nil {
		return 0, errors.New("pull needs a query channel")
	}
	rows, err := s.Queries.ListRemote(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.RFID == "" {
			continue
		}
		if _, err := s.Items.UpsertByTag(ctx, r); err != nil {
			return n, err
		}
		n++
	}
	applog.Info(nil, "sync.pull", map[string]any{"rows": n})
	return n, nil
}
