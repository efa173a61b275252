package cli

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"stockroom/internal/config"
	"stockroom/internal/discovery"
	applog "stockroom/internal/log"
	"stockroom/internal/repos"
	"stockroom/internal/services"
	"stockroom/internal/session"
)

// env is everything one command invocation needs. mgr is nil for commands
// that never talk to the bridge.
type env struct {
	opts *RootOptions
	cfg  config.Config
	out  *OutputFormatter

	store   *repos.Store
	items   *repos.ItemRepo
	cats    *repos.CategoryRepo
	auth    *services.AuthService
	inv     *services.InventoryService
	csv     *services.CSVService
	sync    *services.SyncService
	scans   *services.ScanService
	queries *services.QueryService
	mgr     *session.Manager

	logFile io.Closer
}

// openEnv loads config, opens the local store and, when online is set,
// starts connecting to the bridge in the background.
func openEnv(cmd *cobra.Command, opts *RootOptions, online bool) (*env, error) {
	// config logs its effective values; keep that out of command output
	if !opts.Verbose {
		log.SetOutput(io.Discard)
	}
	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("STOCKROOM_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.DB != "" {
		cfg.DBDSN = opts.DB
	}
	if opts.Server != "" {
		cfg.ServerAddr = opts.Server
	}
	logFile, err := applog.Tee(cfg.LogFile, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open log file", err)
	}

	store := repos.NewStore()
	if err := store.Open(cfg.DBDSN); err != nil {
		_ = logFile.Close()
		return nil, WrapExitError(ExitCommandError, "open local store", err)
	}
	e := &env{
		opts: opts,
		cfg:  cfg,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		store:   store,
		items:   repos.NewItemRepo(store),
		cats:    repos.NewCategoryRepo(store),
		logFile: logFile,
	}
	e.auth = &services.AuthService{Users: repos.NewUserRepo(store)}
	e.inv = services.NewInventoryService(e.items, e.cats, nil)
	e.csv = &services.CSVService{Inventory: e.inv}
	if online {
		e.connect()
	}
	return e, nil
}

func (e *env) connect() {
	dialer := e.opts.dialer
	if dialer == nil {
		dialer = session.WSDialer{}
	}
	resolver := e.opts.resolver
	if resolver == nil {
		resolver = &discovery.Resolver{
			Ranges:     e.cfg.DiscoveryRanges,
			Port:       e.cfg.DiscoveryPort,
			BridgePort: e.cfg.BridgePort,
		}
	}
	e.sync = &services.SyncService{Items: e.items, Categories: e.cats}
	e.mgr = session.NewManager(session.Options{
		Dialer:            dialer,
		Resolver:          resolver,
		Handler:           e.sync,
		ReconnectDelay:    e.cfg.ReconnectDelay,
		MaxReconnectDelay: e.cfg.MaxReconnectDelay,
		QueueLimit:        e.cfg.QueueLimit,
		OnStateChange: func(s session.State) {
			e.out.VerboseLog("bridge: %s", s)
		},
	})
	e.scans = services.NewScanService(e.mgr, e.cfg.ScanTimeout+e.opts.Wait)
	e.queries = services.NewQueryService(e.mgr, e.opts.Wait)
	e.sync.Scans = e.scans
	e.sync.Queries = e.queries
	e.inv.Link = e.mgr
	e.mgr.Connect(e.cfg.ServerAddr)
}

// close drains outbound messages within --wait, reports what is left and
// releases everything. The local change stands either way.
func (e *env) close(ctx context.Context) {
	if e.mgr != nil {
		dctx, cancel := context.WithTimeout(ctx, e.opts.Wait)
		err := e.mgr.Drain(dctx)
		cancel()
		if n := e.mgr.Pending(); err != nil && n > 0 {
			e.out.Warn("%d message(s) not delivered to the bridge", n)
			applog.Warn(nil, "sync.undelivered", err, map[string]any{"pending": n})
		}
		e.mgr.Disconnect()
	}
	if err := e.store.Close(); err != nil {
		applog.Warn(nil, "store.close", err, nil)
	}
	_ = e.logFile.Close()
}

// refuse maps domain refusals to ExitFailure and everything else to
// ExitCommandError.
func refuse(msg string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalid),
		errors.Is(err, services.ErrBadCreds),
		errors.Is(err, repos.ErrDuplicate),
		errors.Is(err, repos.ErrNotFound),
		errors.Is(err, services.ErrScanBusy),
		errors.Is(err, services.ErrScanTimeout),
		errors.Is(err, services.ErrRemoteNotFound):
		return WrapExitError(ExitFailure, msg, err)
	}
	return WrapExitError(ExitCommandError, msg, err)
}
