package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stockroom/internal/domain"
	applog "stockroom/internal/log"
)

// remoteErr turns an unanswered request into a refusal the user can act on.
func remoteErr(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, msg, errors.New("bridge did not answer in time"))
	}
	return refuse(msg, err)
}

func newScanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Ask the bridge for one RFID read and print the tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			tag, err := e.scans.RequestScan(cmd.Context())
			if err != nil {
				return remoteErr("scan", err)
			}
			return e.out.Print(map[string]string{"rfid": tag}, func(w io.Writer) {
				fmt.Fprintln(w, tag)
			})
		},
	}
}

func newLookupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup TAG",
		Short: "Show the bridge's row for a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			rec, err := e.queries.Lookup(cmd.Context(), args[0])
			if err != nil {
				return remoteErr("lookup", err)
			}
			return e.out.Print(rec, func(w io.Writer) { printRecord(w, rec) })
		},
	}
}

func printRecord(w io.Writer, r domain.Record) {
	cat := r.Category
	if cat == "" {
		cat = domain.Uncategorized
	}
	fmt.Fprintf(w, "%s  %s  %s  %s\n", r.RFID, r.Name, r.Price, cat)
}

func newPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Copy every bridge row into the local inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			n, err := e.sync.Pull(cmd.Context())
			if err != nil {
				return remoteErr("pull", err)
			}
			return e.out.Print(map[string]int{"pulled": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%d item(s) pulled from the bridge.\n", n)
			})
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var pull bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Stay connected and apply bridge updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(context.Background())

			ctx := cmd.Context()
			if pull {
				n, err := e.sync.Pull(ctx)
				if err != nil {
					return remoteErr("pull", err)
				}
				e.out.VerboseLog("%d item(s) pulled", n)
			}
			e.out.VerboseLog("listening for bridge updates")
			<-ctx.Done()
			applog.Info(nil, "sync.stop", map[string]any{"state": e.mgr.State().String()})
			return nil
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "pull every bridge row before listening")
	return cmd
}
