package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stockroom/internal/domain"
)

func newItemCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage inventory items",
	}
	cmd.AddCommand(newItemAddCommand(opts))
	cmd.AddCommand(newItemUpdateCommand(opts))
	cmd.AddCommand(newItemRmCommand(opts))
	cmd.AddCommand(newItemLsCommand(opts))
	cmd.AddCommand(newItemPurgeCommand(opts))
	return cmd
}

// itemFlags binds the editable item fields to a command.
type itemFlags struct {
	name, price, category, rfid, image string
	stock                              int
}

func (f *itemFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "item name")
	cmd.Flags().StringVar(&f.price, "price", "", "unit price, e.g. 12.50")
	cmd.Flags().IntVar(&f.stock, "stock", 0, "units in stock")
	cmd.Flags().StringVar(&f.category, "category", "", "category name (empty for Uncategorized)")
	cmd.Flags().StringVar(&f.rfid, "rfid", "", "RFID tag; tagged items are mirrored to the bridge")
	cmd.Flags().StringVar(&f.image, "image", "", "image path")
}

// apply copies the flags that were set on cmd onto it.
func (f *itemFlags) apply(cmd *cobra.Command, it *domain.Item) {
	set := cmd.Flags().Changed
	if set("name") {
		it.Name = f.name
	}
	if set("price") {
		it.Price = f.price
	}
	if set("stock") {
		it.Stock = f.stock
	}
	if set("category") {
		it.Category = f.category
	}
	if set("rfid") {
		it.RFID = f.rfid
	}
	if set("image") {
		it.Image = f.image
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid item id %q", s))
	}
	return id, nil
}

func printItem(w io.Writer, verb string, it domain.Item) {
	if it.RFID != "" {
		fmt.Fprintf(w, "Item %d %s (%s, tag %s).\n", it.ID, verb, it.Name, it.RFID)
		return
	}
	fmt.Fprintf(w, "Item %d %s (%s).\n", it.ID, verb, it.Name)
}

func newItemAddCommand(opts *RootOptions) *cobra.Command {
	var f itemFlags
	var scan bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			var it domain.Item
			f.apply(cmd, &it)
			if scan && it.RFID == "" {
				if it.RFID, err = e.scans.RequestScan(cmd.Context()); err != nil {
					return remoteErr("scan", err)
				}
			}
			saved, err := e.inv.AddItem(cmd.Context(), it)
			if err != nil {
				return refuse("add item", err)
			}
			return e.out.Print(saved, func(w io.Writer) { printItem(w, "added", saved) })
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&scan, "scan", false, "read the tag from the scanner instead of --rfid")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newItemUpdateCommand(opts *RootOptions) *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an item; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			it, err := e.items.Get(cmd.Context(), id)
			if err != nil {
				return refuse("update item", err)
			}
			f.apply(cmd, &it)
			saved, err := e.inv.UpdateItem(cmd.Context(), it)
			if err != nil {
				return refuse("update item", err)
			}
			return e.out.Print(saved, func(w io.Writer) { printItem(w, "updated", saved) })
		},
	}
	f.bind(cmd)
	return cmd
}

func newItemRmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			gone, err := e.inv.DeleteItem(cmd.Context(), id)
			if err != nil {
				return refuse("delete item", err)
			}
			return e.out.Print(gone, func(w io.Writer) { printItem(w, "deleted", gone) })
		},
	}
}

func newItemLsCommand(opts *RootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			var items []domain.Item
			if cmd.Flags().Changed("category") {
				items, err = e.inv.ListByCategory(cmd.Context(), category)
			} else {
				items, err = e.inv.ListItems(cmd.Context())
			}
			if err != nil {
				return refuse("list items", err)
			}
			if items == nil {
				items = []domain.Item{}
			}
			return e.out.Print(items, func(w io.Writer) { printItems(w, items) })
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category (Uncategorized for loose items)")
	return cmd
}

func printItems(w io.Writer, items []domain.Item) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSTOCK\tPRICE\tRFID")
	for _, it := range items {
		cat := it.Category
		if cat == "" {
			cat = domain.Uncategorized
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, cat, it.Stock, it.Price, it.RFID)
	}
	_ = tw.Flush()
}

func newItemPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-uncategorized",
		Short: "Delete every item that has no category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			gone, err := e.inv.DeleteUncategorized(cmd.Context())
			if err != nil {
				return refuse("purge items", err)
			}
			return e.out.Print(map[string]int{"deleted": len(gone)}, func(w io.Writer) {
				fmt.Fprintf(w, "%d uncategorized item(s) deleted.\n", len(gone))
			})
		},
	}
}
