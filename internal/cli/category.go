package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stockroom/internal/repos"
)

func newCategoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Manage categories",
	}
	cmd.AddCommand(newCategoryAddCommand(opts))
	cmd.AddCommand(newCategoryRmCommand(opts))
	cmd.AddCommand(newCategoryLsCommand(opts))
	return cmd
}

func newCategoryAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME",
		Short: "Create a category and announce it to the bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			c, err := e.inv.AddCategory(cmd.Context(), args[0])
			if err != nil {
				return refuse("add category", err)
			}
			return e.out.Print(c, func(w io.Writer) {
				fmt.Fprintf(w, "Category %q created.\n", c.Name)
			})
		},
	}
}

func newCategoryRmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a category; its items become Uncategorized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			ok, err := e.inv.DeleteCategory(cmd.Context(), args[0])
			if err != nil {
				return refuse("delete category", err)
			}
			if !ok {
				return refuse("delete category", fmt.Errorf("%q: %w", args[0], repos.ErrNotFound))
			}
			return e.out.Print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Category %q deleted.\n", args[0])
			})
		},
	}
}

func newCategoryLsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List categories with stock totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			totals, err := e.inv.CategoryTotals(cmd.Context())
			if err != nil {
				return refuse("list categories", err)
			}
			return e.out.Print(totals, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CATEGORY\tSTOCK\tVALUE")
				for _, t := range totals {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, t.TotalStock, t.Value)
				}
				_ = tw.Flush()
			})
		},
	}
}
