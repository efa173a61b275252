package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add items from a CSV file",
		Long: `Add items from a CSV file with a header row. Columns are matched by name
(Category, Name, Stock, Price, Image, RFID); only Name is required. Rows whose
tag is already present are skipped and reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, true)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			rep, err := e.csv.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return refuse("import", err)
			}
			return e.out.Print(rep, func(w io.Writer) { fmt.Fprintln(w, rep.String()) })
		},
	}
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write every item to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			n, err := e.csv.ExportFile(cmd.Context(), args[0])
			if err != nil {
				return refuse("export", err)
			}
			return e.out.Print(map[string]any{"file": args[0], "items": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%d item(s) written to %s.\n", n, args[0])
			})
		},
	}
}
