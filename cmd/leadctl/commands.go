package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/store"
)

type ingestOptions struct {
	encoding  string
	delimiter string
	isTest    string
}

func newIngestCmd(a *app) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Validate a csv, xlsx or json lead file and store every row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ingestOpts, err := opts.build()
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runIngest(cmd, a, args[0], ingestOpts)
		},
	}

	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "Text encoding of csv files: utf-8 or windows-1251 (default: detect)")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "", "CSV field delimiter (default: detect)")
	cmd.Flags().StringVar(&opts.isTest, "test", "", "Override meta.is_test of every lead: true or false")
	return cmd
}

func (o ingestOptions) build() (core.IngestOptions, error) {
	opts := core.IngestOptions{Encoding: o.encoding}
	if o.delimiter != "" {
		runes := []rune(o.delimiter)
		if len(runes) != 1 {
			return opts, fmt.Errorf("invalid --delimiter %q: must be a single character", o.delimiter)
		}
		opts.Delimiter = runes[0]
	}
	if o.isTest != "" {
		v, ok := core.ParseBool(o.isTest)
		if !ok {
			return opts, fmt.Errorf("invalid --test %q: must be true or false", o.isTest)
		}
		opts.IsTest = &v
	}
	return opts, nil
}

func runIngest(cmd *cobra.Command, a *app, path string, opts core.IngestOptions) error {
	if _, err := core.ParseExt(path); err != nil {
		return withCode(exitUsage, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := a.service.IngestFile(cmd.Context(), filepath.Base(path), data, opts)
	var batch *core.BatchValidationError
	if errors.As(err, &batch) {
		for _, f := range batch.Failures {
			fmt.Fprintln(cmd.ErrOrStderr(), f.String())
		}
		return fmt.Errorf("%d of %d rows failed during %s; nothing was stored",
			len(batch.Failures), batch.Rows, batch.Phase)
	}
	if err != nil {
		return fmt.Errorf("%s (%s)", core.FormatUserError(err), err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

type exportOptions struct {
	ext    string
	where  string
	order  string
	output string
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored leads to a csv, xlsx or json file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext, err := core.ParseExtName(opts.ext)
			if err != nil {
				return withCode(exitUsage, err)
			}
			var filter store.Filter
			if opts.where != "" {
				if !json.Valid([]byte(opts.where)) {
					return withCode(exitUsage, &store.InvalidFilterError{Field: "where", Reason: "must be valid JSON"})
				}
				filter.Where = json.RawMessage(opts.where)
			}
			if opts.order != "" {
				if !json.Valid([]byte(opts.order)) {
					return withCode(exitUsage, &store.InvalidFilterError{Field: "order", Reason: "must be valid JSON"})
				}
				filter.Order = json.RawMessage(opts.order)
			}

			file, err := a.service.ExportLeads(cmd.Context(), filter, ext)
			if err != nil {
				return err
			}
			return deliver(cmd, file, opts.output)
		},
	}

	cmd.Flags().StringVar(&opts.ext, "ext", "csv", "Output format: csv, xlsx or json")
	cmd.Flags().StringVar(&opts.where, "where", "", `JSON object the stored lead must contain, e.g. '{"stream":"a"}'`)
	cmd.Flags().StringVar(&opts.order, "order", "", `JSON sort order, e.g. '{"applied_at":"desc"}'`)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (default: generated name in the current directory)")
	return cmd
}

func newTemplateCmd(a *app) *cobra.Command {
	var (
		ext        string
		exampleRow bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty lead file with the accepted columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := core.ParseExtName(ext)
			if err != nil {
				return withCode(exitUsage, err)
			}
			file, err := a.service.Template(cmd.Context(), e, exampleRow)
			if err != nil {
				return err
			}
			return deliver(cmd, file, output)
		},
	}

	cmd.Flags().StringVar(&ext, "ext", "csv", "Output format: csv, xlsx or json")
	cmd.Flags().BoolVar(&exampleRow, "example-row", false, "Fill one row from the first stored lead")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: generated name in the current directory)")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the leads table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, ok := a.store.(*store.PostgresStore)
			if !ok {
				return withCode(exitUsage, fmt.Errorf("migrate needs the postgres store driver, got %q", a.cfg.Store.Driver))
			}
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "leads table ready")
			return nil
		},
	}
}

// deliver moves an export file to output, or to its generated name in the
// working directory.
func deliver(cmd *cobra.Command, file *core.ExportFile, output string) error {
	defer os.Remove(file.Path)

	if output == "" {
		output = file.Name
	}
	if err := copyFile(file.Path, output); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d rows)\n", output, file.Rows)
	return nil
}

// copyFile copies rather than renames since the export directory may be on
// another device.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
