package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/legrandjeremy/maxence-rag/application/reconcile"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"

	"github.com/spf13/cobra"
)

// Backend is what the commands need from a wired container.
type Backend interface {
	Reconcile(ctx context.Context, dryRun bool, only string) (reconcile.Report, error)
	Scan(ctx context.Context, entityType keys.EntityType) ([]storage.StoredRecord, error)
	Counter(ctx context.Context, contactID, category string) (entities.PictureCategory, error)
	Health(ctx context.Context) error
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the playerctl root command. open is called once a
// subcommand runs, so --help never touches AWS.
func NewRootCommand(open func(ctx context.Context) (Backend, func(), error)) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "playerctl",
		Short: "Operate the player management table",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newReconcileCommand(opts, open))
	cmd.AddCommand(newScanCommand(opts, open))
	cmd.AddCommand(newCounterCommand(opts, open))
	cmd.AddCommand(newHealthCommand(open))
	return cmd
}

func withBackend(cmd *cobra.Command, open func(ctx context.Context) (Backend, func(), error), fn func(Backend) error) error {
	backend, cleanup, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(backend)
}

func newReconcileCommand(opts *RootOptions, open func(ctx context.Context) (Backend, func(), error)) *cobra.Command {
	var dryRun bool
	var only string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount category counters and repair team pointers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if only != "" && only != "counters" && only != "pointers" {
				return fmt.Errorf("invalid --only %q: must be counters or pointers", only)
			}
			return withBackend(cmd, open, func(b Backend) error {
				report, err := b.Reconcile(cmd.Context(), dryRun, only)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return writeReport(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without writing")
	cmd.Flags().StringVar(&only, "only", "", "run one pass: counters or pointers")
	return cmd
}

func newScanCommand(opts *RootOptions, open func(ctx context.Context) (Backend, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <entity-type>",
		Short: "List every record of one entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, ok := keys.ParseEntityType(args[0])
			if !ok {
				return fmt.Errorf("unknown entity type %q", args[0])
			}
			return withBackend(cmd, open, func(b Backend) error {
				recs, err := b.Scan(cmd.Context(), entityType)
				if err != nil {
					return err
				}
				headers := make([]storage.Header, len(recs))
				for i, r := range recs {
					headers[i] = r.Header
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), headers)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPK\tSK\tUPDATED")
				for _, h := range headers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.ID, h.PK, h.SK, h.UpdatedAt)
				}
				return w.Flush()
			})
		},
	}
}

func newCounterCommand(opts *RootOptions, open func(ctx context.Context) (Backend, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "counter <contact-id> <category>",
		Short: "Show a category picture counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				cat, err := b.Counter(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), cat)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %d pictures (updated %s)\n",
					cat.ContactID, cat.Category, cat.TotalPictures, cat.LastUpdatedAt)
				return err
			})
		},
	}
}

func newHealthCommand(open func(ctx context.Context) (Backend, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the table is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				if err := b.Health(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			})
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(w io.Writer, r reconcile.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "dry run:\t%t\n", r.DryRun)
	fmt.Fprintf(tw, "categories checked:\t%d\n", r.CategoriesChecked)
	for _, d := range r.Drift {
		fmt.Fprintf(tw, "  drift %s/%s:\t%d -> %d\n", d.ContactID, d.Category, d.Stored, d.Actual)
	}
	fmt.Fprintf(tw, "users checked:\t%d\n", r.UsersChecked)
	for _, p := range r.Repairs {
		fmt.Fprintf(tw, "  repair %s:\t%q -> %q\n", p.UserID, p.OldTeamID, p.NewTeamID)
	}
	return tw.Flush()
}
