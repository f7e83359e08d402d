package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/engine"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
)

func newRunCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background scheduler until interrupted",
		Long: `Run syncs immediately and then every --interval. On SIGINT or SIGTERM
the scheduler stops and pending local changes are pushed, bounded by
drain_timeout, before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return sysError(err)
			}
			if err := a.Run(cmd.Context()); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
}

func newSyncCmd(e *env) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !e.jsonOut {
				w := cmd.ErrOrStderr()
				e.onStatus = func(ev engine.StatusEvent) {
					fmt.Fprintf(w, "[%s] %s\n", ev.Phase, ev.State)
				}
			}
			a, err := e.open(ctx)
			if err != nil {
				return sysError(err)
			}
			defer a.Close()

			var res engine.Result
			if full {
				res = a.Engine().FullSync(ctx)
			} else {
				res = a.Engine().TriggerSync(ctx)
			}
			if err := render(cmd.OutOrStdout(), e.jsonOut, res, func(w io.Writer) { printResult(w, res) }); err != nil {
				return err
			}
			if !res.Success {
				return sysError(fmt.Errorf("sync failed: %s", res.Reason))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "ignore checkpoints and pull everything")
	return cmd
}

type statusReport struct {
	engine.Status
	NeedsInitialSync bool                 `json:"needs_initial_sync"`
	Outbox           []outbox.TableStats `json:"outbox"`
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync checkpoints and unsynced changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return sysError(err)
			}
			defer a.Close()

			rep := statusReport{
				Status:           a.Engine().Status(ctx),
				NeedsInitialSync: a.Engine().NeedsInitialSync(ctx),
			}
			if rep.Outbox, err = a.Store().Outbox().Stats(ctx); err != nil {
				return sysError(err)
			}
			return render(cmd.OutOrStdout(), e.jsonOut, rep, func(w io.Writer) { printStatus(w, rep) })
		},
	}
}

func printStatus(w io.Writer, rep statusReport) {
	tenant := "none"
	if rep.TenantID != 0 {
		tenant = fmt.Sprint(rep.TenantID)
	}
	fmt.Fprintf(w, "azienda:            %s\n", tenant)
	fmt.Fprintf(w, "initial sync done:  %t\n", rep.InitialSyncCompleted)
	fmt.Fprintf(w, "last sync:          %s\n", formatTime(rep.LastSync))
	fmt.Fprintf(w, "pending changes:    %d\n", rep.PendingOutbox)
	if len(rep.Outbox) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTABLE\tPENDING\tERROR")
	for _, s := range rep.Outbox {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Table, s.Pending, s.Error)
	}
	_ = tw.Flush()
}

func newResetCmd(e *env) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget sync checkpoints so the next cycle pulls everything",
		Long: `Reset clears the pull checkpoints. With --purge every synced row is
deleted as well; rows with unsynced local changes are always kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return sysError(err)
			}
			defer a.Close()

			if err := a.Engine().ResetSync(ctx, purge); err != nil {
				return sysError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync state reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete synced rows")
	return cmd
}

func newLoginCmd(e *env) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for the remote service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if token == "" {
				var err error
				if token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return fmt.Errorf("read token: %w", err)
				}
			}
			if token == "" {
				return errors.New("empty token")
			}

			a, err := e.open(ctx)
			if err != nil {
				return sysError(err)
			}
			defer a.Close()

			if err := a.SaveAuthToken(ctx, token); err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token value (prompted when omitted)")
	return cmd
}

func newOutboxCmd(e *env) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List outbox entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case "", outbox.StatusPending, outbox.StatusError, outbox.StatusSynced:
			default:
				return fmt.Errorf("unknown status %q (valid: pending, error, synced)", status)
			}

			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return sysError(err)
			}
			defer a.Close()

			entries, err := a.Store().Outbox().List(ctx, status, limit)
			if err != nil {
				return sysError(err)
			}
			return render(cmd.OutOrStdout(), e.jsonOut, entries, func(w io.Writer) { printEntries(w, entries) })
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, error or synced")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries (0 for all)")
	return cmd
}

func printEntries(w io.Writer, entries []outbox.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "outbox is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTABLE\tRECORD\tOP\tSTATUS\tATTEMPTS\tERROR")
	for _, en := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%d\t%s\n",
			en.ID, en.Table, en.RecordID, en.Operation, en.Status, en.Attempts, en.ErrorMessage)
	}
	_ = tw.Flush()
}

// Execute runs the command tree with ctx and returns the process exit code.
func Execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	}
	return ExitCode(err)
}
