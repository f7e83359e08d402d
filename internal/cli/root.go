// Package cli is a command-line host for the sync engine. It stands in for
// the desktop application: it can run the background scheduler, trigger a
// single cycle and inspect or reset the local sync state.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/app"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/engine"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Exit codes.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitSysError  = 2
)

// env is shared by every command of one invocation.
type env struct {
	cfg      *config.Config
	jsonOut  bool
	onStatus func(engine.StatusEvent)
	opts     app.Options
}

// open initializes the engine for one command. The caller must Close or
// Shutdown the returned app.
func (e *env) open(ctx context.Context) (*app.App, error) {
	opts := e.opts
	if e.onStatus != nil {
		opts.OnStatus = e.onStatus
	}
	return app.Initialize(ctx, e.cfg, opts)
}

// NewRootCmd builds the command tree. opts is passed to app.Initialize and
// lets tests inject collaborators.
func NewRootCmd(opts app.Options) *cobra.Command {
	e := &env{opts: opts}

	root := &cobra.Command{
		Use:     "regifarm-sync",
		Short:   "Offline-first sync engine for RegiFarm",
		Version: Version,
		Long: `regifarm-sync keeps a local SQLite cache of the RegiFarm farm data in
step with the remote service. Local edits are queued in an outbox and pushed
first; the server state is then pulled and applied.

Settings come from defaults, an optional --config file, REGIFARM_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVar(&e.jsonOut, "json", false, "output as JSON")

	root.AddCommand(
		newRunCmd(e),
		newSyncCmd(e),
		newStatusCmd(e),
		newResetCmd(e),
		newLoginCmd(e),
		newOutboxCmd(e),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "regifarm-sync", Version)
		},
	}
}
