package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/engine"
)

// exitError carries the process exit code for main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitUserError
}

func sysError(err error) error { return &exitError{code: ExitSysError, err: err} }

// render writes v as indented JSON when asJSON is set, otherwise calls human.
func render(w io.Writer, asJSON bool, v any, human func(io.Writer)) error {
	if !asJSON {
		human(w)
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printResult(w io.Writer, r engine.Result) {
	switch {
	case r.Skipped:
		fmt.Fprintf(w, "sync skipped: %s\n", r.Reason)
		return
	case !r.Success:
		fmt.Fprintf(w, "sync failed: %s\n", r.Reason)
	default:
		kind := "incremental"
		if r.Full {
			kind = "full"
		}
		fmt.Fprintf(w, "%s sync of azienda %d completed in %s\n", kind, r.TenantID, r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  push: %d created, %d updated, %d deleted, %d converged, %d failed\n",
		r.Push.Created, r.Push.Updated, r.Push.Deleted, r.Push.Converged, r.Push.Failed)
	fmt.Fprintf(w, "  pull: %d applied, %d failed, %d skipped, %d malformed tables\n",
		r.Pull.Applied, r.Pull.Failed, r.Pull.Skipped, r.Pull.Malformed)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
