package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readToken prompts on w and reads a bearer token. On a terminal the input is
// not echoed; otherwise a single line is read from in.
func readToken(in io.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Auth token: "); err != nil {
		return "", err
	}

	fd := int(os.Stdin.Fd())
	if in == os.Stdin && isTerminal(fd) {
		b, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
