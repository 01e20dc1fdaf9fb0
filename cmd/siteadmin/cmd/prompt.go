package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readSecret prompts on stderr and reads one line without echo when stdin is a
// terminal. Piped input is read line by line.
func (a *app) readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if a.in == nil {
		a.in = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := a.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	if err == io.EOF && line == "" {
		return "", fmt.Errorf("read password: no input")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
