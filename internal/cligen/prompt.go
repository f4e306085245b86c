package cligen

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// confirm asks a yes/no question on out and reads the answer from in. Only
// "y" and "yes" count as agreement.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// promptSecret reads a value without echo. It refuses when in is not a terminal.
func promptSecret(in io.Reader, out io.Writer, name string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.Errorf("--%s is required and stdin is not a terminal", name)
	}
	fmt.Fprintf(out, "%s: ", name)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", name)
	}
	return string(b), nil
}
