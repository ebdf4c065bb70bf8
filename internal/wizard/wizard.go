// Package wizard asks the interactive questions of the concept commands.
// Terminals get huh forms; piped input is read line by line.
package wizard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrUnexpectedEOF is returned when input ends before a question is answered.
var ErrUnexpectedEOF = errors.New("unexpected end of input")

// IsTTY reports whether in is an interactive terminal.
func IsTTY(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// AskConceptName prompts for the name of a concept board.
func AskConceptName(in io.Reader, out io.Writer) (string, error) {
	if IsTTY(in) {
		var name string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Concept name").
					Description("The board to search constituents for").
					Placeholder("低空经济").
					Value(&name).
					Validate(validateName),
			),
		).
			WithInput(in).
			WithOutput(out)
		if err := form.Run(); err != nil {
			return "", fmt.Errorf("prompt failed: %w", err)
		}
		return strings.TrimSpace(name), nil
	}

	fmt.Fprint(out, "Concept name: ") //nolint:errcheck
	line, err := readLine(bufio.NewReader(in))
	if err != nil {
		return "", err
	}
	if err := validateName(line); err != nil {
		return "", err
	}
	return line, nil
}

// Confirm asks a yes/no question. An empty answer means no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if IsTTY(in) {
		var ok bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(question).
					Affirmative("Yes").
					Negative("No").
					Value(&ok),
			),
		).
			WithInput(in).
			WithOutput(out)
		if err := form.Run(); err != nil {
			return false, fmt.Errorf("prompt failed: %w", err)
		}
		return ok, nil
	}

	fmt.Fprintf(out, "%s [y/N]: ", question) //nolint:errcheck
	line, err := readLine(bufio.NewReader(in))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	case "", "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid answer %q: expected y or n", line)
	}
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("concept name is required")
	}
	return nil
}

// readLine returns the next line without its terminator. A final line
// without a newline is accepted; no input at all is ErrUnexpectedEOF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			return "", ErrUnexpectedEOF
		}
	} else if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
