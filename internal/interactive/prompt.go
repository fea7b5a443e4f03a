// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/adamancini/keel/internal/backup"
)

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseNo  Response = iota // Anything but an explicit yes
	ResponseYes                 // Proceed
)

// Prompter handles interactive confirmation before destructive commands.
type Prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt displays a question and reads the response. End of input and
// unrecognized answers count as no.
func (p *Prompter) prompt(format string, args ...interface{}) Response {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/N] ")

	if !p.scanner.Scan() {
		_, _ = fmt.Fprintln(p.out)
		return ResponseNo
	}

	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return ResponseYes
	case "", "n", "no":
		return ResponseNo
	default:
		_, _ = fmt.Fprintln(p.out, "Invalid response, treating as no.")
		return ResponseNo
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	return p.prompt(format, args...) == ResponseYes
}

// ConfirmRestore describes the backup and asks before it overwrites root.
func (p *Prompter) ConfirmRestore(rec *backup.Record, root string, prune bool) bool {
	_, _ = fmt.Fprintln(p.out, "Backup to restore:")
	_, _ = fmt.Fprintf(p.out, "  ID:      %s\n", rec.ID)
	_, _ = fmt.Fprintf(p.out, "  Created: %s\n", rec.CreatedAt.Local().Format(time.RFC1123))
	if rec.AppVersion != "" {
		_, _ = fmt.Fprintf(p.out, "  Version: %s\n", rec.AppVersion)
	}
	if rec.Note != "" {
		_, _ = fmt.Fprintf(p.out, "  Note:    %s\n", rec.Note)
	}
	_, _ = fmt.Fprintf(p.out, "  Files:   %d\n", rec.Files())
	if prune {
		_, _ = fmt.Fprintln(p.out, "Files not in the backup will be deleted.")
	}

	return p.Confirm("Restore this backup over %s?", root)
}
