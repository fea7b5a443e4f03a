package interactive

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/adamancini/keel/internal/backup"
)

func TestPrompterResponses(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Response
	}{
		{"yes", "y\n", ResponseYes},
		{"yes word", "YES\n", ResponseYes},
		{"yes with spaces", "  y  \n", ResponseYes},
		{"no", "n\n", ResponseNo},
		{"empty line", "\n", ResponseNo},
		{"end of input", "", ResponseNo},
		{"invalid", "maybe\n", ResponseNo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			p := NewPrompterWithIO(strings.NewReader(tt.input), output)

			if got := p.prompt("Proceed?"); got != tt.want {
				t.Errorf("prompt() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(output.String(), "Proceed? [y/N]") {
				t.Errorf("output = %q", output.String())
			}
		})
	}
}

func TestPrompterInvalidResponse(t *testing.T) {
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("invalid\n"), output)

	if p.Confirm("Delete %s?", "x") {
		t.Error("Confirm() = true for invalid input")
	}
	if !strings.Contains(output.String(), "Invalid response") {
		t.Errorf("expected 'Invalid response' message in output")
	}
	if !strings.Contains(output.String(), "Delete x?") {
		t.Errorf("question not formatted: %q", output.String())
	}
}

func TestPrompterSequentialQuestions(t *testing.T) {
	p := NewPrompterWithIO(strings.NewReader("n\ny\n"), &bytes.Buffer{})

	if p.Confirm("first?") {
		t.Error("first answer should be no")
	}
	if !p.Confirm("second?") {
		t.Error("second answer should be yes")
	}
}

func TestConfirmRestore(t *testing.T) {
	rec := &backup.Record{
		ID:          "20260601-090000.000000",
		CreatedAt:   time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Note:        "before update to 2.0.0",
		AppVersion:  "1.4.2",
		SourcePaths: []string{"index.php", "lib/a.php"},
	}

	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("y\n"), output)

	if !p.ConfirmRestore(rec, "/srv/app", true) {
		t.Error("ConfirmRestore() = false, want true")
	}

	out := output.String()
	for _, want := range []string{rec.ID, "1.4.2", "before update to 2.0.0", "Files:   2", "will be deleted", "over /srv/app?"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfirmRestore_NoPrune(t *testing.T) {
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("n\n"), output)

	rec := &backup.Record{ID: "20260601-090000.000000", CreatedAt: time.Now()}
	if p.ConfirmRestore(rec, "/srv/app", false) {
		t.Error("ConfirmRestore() = true, want false")
	}
	if strings.Contains(output.String(), "will be deleted") || strings.Contains(output.String(), "Version:") {
		t.Errorf("unexpected lines in output:\n%s", output.String())
	}
}
