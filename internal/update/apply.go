package update

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/keel/internal/fsatomic"
)

// DefaultInstallTimeout bounds the dependency installation command.
const DefaultInstallTimeout = 10 * time.Minute

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

// RunInDir executes a command in the specified directory.
func (r *DefaultCommandRunner) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// ArchiveApplier installs a release archive over the application tree and
// then runs the dependency installation command.
type ArchiveApplier struct {
	root           string
	stagingDir     string
	exclude        *fsatomic.Matcher
	installCommand string
	installTimeout time.Duration
	runner         CommandRunner
}

// NewArchiveApplier creates an applier for root. Archives are unpacked
// below stagingDir; paths matching excludes are never written.
func NewArchiveApplier(root, stagingDir string, excludes []string) *ArchiveApplier {
	return &ArchiveApplier{
		root:           root,
		stagingDir:     stagingDir,
		exclude:        fsatomic.NewMatcher(excludes...),
		installTimeout: DefaultInstallTimeout,
		runner:         &DefaultCommandRunner{},
	}
}

// WithInstallCommand sets the command run in root after the files are
// replaced. An empty command skips the step.
func (a *ArchiveApplier) WithInstallCommand(command string, timeout time.Duration) *ArchiveApplier {
	a.installCommand = command
	if timeout > 0 {
		a.installTimeout = timeout
	}
	return a
}

// WithRunner sets a custom command runner (for testing)
func (a *ArchiveApplier) WithRunner(r CommandRunner) *ArchiveApplier {
	a.runner = r
	return a
}

// Apply implements Applier. The report lists what was written even when
// Apply fails part way, so the caller can undo it.
func (a *ArchiveApplier) Apply(ctx context.Context, artifact string) (*ApplyReport, error) {
	report := &ApplyReport{}

	if err := os.MkdirAll(a.stagingDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create staging directory: %w", err)
	}
	staging, err := os.MkdirTemp(a.stagingDir, "extract-*")
	if err != nil {
		return report, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := extractArchive(artifact, staging); err != nil {
		return report, fmt.Errorf("failed to extract %s: %w", getFilename(artifact), err)
	}
	src, err := contentRoot(staging)
	if err != nil {
		return report, err
	}

	err = fsatomic.Walk(src, a.exclude, func(e fsatomic.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		existed := fsatomic.Exists(a.root, e.Rel)
		if err := fsatomic.CopyEntry(src, a.root, e); err != nil {
			return err
		}
		report.Written = append(report.Written, e.Rel)
		if !existed {
			report.Created = append(report.Created, e.Rel)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to replace application files: %w", err)
	}
	log.Infof("replaced %d files (%d new) in %s", len(report.Written), len(report.Created), a.root)

	if err := a.install(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// install runs the dependency installation command, if any
func (a *ArchiveApplier) install(ctx context.Context) error {
	if strings.TrimSpace(a.installCommand) == "" {
		return nil
	}
	argv, err := shellquote.Split(a.installCommand)
	if err != nil {
		return fmt.Errorf("invalid install command %q: %w", a.installCommand, err)
	}
	if len(argv) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.installTimeout)
	defer cancel()

	log.Infof("running %s in %s", a.installCommand, a.root)
	output, err := a.runner.RunInDir(ctx, a.root, argv[0], argv[1:]...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", a.installTimeout)
		}
		return fmt.Errorf("install command %q failed: %w\nOutput: %s", a.installCommand, err, strings.TrimSpace(string(output)))
	}
	log.Debugf("install output: %s", strings.TrimSpace(string(output)))
	return nil
}

// StagingPath returns where an artifact for version is downloaded
func StagingPath(stagingDir, version, downloadURL string) string {
	name := filepath.Base(strings.SplitN(downloadURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !isArchiveName(name) {
		name = "artifact"
	}
	return filepath.Join(stagingDir, NormalizeVersion(version)+"-"+name)
}
