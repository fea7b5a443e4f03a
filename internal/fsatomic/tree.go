package fsatomic

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Matcher decides which relative paths are excluded from a tree operation.
//
// A pattern matches a path when it equals the path, is a directory prefix of
// it ("storage/logs" matches "storage/logs/app.log"), or glob-matches it. A
// pattern without a slash is also matched against every path element, so
// "*.log" or ".git" exclude at any depth.
type Matcher struct {
	patterns []string
}

// NewMatcher builds a Matcher; patterns are cleaned and made slash-separated
func NewMatcher(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.Trim(filepath.ToSlash(strings.TrimSpace(p)), "/")
		if p == "" || p == "." {
			continue
		}
		m.patterns = append(m.patterns, path.Clean(p))
	}
	return m
}

// With returns a copy of m with extra patterns
func (m *Matcher) With(patterns ...string) *Matcher {
	return NewMatcher(append(append([]string{}, m.Patterns()...), patterns...)...)
}

// Patterns returns the cleaned patterns
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Match reports whether rel (relative, either separator) is excluded
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = path.Clean(filepath.ToSlash(rel))
	for _, p := range m.patterns {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			for _, elem := range strings.Split(rel, "/") {
				if ok, _ := path.Match(p, elem); ok {
					return true
				}
			}
		}
	}
	return false
}

// Entry is a non-directory node found by Walk
type Entry struct {
	Rel  string // slash-separated path relative to the walked root
	Mode fs.FileMode
}

// Walk visits every regular file and symlink below root that is not
// excluded, in lexical order. Excluded directories are not descended.
func Walk(root string, exclude *Matcher, fn func(e Entry) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if exclude.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && info.Mode()&fs.ModeSymlink == 0 {
			// sockets, devices and pipes are not part of an application tree
			return nil
		}
		return fn(Entry{Rel: rel, Mode: info.Mode()})
	})
}

// EmptyDirs lists the directories below root, minus exclusions, that have
// no entries at all.
func EmptyDirs(root string, exclude *Matcher) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if exclude.Match(rel) {
			return filepath.SkipDir
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

// CopyEntry copies srcRoot/rel to dstRoot/rel. Regular files are replaced
// atomically with their mode preserved; symlinks are recreated.
func CopyEntry(srcRoot, dstRoot string, e Entry) error {
	src := filepath.Join(srcRoot, filepath.FromSlash(e.Rel))
	dst := filepath.Join(dstRoot, filepath.FromSlash(e.Rel))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", e.Rel, err)
	}

	if e.Mode&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", e.Rel, err)
		}
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to replace %s: %w", e.Rel, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("failed to create link %s: %w", e.Rel, err)
		}
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.Rel, err)
	}
	defer func() { _ = f.Close() }()

	// a directory in the way of a file cannot be renamed over
	if info, err := os.Lstat(dst); err == nil && info.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to replace %s: %w", e.Rel, err)
		}
	}
	if err := WriteReader(dst, f, e.Mode.Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.Rel, err)
	}
	return nil
}

// Exists reports whether rel exists below root (without following links)
func Exists(root, rel string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}
