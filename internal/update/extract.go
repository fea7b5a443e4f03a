package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adamancini/keel/internal/fsatomic"
	"github.com/adamancini/keel/internal/types"
)

// errUnsafePath is returned for archive entries that would land outside
// the extraction directory
var errUnsafePath = errors.New("archive entry escapes extraction directory")

// detectArchive identifies the artifact format from its magic bytes
func detectArchive(file string) (types.ArchiveFormat, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 4)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return types.DetectArchiveFormat(header[:n])
}

// extractArchive unpacks file into dst
func extractArchive(file, dst string) error {
	format, err := detectArchive(file)
	if err != nil {
		return err
	}

	switch format {
	case types.ArchiveZip:
		return extractZip(file, dst)
	case types.ArchiveTarGz:
		return extractTarGz(file, dst)
	default:
		return format.Validate()
	}
}

// safeJoin resolves an archive entry name below dst
func safeJoin(dst, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	for _, elem := range strings.Split(slashed, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: %s", errUnsafePath, name)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if clean == "" {
		return dst, nil
	}
	return filepath.Join(dst, filepath.FromSlash(clean)), nil
}

// writeLink creates a symlink at linkPath, rejecting targets that resolve
// outside dst
func writeLink(dst, linkPath, target string) error {
	if filepath.IsAbs(target) || strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: absolute link target %s", errUnsafePath, target)
	}
	resolved := filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(target))
	rel, err := filepath.Rel(dst, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: link target %s", errUnsafePath, target)
	}

	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return err
	}
	_ = os.RemoveAll(linkPath)
	return os.Symlink(target, linkPath)
}

func fileMode(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm
}

func extractZip(file, dst string) error {
	r, err := zip.OpenReader(file)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			_ = rc.Close()
			if err != nil {
				return err
			}
			if err := writeLink(dst, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			err = fsatomic.WriteReader(target, rc, fileMode(mode))
			_ = rc.Close()
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func extractTarGz(file, dst string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar archive: %w", err)
		}

		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeLink(dst, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fsatomic.WriteReader(target, tr, fileMode(hdr.FileInfo().Mode())); err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
		default:
			// hard links, devices and fifos have no place in a release
			continue
		}
	}
}

// contentRoot returns the single top-level directory wrapping all of dir's
// entries, or dir itself
func contentRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
