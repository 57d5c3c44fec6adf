// Package stage implements the per-country staging store: directory layout,
// ETag marker persistence, atomic text moves, and ZIP extraction.
package stage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

func init() {
	// Register a faster-than-stdlib DEFLATE decompressor for every
	// *zip.Reader this process opens. GeoNames country archives run from a
	// few KB up to tens of MB; klauspost/compress's flate implementation is
	// a drop-in io.ReadCloser-returning func, so this is the entire
	// integration cost.
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// Store roots all staging operations at a directory containing one
// subdirectory per country code.
type Store struct {
	root string
}

// New returns a Store rooted at root.
func New(root string) *Store { return &Store{root: root} }

// CountryDir returns <root>/<filename> without creating it.
func (s *Store) CountryDir(filename string) string {
	return filepath.Join(s.root, filename)
}

// EnsureDir makes sure <root>/<filename>/ exists.
func (s *Store) EnsureDir(filename string) (string, error) {
	dir := s.CountryDir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stage: ensure dir %q: %w", dir, err)
	}
	return dir, nil
}

// ETagPath returns <root>/<filename>/etag.
func (s *Store) ETagPath(filename string) string {
	return filepath.Join(s.CountryDir(filename), "etag")
}

// WriteETag whole-file-replaces the etag marker for filename.
func (s *Store) WriteETag(filename string, etag []byte) error {
	if _, err := s.EnsureDir(filename); err != nil {
		return err
	}
	tmp := s.ETagPath(filename) + ".tmp"
	if err := os.WriteFile(tmp, etag, 0o644); err != nil {
		return fmt.Errorf("stage: write etag: %w", err)
	}
	if err := os.Rename(tmp, s.ETagPath(filename)); err != nil {
		return fmt.Errorf("stage: rename etag: %w", err)
	}
	return nil
}

// ReadETag reads the current etag marker, if any. A missing file is reported
// as (nil, 0, false) rather than an error.
func (s *Store) ReadETag(filename string) (etag []byte, modTime int64, ok bool) {
	fi, err := os.Stat(s.ETagPath(filename))
	if err != nil {
		return nil, 0, false
	}
	b, err := os.ReadFile(s.ETagPath(filename))
	if err != nil {
		return nil, 0, false
	}
	return b, fi.ModTime().Unix(), true
}

// TextPath returns <root>/<filename>/<filename><ext>, the destination
// MoveText writes to.
func (s *Store) TextPath(filename, ext string) string {
	return filepath.Join(s.CountryDir(filename), filename+ext)
}

// ErrCleanupFailed wraps a failure to remove a transient file after its
// contents were already durably persisted elsewhere. Callers should log and
// continue rather than treat it as a failure of the operation itself.
var ErrCleanupFailed = errors.New("stage: cleanup failed")

// MoveText moves src (a temp path) to <root>/<filename>/<filename><ext>,
// copy-then-delete-source on cross-device errors.
func (s *Store) MoveText(filename, ext, src string) error {
	if _, err := s.EnsureDir(filename); err != nil {
		return err
	}
	dst := s.TextPath(filename, ext)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device: copy then remove the source.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("stage: reopen spool for copy: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("stage: create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("stage: copy spool: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("stage: close destination: %w", err)
	}
	if err := os.Remove(src); err != nil {
		// The destination is already written; only cleanup of the transient
		// source failed. Wrap as ErrCleanupFailed so the caller can log and
		// continue instead of failing the move.
		return fmt.Errorf("stage: remove spool after copy: %w: %w", ErrCleanupFailed, err)
	}
	return nil
}

// ErrArchiveFormat is returned when the ZIP archive cannot be opened or does
// not contain the expected <filename>.txt entry. Failures here are fatal for
// the country's refresh.
var ErrArchiveFormat = errors.New("stage: archive format error")

// ExtractZIP opens the ZIP archive at zipPath and extracts exactly the entry
// named filename+".txt" into <root>/<filename>/<filename>.txt, then removes
// zipPath.
func (s *Store) ExtractZIP(filename, zipPath string) error {
	dir, err := s.EnsureDir(filename)
	if err != nil {
		return err
	}
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrArchiveFormat, zipPath, err)
	}
	defer zr.Close()

	want := filename + ".txt"
	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == want {
			entry = f
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: %q missing entry %q", ErrArchiveFormat, zipPath, want)
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %v", ErrArchiveFormat, want, err)
	}
	defer rc.Close()

	dst := filepath.Join(dir, want)
	tmpDst := dst + ".tmp"
	out, err := os.Create(tmpDst)
	if err != nil {
		return fmt.Errorf("stage: create %q: %w", tmpDst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmpDst)
		return fmt.Errorf("%w: copy entry %q: %v", ErrArchiveFormat, want, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("stage: close %q: %w", tmpDst, err)
	}
	if err := os.Rename(tmpDst, dst); err != nil {
		return fmt.Errorf("stage: rename extracted text: %w", err)
	}
	if err := os.Remove(zipPath); err != nil {
		return fmt.Errorf("stage: remove transient zip: %w", err)
	}
	return nil
}

// RemoveTextFile deletes <root>/<filename>/<filename>.txt if present. Called
// after curation succeeds; the raw TSV is transient once curated.
func (s *Store) RemoveTextFile(filename string) error {
	p := filepath.Join(s.CountryDir(filename), filename+".txt")
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteFCPAtomic writes the curated FCP payload for filename via a sibling
// temp name then rename, so a reader never observes a partial file.
func (s *Store) WriteFCPAtomic(filename string, payload []byte) error {
	if _, err := s.EnsureDir(filename); err != nil {
		return err
	}
	dst := filepath.Join(s.CountryDir(filename), filename+"_fcp.txt")
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("stage: write fcp temp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("stage: rename fcp: %w", err)
	}
	return nil
}

// ReadFCP reads the existing curated FCP file for filename, if present.
func (s *Store) ReadFCP(filename string) ([]byte, error) {
	p := filepath.Join(s.CountryDir(filename), filename+"_fcp.txt")
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FCPPath returns the on-disk path of the curated FCP file for filename.
func (s *Store) FCPPath(filename string) string {
	return filepath.Join(s.CountryDir(filename), filename+"_fcp.txt")
}
