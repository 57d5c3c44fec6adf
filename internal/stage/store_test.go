package stage

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteETagAndRead(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	if err := s.WriteETag("LI", []byte(`"abc123"`)); err != nil {
		t.Fatal(err)
	}
	etag, _, ok := s.ReadETag("LI")
	if !ok {
		t.Fatal("expected etag to be present")
	}
	if string(etag) != `"abc123"` {
		t.Fatalf("got %q", etag)
	}
}

func TestReadETagMissing(t *testing.T) {
	s := New(t.TempDir())
	if _, _, ok := s.ReadETag("ZZ"); ok {
		t.Fatal("expected missing etag to report not-ok")
	}
}

func TestExtractZIP(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	zipPath := filepath.Join(root, "LI.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("LI.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("some\ttsv\tcontent\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.ExtractZIP("LI", zipPath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Fatal("expected zip to be removed after extraction")
	}
	got, err := os.ReadFile(filepath.Join(root, "LI", "LI.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "some\ttsv\tcontent\n" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractZIPMissingEntry(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	zipPath := filepath.Join(root, "LI.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	if _, err := zw.Create("readme.txt"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	err = s.ExtractZIP("LI", zipPath)
	if err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestWriteFCPAtomicAndRead(t *testing.T) {
	s := New(t.TempDir())
	payload := []byte("record1\x00record2\x00")
	if err := s.WriteFCPAtomic("LI", payload); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadFCP("LI")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}
