package upload

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

func TestStageAndRelease(t *testing.T) {
	s, err := NewStager(filepath.Join(t.TempDir(), "uploads"), 1024)
	if err != nil {
		t.Fatal(err)
	}

	f, err := s.Stage("leads.csv", ".csv", strings.NewReader("FirstName,Phone,Notes\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(f.Path) != s.Dir() {
		t.Fatalf("staged outside dir: %s", f.Path)
	}
	if filepath.Ext(f.Path) != ".csv" {
		t.Fatalf("expected .csv extension, got %s", f.Path)
	}
	if f.Name != "leads.csv" || f.Size != 22 {
		t.Fatalf("unexpected file %+v", f)
	}

	r, err := f.Open()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)
	_ = r.Close()
	if string(data) != "FirstName,Phone,Notes\n" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := f.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(f.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if err := f.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestStageTooLarge(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStager(dir, 4)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Stage("big.csv", ".csv", strings.NewReader("12345"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}

func TestStageExactLimit(t *testing.T) {
	s, err := NewStager(t.TempDir(), 4)
	if err != nil {
		t.Fatal(err)
	}
	f, err := s.Stage("ok.csv", ".csv", strings.NewReader("1234"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = f.Release() }()
	if f.Size != 4 {
		t.Fatalf("expected size 4, got %d", f.Size)
	}
}

func TestNewStagerRejectsZeroLimit(t *testing.T) {
	if _, err := NewStager(t.TempDir(), 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStageReadErrorCleansUp(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStager(dir, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stage("x.csv", ".csv", failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}
