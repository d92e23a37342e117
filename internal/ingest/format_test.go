package ingest

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "leads.csv", want: FormatCSV},
		{name: "leads.xlsx", want: FormatXLSX},
		{name: "leads.xls", want: FormatXLS},
		{name: "LEADS.CSV", want: FormatCSV},
		{name: "archive.2024.xlsx", want: FormatXLSX},
		{name: "leads.txt", wantErr: true},
		{name: "leads.csv.zip", wantErr: true},
		{name: "leads", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatOf(tt.name)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FormatOf(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFormatExt(t *testing.T) {
	if FormatXLSX.Ext() != ".xlsx" {
		t.Fatalf("unexpected ext %q", FormatXLSX.Ext())
	}
}

func TestHeaderSchemaLogsIncompleteHeader(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	if s := headerSchema([]string{"\ufeffFirstName", "Phone", "Notes"}); !s.Complete() {
		t.Fatal("expected complete schema after BOM trim")
	}
	if buf.Len() != 0 {
		t.Fatalf("complete header should not log, got %q", buf.String())
	}

	if s := headerSchema([]string{"firstname", "Phone"}); s.Complete() {
		t.Fatal("expected incomplete schema")
	}
	if !strings.Contains(buf.String(), "upload header lacks recognized columns") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
