package debuglog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndLines(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "sub", "debug.log"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.Append("update", at)
	l.Append("render", at.Add(time.Second))
	l.Append("update", at.Add(2*time.Second))

	all, err := l.Lines(0)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Lines(0) returned %d lines, want 3", len(all))
	}
	if want := "2024-05-01T12:00:00Z: update"; all[0] != want {
		t.Fatalf("first line = %q, want %q", all[0], want)
	}

	last, err := l.Lines(2)
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	if len(last) != 2 || last[0] != "2024-05-01T12:00:01Z: render" {
		t.Fatalf("Lines(2) = %q", last)
	}
}

func TestNilLog(t *testing.T) {
	var l *Log
	l.Append("ignored", time.Now())
	lines, err := l.Lines(10)
	if err != nil || lines != nil {
		t.Fatalf("Lines() on nil log = %v, %v", lines, err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() on nil log = %v", err)
	}
}
