package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestJoinFD(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "procs")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := JoinFD(int(f.Fd()), 1234); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1234" {
		t.Errorf("joined pid = %q, want %q", b, "1234")
	}
}

func TestJoinPath(t *testing.T) {
	dir := t.TempDir()
	procs := filepath.Join(dir, Procs)
	if err := os.WriteFile(procs, nil, 0644); err != nil {
		t.Fatal(err)
	}

	pid := os.Getpid()
	if err := JoinPath(dir, pid); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(procs)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != strconv.Itoa(pid) {
		t.Errorf("joined pid = %q, want %d", b, pid)
	}
}

func TestJoinPathMissing(t *testing.T) {
	if err := JoinPath(t.TempDir(), 1); err == nil {
		t.Error("expected error for missing cgroup.procs, got nil")
	}
}

func TestJoinFDInvalid(t *testing.T) {
	if err := JoinFD(-1, 1); err == nil {
		t.Error("expected error for invalid fd, got nil")
	}
}
