package updater

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
)

type stubSource struct {
	found bool
	err   error
}

func (s stubSource) DetectLatest(context.Context, selfupdate.Repository) (*selfupdate.Release, bool, error) {
	return nil, s.found, s.err
}

func (s stubSource) UpdateTo(context.Context, *selfupdate.Release, string) error {
	return errors.New("not called")
}

func newTestUpdater(t *testing.T, src Source) *Updater {
	t.Helper()
	exe := filepath.Join(t.TempDir(), "mfweb")
	if err := os.WriteFile(exe, []byte("v1"), 0o755); err != nil {
		t.Fatal(err)
	}
	u, err := NewWithSource(src, Options{BackupDir: t.TempDir(), Executable: exe}, slog.Default())
	if err != nil {
		t.Fatalf("NewWithSource: %v", err)
	}
	return u
}

func TestCheckNoReleases(t *testing.T) {
	u := newTestUpdater(t, stubSource{})
	if _, err := u.Check(context.Background()); !errors.Is(err, ErrNoReleases) {
		t.Errorf("err = %v, want ErrNoReleases", err)
	}
}

func TestCheckSourceError(t *testing.T) {
	boom := errors.New("rate limited")
	u := newTestUpdater(t, stubSource{err: boom})

	if _, err := u.Check(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Check err = %v", err)
	}
	if _, err := u.Apply(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Apply err = %v", err)
	}
	if u.Backups().Available() {
		t.Error("backup taken although nothing was installed")
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	u := newTestUpdater(t, stubSource{})
	if _, err := u.Rollback(); !errors.Is(err, ErrNoBackup) {
		t.Errorf("err = %v, want ErrNoBackup", err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(t.TempDir(), "mfweb")
	if err := os.WriteFile(exe, []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}

	b, err := NewBackups(dir, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Create(exe, "1.0.0"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(exe, []byte("new"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := b.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, _ := os.ReadFile(exe)
	if string(data) != "old" {
		t.Errorf("executable = %q, want old", data)
	}

	reopened, err := NewBackups(dir, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Available() || reopened.Version() != "1.0.0" {
		t.Errorf("reloaded backup: available=%v version=%q", reopened.Available(), reopened.Version())
	}
}
