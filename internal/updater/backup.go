package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFilename     = "mfweb.backup"
	backupInfoFilename = "backup.json"
)

// ErrNoBackup is returned by Restore when nothing was backed up.
var ErrNoBackup = errors.New("updater: no backup available")

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// Backups keeps a single copy of the previous executable.
type Backups struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger *slog.Logger
}

// NewBackups opens the backup directory, creating it if needed, and loads any
// existing backup. An empty dir selects ~/.cache/mfweb/backup.
func NewBackups(dir string, logger *slog.Logger) (*Backups, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "mfweb", "backup")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	b := &Backups{dir: dir, logger: logger}
	b.load()
	return b, nil
}

func (b *Backups) load() {
	data, err := os.ReadFile(filepath.Join(b.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		b.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(b.dir, backupFilename)); err != nil {
		b.logger.Warn("Backup file missing", "dir", b.dir)
		return
	}
	b.info = &info
}

// Create copies exe into the backup directory, replacing any older backup.
func (b *Backups) Create(exe, version string) error {
	if err := copyFile(exe, filepath.Join(b.dir, backupFilename)); err != nil {
		return fmt.Errorf("back up %s: %w", exe, err)
	}

	info := backupInfo{Version: version, CreatedAt: time.Now(), ExecPath: exe}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()
	b.logger.Info("Backup created", "version", version)
	return nil
}

// Restore copies the backup over the executable it was taken from.
func (b *Backups) Restore() error {
	b.mu.RLock()
	info := b.info
	b.mu.RUnlock()
	if info == nil {
		return ErrNoBackup
	}

	if err := copyFile(filepath.Join(b.dir, backupFilename), info.ExecPath); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	b.logger.Info("Backup restored", "version", info.Version)
	return nil
}

// Available reports whether a backup exists.
func (b *Backups) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info != nil
}

// Version is the version of the backed up executable, or "".
func (b *Backups) Version() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.info == nil {
		return ""
	}
	return b.info.Version
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
