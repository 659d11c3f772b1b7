// Package updater replaces the running binary with the latest GitHub release
// and keeps one backup for rollback.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/Rei0925/MFWeb/internal/version"
)

// DefaultRepository is the release source.
const DefaultRepository = "Rei0925/MFWeb"

var (
	// ErrNoReleases means the repository has no release for this platform.
	ErrNoReleases = errors.New("updater: no release found")
	// ErrUpToDate means the running version is already the latest.
	ErrUpToDate = errors.New("updater: already up to date")
)

// Source is the part of selfupdate.Updater used here.
type Source interface {
	DetectLatest(ctx context.Context, repo selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Options configures an Updater. Empty fields take defaults.
type Options struct {
	Repository string
	Prerelease bool
	BackupDir  string // default ~/.cache/mfweb/backup
	Executable string // default: the running binary
}

// Release describes the newest published version.
type Release struct {
	Current     string    `json:"current_version"`
	Latest      string    `json:"latest_version"`
	Notes       string    `json:"release_notes,omitempty"`
	URL         string    `json:"release_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Size        int       `json:"asset_size"`
	Available   bool      `json:"update_available"`
}

// Updater checks for and installs releases.
type Updater struct {
	source  Source
	repo    selfupdate.Repository
	exe     string
	backups *Backups
	logger  *slog.Logger
}

// New creates an updater backed by GitHub releases.
func New(opts Options, logger *slog.Logger) (*Updater, error) {
	gh, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	src, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     gh,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	return NewWithSource(src, opts, logger)
}

// NewWithSource creates an updater reading releases from src.
func NewWithSource(src Source, opts Options, logger *slog.Logger) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	if opts.Executable == "" {
		exe, err := selfupdate.ExecutablePath()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		opts.Executable = exe
	}
	backups, err := NewBackups(opts.BackupDir, logger)
	if err != nil {
		return nil, err
	}
	return &Updater{
		source:  src,
		repo:    selfupdate.ParseSlug(opts.Repository),
		exe:     opts.Executable,
		backups: backups,
		logger:  logger,
	}, nil
}

// Backups returns the backup store.
func (u *Updater) Backups() *Backups {
	return u.backups
}

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*Release, error) {
	rel, _, err := u.detect(ctx)
	return rel, err
}

func (u *Updater) detect(ctx context.Context) (*Release, *selfupdate.Release, error) {
	latest, found, err := u.source.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, nil, fmt.Errorf("detect latest release: %w", err)
	}
	if !found {
		return nil, nil, ErrNoReleases
	}

	current := version.Version
	rel := &Release{
		Current:     current,
		Latest:      latest.Version(),
		Notes:       latest.ReleaseNotes,
		URL:         latest.URL,
		PublishedAt: latest.PublishedAt,
		Size:        latest.AssetByteSize,
		// Development builds have no comparable version.
		Available: current == "dev" || latest.GreaterThan(current),
	}
	return rel, latest, nil
}

// Apply installs the latest release over the executable after backing it up.
// A failed install restores the backup. The caller restarts the process.
func (u *Updater) Apply(ctx context.Context) (*Release, error) {
	rel, latest, err := u.detect(ctx)
	if err != nil {
		return nil, err
	}
	if !rel.Available {
		return rel, ErrUpToDate
	}

	if err := u.backups.Create(u.exe, rel.Current); err != nil {
		return nil, err
	}

	u.logger.Info("Installing release", "from", rel.Current, "to", rel.Latest)
	if err := u.source.UpdateTo(ctx, latest, u.exe); err != nil {
		if restoreErr := u.backups.Restore(); restoreErr != nil {
			u.logger.Error("Failed to restore backup", "error", restoreErr)
		}
		return nil, fmt.Errorf("install %s: %w", rel.Latest, err)
	}
	return rel, nil
}

// Rollback restores the backed up executable.
func (u *Updater) Rollback() (string, error) {
	if err := u.backups.Restore(); err != nil {
		return "", err
	}
	return u.backups.Version(), nil
}
