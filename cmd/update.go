package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rei0925/MFWeb/internal/logging"
	"github.com/Rei0925/MFWeb/internal/systemd"
	"github.com/Rei0925/MFWeb/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	opts := updater.Options{}
	var check, rollback, user bool
	var unit string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install the latest release of mfweb",
		Long: `Replaces this binary with the latest GitHub release after backing it up.
With --restart the systemd unit running the server is restarted afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			u, err := updater.New(opts, logging.GetLogger("updater"))
			if err != nil {
				return err
			}

			switch {
			case rollback:
				v, err := u.Rollback()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "restored %s\n", v)
			case check:
				rel, err := u.Check(ctx)
				if err != nil {
					return err
				}
				if rel.Available {
					fmt.Fprintf(out, "update available: %s -> %s\n%s\n", rel.Current, rel.Latest, rel.URL)
				} else {
					fmt.Fprintf(out, "up to date (%s)\n", rel.Current)
				}
				return nil
			default:
				rel, err := u.Apply(ctx)
				if errors.Is(err, updater.ErrUpToDate) {
					fmt.Fprintf(out, "up to date (%s)\n", rel.Current)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "installed %s\n", rel.Latest)
			}

			if unit == "" {
				return nil
			}
			return restartUnit(ctx, unit, user)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Repository, "repo", updater.DefaultRepository, "GitHub owner/name to update from")
	flags.BoolVar(&opts.Prerelease, "prerelease", false, "Include prereleases")
	flags.BoolVar(&check, "check", false, "Only report whether an update is available")
	flags.BoolVar(&rollback, "rollback", false, "Restore the previous binary")
	flags.StringVar(&unit, "restart", "", "systemd unit to restart afterwards, e.g. mfweb.service")
	flags.BoolVar(&user, "user", false, "Use the user service manager for --restart")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}

func restartUnit(ctx context.Context, unit string, user bool) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, systemd.RestartTimeout)
		defer cancel()
	}
	m, err := systemd.NewManager(ctx, user)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Restart(ctx, unit); err != nil {
		return err
	}
	state, err := m.ActiveState(ctx, unit)
	if err != nil {
		return err
	}
	logging.GetLogger("updater").Info("Unit restarted", "unit", systemd.UnitName(unit), "state", state)
	return nil
}
