package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rei0925/MFWeb/internal/encoders"
)

// ValidationResult is the outcome of probing the preferred encoders.
type ValidationResult struct {
	Available []string
	Working   []string
	Failed    map[string]error
	Selected  string
}

// ValidateEncoders lists the encoders in ffmpeg and probes every preferred
// one that is present. Selected is the first working preference, or the
// software fallback.
func ValidateEncoders(ctx context.Context, binary string, preferred []string, timeout time.Duration) (*ValidationResult, error) {
	list, err := encoders.List(ctx, binary)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Available: list.Names(),
		Failed:    make(map[string]error),
		Selected:  encoders.Fallback,
	}
	for _, name := range preferred {
		if !list.Has(name) {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := encoders.Probe(probeCtx, binary, name)
		cancel()
		if err != nil {
			result.Failed[name] = err
			continue
		}
		result.Working = append(result.Working, name)
	}
	if len(result.Working) > 0 {
		result.Selected = result.Working[0]
	}
	return result, nil
}

// CreateValidateEncodersCmd creates the validate-encoders command.
func CreateValidateEncodersCmd() *cobra.Command {
	var binary string
	var timeout time.Duration
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate-encoders",
		Short: "Check which H.264 encoders work on this machine",
		Long: `Lists the video encoders compiled into ffmpeg and encodes a few test frames
with each preferred one to find out which actually work. Hardware encoders are
often listed even when no device or driver is present.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := ValidateEncoders(cmd.Context(), binary, encoders.DefaultPreference, timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintf(out, "%d video encoders available\n", len(result.Available))
				for _, name := range result.Working {
					fmt.Fprintf(out, "  ok    %s\n", name)
				}
				for name, err := range result.Failed {
					fmt.Fprintf(out, "  fail  %s: %v\n", name, err)
				}
			}
			fmt.Fprintf(out, "selected: %s\n", result.Selected)
			return nil
		},
	}

	cmd.Flags().StringVar(&binary, "ffmpeg", "ffmpeg", "ffmpeg binary")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-encoder probe timeout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the selected encoder")
	return cmd
}
