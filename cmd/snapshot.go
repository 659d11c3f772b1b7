package cmd

import (
	"bufio"
	"fmt"
	"image/jpeg"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rei0925/MFWeb/internal/cast"
	"github.com/Rei0925/MFWeb/internal/compositor"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/logging"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/ticker"
)

// SnapshotOptions controls a one-off render.
type SnapshotOptions struct {
	Output    string
	FontFile  string
	Companies string
	Steps     int // simulator steps before rendering
	Ticks     int // ticker steps before rendering
	Quality   int
	Seed      uint64
	Width     int
	Height    int
}

// Snapshot renders one dashboard frame from a fresh simulator and writes it
// as a JPEG.
func Snapshot(opts SnapshotOptions) error {
	companies, err := market.ParseCompanyList(opts.Companies)
	if err != nil {
		return err
	}
	font, err := compositor.LoadFont(opts.FontFile)
	if err != nil {
		return err
	}

	cfg := cast.DefaultConfig()
	if opts.Width > 0 && opts.Height > 0 {
		cfg.Width, cfg.Height = opts.Width, opts.Height
	}

	sim := market.NewSimulator(market.SimulatorConfig{
		Companies:  companies,
		NewsChance: 0.2,
		Seed:       opts.Seed,
	})
	for range opts.Steps {
		sim.Step()
	}

	cache := frame.NewCache(cfg.Width, cfg.Height)
	engine := ticker.NewEngine(ticker.Config{FrameWidth: cfg.Width, Step: cfg.TickerStep},
		sim, compositor.Measurer(compositor.NewFace(font, cfg.FontSize)))
	for range opts.Ticks {
		engine.Tick()
	}

	comp := compositor.New(compositor.Config{
		Width:        cfg.Width,
		Height:       cfg.Height,
		TickerHeight: cfg.TickerHeight,
		History:      cfg.History,
	}, sim, engine, cache, panel.ChartRenderer{Font: font}, compositor.NewFace(font, cfg.FontSize), logging.GetLogger("compositor"))
	comp.Rotate()
	comp.Refresh()
	f := comp.Render()

	out, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.Output, err)
	}
	w := bufio.NewWriter(out)
	if err := jpeg.Encode(w, f.Image, &jpeg.Options{Quality: opts.Quality}); err != nil {
		out.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", opts.Output, err)
	}
	return out.Close()
}

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	opts := SnapshotOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render one dashboard frame to a JPEG file",
		Long:  `Seeds the market simulator, advances it, and writes a single composed frame. Useful for checking fonts and layout without starting the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := Snapshot(opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.Output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "snapshot.jpg", "Output JPEG file")
	flags.StringVar(&opts.FontFile, "font", "", "TrueType font with CJK glyphs (default: system CJK font, else Roboto)")
	flags.StringVar(&opts.Companies, "companies", market.DefaultCompanies, "Comma-separated name=price list")
	flags.IntVar(&opts.Steps, "steps", 50, "Simulator steps before rendering")
	flags.IntVar(&opts.Ticks, "ticks", 300, "Ticker steps before rendering")
	flags.IntVar(&opts.Quality, "quality", 90, "JPEG quality")
	flags.Uint64Var(&opts.Seed, "seed", 1, "Simulator seed")
	flags.IntVar(&opts.Width, "width", 0, "Frame width (default 1920)")
	flags.IntVar(&opts.Height, "height", 0, "Frame height (default 1080)")
	return cmd
}
