package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/Rei0925/MFWeb/cmd"
	"github.com/Rei0925/MFWeb/internal/api"
	"github.com/Rei0925/MFWeb/internal/cast"
	"github.com/Rei0925/MFWeb/internal/compositor"
	"github.com/Rei0925/MFWeb/internal/config"
	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/ffmpeg"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/hls"
	"github.com/Rei0925/MFWeb/internal/logging"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/metrics"
	"github.com/Rei0925/MFWeb/internal/metrics/exporters"
	"github.com/Rei0925/MFWeb/internal/mjpeg"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Render settings
	RenderWidth           int    `help:"Frame width in pixels" default:"1920" toml:"render.width" env:"RENDER_WIDTH"`
	RenderHeight          int    `help:"Frame height in pixels" default:"1080" toml:"render.height" env:"RENDER_HEIGHT"`
	RenderTickerHeight    int    `help:"Ticker strip height in pixels" default:"40" toml:"render.ticker_height" env:"RENDER_TICKER_HEIGHT"`
	RenderFrameIntervalMs int    `help:"Compositor period in milliseconds" default:"150" toml:"render.frame_interval_ms" env:"RENDER_FRAME_INTERVAL_MS"`
	RenderFontFile        string `help:"TrueType font with CJK glyphs (default: first system IPA/Takao/Droid font, else Roboto without CJK)" default:"" toml:"render.font_file" env:"RENDER_FONT_FILE"`

	// Ticker settings
	TickerIntervalMs int `help:"Ticker step period in milliseconds" default:"25" toml:"ticker.interval_ms" env:"TICKER_INTERVAL_MS"`
	TickerStep       int `help:"Pixels moved per ticker step" default:"3" toml:"ticker.step" env:"TICKER_STEP"`

	// Chart cycle settings
	CycleRotateIntervalMs  int `help:"Company pair rotation period in milliseconds" default:"10000" toml:"cycle.rotate_interval_ms" env:"CYCLE_ROTATE_INTERVAL_MS"`
	CycleRefreshIntervalMs int `help:"Chart data refresh period in milliseconds" default:"5000" toml:"cycle.refresh_interval_ms" env:"CYCLE_REFRESH_INTERVAL_MS"`

	// Market simulator settings
	MarketCompanies      string `help:"Comma-separated name=price list (default: built-in list)" default:"" toml:"market.companies" env:"MARKET_COMPANIES"`
	MarketStepIntervalMs int    `help:"Simulator step period in milliseconds" default:"1000" toml:"market.step_interval_ms" env:"MARKET_STEP_INTERVAL_MS"`
	MarketHistory        int    `help:"Points kept per price series" default:"500" toml:"market.history" env:"MARKET_HISTORY"`
	MarketNewsPercent    int    `help:"Chance of a headline per step, in percent" default:"10" toml:"market.news_percent" env:"MARKET_NEWS_PERCENT"`

	// HLS settings
	HlsEnabled        bool   `help:"Run the ffmpeg HLS encoder" default:"true" toml:"hls.enabled" env:"HLS_ENABLED"`
	HlsOutputDir      string `help:"Playlist and segment directory" default:"stream/hls" toml:"hls.output_dir" env:"HLS_OUTPUT_DIR"`
	HlsFfmpeg         string `help:"ffmpeg binary" default:"ffmpeg" toml:"hls.ffmpeg" env:"HLS_FFMPEG"`
	HlsEncoder        string `help:"Video encoder" default:"h264_nvenc" toml:"hls.encoder" env:"HLS_ENCODER"`
	HlsAutoEncoder    bool   `help:"Pick the best encoder ffmpeg lists at session start" default:"false" toml:"hls.auto_encoder" env:"HLS_AUTO_ENCODER"`
	HlsPreset         string `help:"Encoder preset" default:"p1" toml:"hls.preset" env:"HLS_PRESET"`
	HlsFps            int    `help:"Declared input frame rate" default:"60" toml:"hls.fps" env:"HLS_FPS"`
	HlsSegmentSeconds int    `help:"Target segment length in seconds" default:"1" toml:"hls.segment_seconds" env:"HLS_SEGMENT_SECONDS"`
	HlsListSize       int    `help:"Segments kept in the playlist" default:"5" toml:"hls.list_size" env:"HLS_LIST_SIZE"`
	HlsQueueCapacity  int    `help:"Frames buffered for the encoder" default:"100" toml:"hls.queue_capacity" env:"HLS_QUEUE_CAPACITY"`
	HlsFeedIntervalMs int    `help:"Feeder period in milliseconds" default:"16" toml:"hls.feed_interval_ms" env:"HLS_FEED_INTERVAL_MS"`
	HlsBitrate        string `help:"Target bitrate" default:"6000k" toml:"hls.bitrate" env:"HLS_BITRATE"`
	HlsMaxrate        string `help:"Maximum bitrate" default:"8000k" toml:"hls.maxrate" env:"HLS_MAXRATE"`
	HlsBufsize        string `help:"Rate control buffer size" default:"12000k" toml:"hls.bufsize" env:"HLS_BUFSIZE"`
	HlsGop            int    `help:"Keyframe interval in frames" default:"120" toml:"hls.gop" env:"HLS_GOP"`
	HlsProgress       bool   `help:"Collect ffmpeg progress for metrics" default:"true" toml:"hls.progress" env:"HLS_PROGRESS"`

	// Multipart JPEG settings
	MjpegIntervalMs int `help:"Delay between parts in milliseconds" default:"33" toml:"mjpeg.interval_ms" env:"MJPEG_INTERVAL_MS"`
	MjpegQuality    int `help:"JPEG quality" default:"90" toml:"mjpeg.quality" env:"MJPEG_QUALITY"`
	MjpegMaxClients int `help:"Concurrent viewers, 0 for unlimited" default:"0" toml:"mjpeg.max_clients" env:"MJPEG_MAX_CLIENTS"`

	// Caster settings
	CastAutostart bool `help:"Start the caster with the server" default:"true" toml:"cast.autostart" env:"CAST_AUTOSTART"`

	// Auth settings
	AuthUsername string `help:"Basic auth username for control endpoints" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password for control endpoints" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsPrometheus bool `help:"Serve /metrics" default:"true" toml:"metrics.prometheus" env:"METRICS_PROMETHEUS"`
	MetricsSse        bool `help:"Publish encoder metrics on /api/metrics" default:"true" toml:"metrics.sse" env:"METRICS_SSE"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCast       string `help:"Caster logging level" default:"info" toml:"logging.cast" env:"LOGGING_CAST"`
	LoggingCompositor string `help:"Compositor logging level" default:"info" toml:"logging.compositor" env:"LOGGING_COMPOSITOR"`
	LoggingHls        string `help:"HLS session logging level" default:"info" toml:"logging.hls" env:"LOGGING_HLS"`
	LoggingFfmpeg     string `help:"ffmpeg output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingMjpeg      string `help:"Multipart stream logging level" default:"info" toml:"logging.mjpeg" env:"LOGGING_MJPEG"`
	LoggingApi        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHttp       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"cast":       o.LoggingCast,
			"compositor": o.LoggingCompositor,
			"hls":        o.LoggingHls,
			"ffmpeg":     o.LoggingFfmpeg,
			"mjpeg":      o.LoggingMjpeg,
			"api":        o.LoggingApi,
			"http":       o.LoggingHttp,
		},
	}
}

func (o *Options) castConfig() cast.Config {
	cfg := cast.DefaultConfig()
	cfg.Width = o.RenderWidth
	cfg.Height = o.RenderHeight
	cfg.TickerHeight = o.RenderTickerHeight
	cfg.FrameInterval = ms(o.RenderFrameIntervalMs)
	cfg.TickerInterval = ms(o.TickerIntervalMs)
	cfg.TickerStep = o.TickerStep
	cfg.RotateInterval = ms(o.CycleRotateIntervalMs)
	cfg.RefreshInterval = ms(o.CycleRefreshIntervalMs)
	cfg.MarketInterval = ms(o.MarketStepIntervalMs)
	cfg.FeedInterval = ms(o.HlsFeedIntervalMs)
	return cfg
}

func (o *Options) hlsConfig() hls.Config {
	p := ffmpeg.DefaultHLSParams()
	p.Binary = o.HlsFfmpeg
	p.Width = o.RenderWidth
	p.Height = o.RenderHeight
	p.FPS = o.HlsFps
	p.Encoder = o.HlsEncoder
	p.Preset = o.HlsPreset
	p.Bitrate = o.HlsBitrate
	p.MaxRate = o.HlsMaxrate
	p.BufSize = o.HlsBufsize
	p.GOP = o.HlsGop
	p.OutputDir = o.HlsOutputDir
	p.SegmentSeconds = o.HlsSegmentSeconds
	p.ListSize = o.HlsListSize
	return hls.Config{
		Params:        p,
		QueueCapacity: o.HlsQueueCapacity,
		AutoEncoder:   o.HlsAutoEncoder,
		Progress:      o.HlsProgress,
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		eventBus := events.New()

		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		companyList := opts.MarketCompanies
		if companyList == "" {
			companyList = market.DefaultCompanies
		}
		companies, err := market.ParseCompanyList(companyList)
		if err != nil {
			logger.Error("Invalid company list", "error", err)
			os.Exit(1)
		}
		font, err := compositor.LoadFont(opts.RenderFontFile)
		if err != nil {
			logger.Error("Failed to load font", "error", err)
			os.Exit(1)
		}
		if missing := compositor.MissingGlyphs(font, compositor.CJKSample); len(missing) > 0 {
			logger.Warn("Font cannot draw Japanese text; set render.font_file to a CJK TrueType font",
				"missing", string(missing))
		}

		simulator := market.NewSimulator(market.SimulatorConfig{
			Companies:  companies,
			History:    opts.MarketHistory,
			NewsChance: float64(opts.MarketNewsPercent) / 100,
			Seed:       uint64(time.Now().UnixNano()),
		})
		cache := frame.NewCache(opts.RenderWidth, opts.RenderHeight)

		var encoder *hls.Manager
		var hlsFiles *hls.Files
		if opts.HlsEnabled {
			hlsConfig := opts.hlsConfig()
			encoder = hls.NewManager(hlsConfig, logging.GetLogger("hls"), logging.GetLogger("ffmpeg"), eventBus)
			hlsFiles = hls.NewFiles(hlsConfig.Params.OutputDir, logging.GetLogger("hls"))
		}

		caster := cast.New(opts.castConfig(), simulator, cache, panel.ChartRenderer{Font: font}, font,
			encoder, eventBus, logging.GetLogger("cast"))

		mjpegConfig := mjpeg.Config{
			Interval:   ms(opts.MjpegIntervalMs),
			Quality:    opts.MjpegQuality,
			MaxClients: opts.MjpegMaxClients,
		}
		viewer := mjpeg.New(mjpegConfig, cache, logging.GetLogger("mjpeg"), eventBus)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Caster:       caster,
			EventBus:     eventBus,
			MJPEG:        viewer,
			HLSFiles:     hlsFiles,
			Viewers:      viewer.Clients,
			FFmpegBinary: opts.HlsFfmpeg,
		}
		if opts.MetricsPrometheus {
			apiOpts.PrometheusHandler = metrics.Handler()
		}

		server, err := api.NewServer(apiOpts)
		if err != nil {
			logger.Error("Failed to create API server", "error", err)
			os.Exit(1)
		}

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSse && encoder != nil {
			sseExporter = exporters.NewSSEExporter(eventBus, encoder.EncoderStatus)
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Starting", "version", version.Banner())

			if sseExporter != nil {
				sseExporter.Start(ctx)
			}

			if opts.Config != "" {
				watcher := config.NewWatcher(opts.Config, config.LoadLoggingConfig, func(c logging.Config) {
					logging.SetLevels(c.Level, c.Modules)
					logger.Info("Logging levels reloaded", "level", c.Level)
				}, 0, logging.GetLogger("config"))
				go func() {
					if watchErr := watcher.Run(ctx); watchErr != nil {
						logger.Warn("Config watcher stopped", "error", watchErr)
					}
				}()
			}

			if opts.CastAutostart {
				if startErr := caster.Start(ctx); startErr != nil {
					logger.Error("Failed to start caster", "error", startErr)
				}
			}

			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")

			// Streams first so handler goroutines return before the frame source stops.
			viewer.Close()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := caster.Stop(); stopErr != nil {
				logger.Error("Error stopping caster", "error", stopErr)
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			cancel()
		})
	})

	cli.Root().Use = "mfweb"
	cli.Root().Short = "Live market dashboard over multipart JPEG and HLS"
	cli.Root().Version = version.Banner()

	cli.Root().AddCommand(cmd.CreateValidateEncodersCmd())
	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}
