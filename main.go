package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/caarlos0/env/v11"

	"go2tv.app/embedplayer/internal/buildinfo"
	"go2tv.app/embedplayer/internal/diagnostics"
	"go2tv.app/embedplayer/internal/discovery"
	"go2tv.app/embedplayer/internal/dom"
	"go2tv.app/embedplayer/internal/dom/memdom"
	"go2tv.app/embedplayer/internal/domain"
	"go2tv.app/embedplayer/internal/lifecycle"
	"go2tv.app/embedplayer/internal/player"
	"go2tv.app/embedplayer/internal/widget"
	"go2tv.app/embedplayer/internal/widget/go2tvcast"
)

type hostConfig struct {
	LogLevel           string `env:"EMBEDPLAYER_LOG_LEVEL" envDefault:"info"`
	Device             string `env:"EMBEDPLAYER_DEVICE"`
	Source             string `env:"EMBEDPLAYER_SOURCE"`
	Width              int    `env:"EMBEDPLAYER_WIDTH" envDefault:"1280"`
	Height             int    `env:"EMBEDPLAYER_HEIGHT" envDefault:"720"`
	ProbeSize          bool   `env:"EMBEDPLAYER_PROBE_SIZE" envDefault:"true"`
	DiscoveryTimeoutMS int    `env:"EMBEDPLAYER_DISCOVERY_TIMEOUT_MS" envDefault:"2500"`
}

type selfTestOutput struct {
	Host struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"host"`
	Wiring struct {
		SurfaceTree   bool `json:"surface_tree"`
		CastWidget    bool `json:"cast_widget"`
		DiscoveryLoop bool `json:"discovery_loop"`
	} `json:"wiring"`
	Dependencies diagnostics.DependencyReport `json:"dependencies"`
}

func main() {
	selfTest := flag.Bool("self-test", false, "run dependency and wiring diagnostics then exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	var cfg hostConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse env: %v\n", err)
		os.Exit(1)
	}

	if *selfTest {
		out := selfTestOutput{Dependencies: diagnostics.DetectDependencies()}
		out.Host.Name = "embedplayer"
		out.Host.Version = buildinfo.Version
		out.Wiring.SurfaceTree = memdom.New() != nil
		out.Wiring.CastWidget = true
		out.Wiring.DiscoveryLoop = true

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	logger.Info(
		"embed_host_start",
		slog.String("host", "embedplayer"),
		slog.String("version", buildinfo.Version),
		slog.String("log_level", cfg.LogLevel),
	)

	if err := run(runCtx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg hostConfig, logger *slog.Logger) error {
	if strings.TrimSpace(cfg.Source) == "" {
		return errors.New("EMBEDPLAYER_SOURCE is required")
	}

	svc := discovery.NewService(discovery.Go2TVLoader{}, ctx)
	renderers, err := svc.Renderers(ctx, cfg.DiscoveryTimeoutMS)
	if err != nil {
		return fmt.Errorf("discover renderers: %w", err)
	}
	if len(renderers) == 0 {
		return errors.New("no renderers discovered")
	}

	target := &renderers[0]
	if cfg.Device != "" {
		target = discovery.Resolve(renderers, cfg.Device)
		if target == nil {
			return &domain.AdapterError{Code: domain.CodeDeviceNotFound, Message: fmt.Sprintf("renderer not found: %s", cfg.Device)}
		}
	}
	logger.Info("renderer_selected",
		slog.String("id", target.ID),
		slog.String("name", target.Name),
		slog.String("address", target.Address),
	)

	size := domain.Size{Width: cfg.Width, Height: cfg.Height}
	if cfg.ProbeSize {
		if probed, err := diagnostics.ProbeDimensions(ctx, cfg.Source); err == nil {
			size = probed
			logger.Info("probed_media_size", slog.Int("width", size.Width), slog.Int("height", size.Height))
		} else {
			logger.Debug("media_probe_skipped", slog.String("reason", err.Error()))
		}
	}

	doc := memdom.New()
	factory := go2tvcast.Factory{
		Logf: func(format string, args ...any) {
			logger.Debug("cast_widget", slog.String("detail", fmt.Sprintf(format, args...)))
		},
	}

	ready := make(chan struct{}, 1)
	p := player.New(doc, deviceBoundFactory{factory: factory, addr: target.Address}, player.Options{
		Width:    size.Width,
		Height:   size.Height,
		Source:   cfg.Source,
		AutoPlay: true,
		OnReady: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			logger.Warn("widget_error", slog.String("error", err.Error()))
		},
	})
	p.SetLogf(func(format string, args ...any) {
		logger.Debug("player", slog.String("detail", fmt.Sprintf(format, args...)))
	})
	defer p.Dispose()

	p.Once(domain.EventCanPlay, func() {
		logger.Info("media_can_play")
	})

	if err := p.Render(doc.Body()); err != nil {
		return fmt.Errorf("render player: %w", err)
	}
	logger.Info("player_decorated", slog.String("state", p.State().String()))

	select {
	case <-ready:
		logger.Info("widget_ready", slog.Int("width", p.Size().Width), slog.Int("height", p.Size().Height))
	case <-ctx.Done():
		return ctx.Err()
	}

	<-ctx.Done()
	logger.Info("embed_host_stopping", slog.String("reason", "signal"))
	return nil
}

// deviceBoundFactory stamps the renderer address onto the content
// element before instantiation, so the widget knows which device the
// session belongs to.
type deviceBoundFactory struct {
	factory go2tvcast.Factory
	addr    string
}

func (f deviceBoundFactory) Instantiate(content dom.Element) (widget.Handle, error) {
	content.SetAttr(go2tvcast.AddrAttr, f.addr)
	return f.factory.Instantiate(content)
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid EMBEDPLAYER_LOG_LEVEL=%q; defaulting to info\n", raw)
		return slog.LevelInfo
	}
}
