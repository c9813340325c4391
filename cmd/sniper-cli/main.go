package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
	"github.com/nbenliogludev/go-ticket-sniper/internal/detect"
	"github.com/nbenliogludev/go-ticket-sniper/internal/sniper"
)

func main() {
	os.Exit(run())
}

// run keeps all defers (browser driver shutdown, log file) ahead of the
// process exit code.
func run() int {
	var (
		configPath  = pflag.String("config", "", "path to YAML config")
		targetURL   = pflag.String("url", "", "ticketing page to watch")
		workers     = pflag.Int("workers", 0, "number of concurrent browser workers")
		browserKind = pflag.String("browser", "", "browser backend: playwright or chromedp")
		headless    = pflag.Bool("headless", false, "run browsers headless")
		proxy       = pflag.String("proxy", "", "proxy server for all sessions")
	)
	pflag.Parse()

	logger, logFile, err := setupLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "🚫 failed to set up logging: %v\n", err)
		return 2
	}
	defer logFile.Close()

	cfg := sniper.DefaultConfig()
	if *configPath != "" {
		cfg, err = sniper.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "🚫 %v\n", err)
			return 2
		}
	}

	// Flags win over the file.
	if *targetURL != "" {
		cfg.TargetURL = *targetURL
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *browserKind != "" {
		cfg.Browser = *browserKind
	}
	if *headless {
		cfg.Headless = true
	}
	if *proxy != "" {
		cfg.Proxy = *proxy
	}

	reader := bufio.NewReader(os.Stdin)
	if cfg.TargetURL == "" {
		fmt.Print("Ticket page URL: ")
		raw, _ := reader.ReadString('\n')
		cfg.TargetURL = strings.TrimSpace(raw)
	}
	if *workers == 0 && *configPath == "" {
		fmt.Printf("Worker count (empty = %d): ", cfg.Workers)
		raw, _ := reader.ReadString('\n')
		if s := strings.TrimSpace(raw); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "🚫 worker count must be a positive integer, got %q\n", s)
				return 2
			}
			cfg.Workers = n
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "🚫 %v\n", err)
		return 2
	}

	factory, stop, err := newFactory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "🚫 failed to start browser backend: %v\n", err)
		return 2
	}
	defer stop()

	detector, err := newDetector(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "🚫 failed to set up detector: %v\n", err)
		return 2
	}

	// Ctrl-C stops the race; every worker observes the cancel and closes its
	// browser before we exit.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	fmt.Printf("🎟  Racing %d workers against %s — Ctrl-C to stop.\n", cfg.Workers, cfg.TargetURL)

	outcome := sniper.NewOrchestrator(cfg, factory, detector, logger).Run(ctx)

	switch outcome.Result {
	case sniper.ResultSuccess:
		fmt.Printf("✅ Worker %d completed checkout. Check the confirmation in its browser window.\n", *outcome.WinnerID)
	case sniper.ResultNoWinner:
		fmt.Println("🏁 Run over, no worker got through checkout.")
	default:
		fmt.Fprintf(os.Stderr, "💥 Run failed: %v\n", outcome.Err)
	}

	return outcome.Result.ExitCode()
}

// setupLogger tees structured logs to stderr and sniper.log.
func setupLogger() (*slog.Logger, *os.File, error) {
	f, err := os.OpenFile("sniper.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h), f, nil
}

func newFactory(cfg sniper.Config) (browser.Factory, func(), error) {
	switch cfg.Browser {
	case "chromedp":
		f := browser.NewChromedpFactory(cfg.Workers, cfg.Headless, cfg.Proxy, cfg.ScreenW, cfg.ScreenH)
		return f, func() {}, nil
	default:
		f, err := browser.NewPlaywrightFactory(browser.PlaywrightOptions{
			Workers:  cfg.Workers,
			Headless: cfg.Headless,
			Proxy:    cfg.Proxy,
			ScreenW:  cfg.ScreenW,
			ScreenH:  cfg.ScreenH,
		})
		if err != nil {
			return nil, nil, err
		}
		return f, f.Stop, nil
	}
}

func newDetector(cfg sniper.Config) (detect.Detector, error) {
	switch cfg.Detector.Mode {
	case "openai":
		return detect.NewOpenAI()
	default:
		k := detect.DefaultKeywords()
		if len(cfg.Detector.Positive) > 0 {
			k.Positive = cfg.Detector.Positive
		}
		if len(cfg.Detector.Negative) > 0 {
			k.Negative = cfg.Detector.Negative
		}
		return k, nil
	}
}
