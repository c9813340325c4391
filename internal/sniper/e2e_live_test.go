package sniper

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
	"github.com/nbenliogludev/go-ticket-sniper/internal/detect"
)

// Live run against a real page. Opt-in:
//
//	SNIPER_E2E_URL=https://... go test -run TestLiveAcquisition ./internal/sniper
//
// The run is bounded, so a page that never goes on sale ends as NoWinner.
func TestLiveAcquisition(t *testing.T) {
	targetURL := os.Getenv("SNIPER_E2E_URL")
	if targetURL == "" {
		t.Skip("SNIPER_E2E_URL is not set")
	}

	cfg := DefaultConfig()
	cfg.TargetURL = targetURL
	cfg.Workers = 2
	cfg.Headless = true
	cfg.Checkout = CheckoutPlan{
		SubmitSelector: "button[type=submit]",
		ConfirmMarkers: []string{"order confirmed", "thank you"},
	}

	factory, err := browser.NewPlaywrightFactory(browser.PlaywrightOptions{
		Workers:  cfg.Workers,
		Headless: true,
		DataDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to init browser: %v", err)
	}
	defer factory.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	log.Printf("🚀 Racing %d live workers against %s...", cfg.Workers, targetURL)
	outcome := NewOrchestrator(cfg, factory, detect.DefaultKeywords(), slog.Default()).Run(ctx)

	t.Logf("outcome: %s (run %s)", outcome.Result, outcome.RunID)
	if outcome.Result == ResultFatal {
		t.Errorf("live run ended fatal: %v", outcome.Err)
	}
}
