package sniper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverDefaults(t *testing.T) {
	raw := `
target_url: https://tickets.example.com/event
workers: 6
poll_interval: 1500ms
poll_backoff_cap: 20s
browser: chromedp
headless: true
detector:
  mode: keywords
  positive: ["buy now"]
checkout:
  fields:
    - selector: "#registration"
      value: "12345678"
  submit_selector: "#buy"
  confirm_markers: ["thank you for your order"]
`
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 1500*time.Millisecond, time.Duration(cfg.PollInterval))
	assert.Equal(t, 20*time.Second, time.Duration(cfg.PollBackoffCap))
	assert.Equal(t, "chromedp", cfg.Browser)
	assert.True(t, cfg.Headless)
	// Untouched keys keep their defaults.
	assert.Equal(t, 45*time.Second, time.Duration(cfg.CheckoutTimeout))
	assert.Equal(t, 5, cfg.MaxPollErrors)
	assert.Equal(t, []string{"buy now"}, cfg.Detector.Positive)
	require.Len(t, cfg.Checkout.Fields, 1)
	assert.Equal(t, "#registration", cfg.Checkout.Fields[0].Selector)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: fast\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := testConfig()
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"zero workers":       func(c *Config) { c.Workers = 0 },
		"negative workers":   func(c *Config) { c.Workers = -3 },
		"missing url":        func(c *Config) { c.TargetURL = "" },
		"relative url":       func(c *Config) { c.TargetURL = "/tickets" },
		"zero poll interval": func(c *Config) { c.PollInterval = 0 },
		"cap below interval": func(c *Config) { c.PollBackoffCap = c.PollInterval / 2 },
		"zero max errors":    func(c *Config) { c.MaxPollErrors = 0 },
		"zero timeout":       func(c *Config) { c.CheckoutTimeout = 0 },
		"no submit selector": func(c *Config) { c.Checkout.SubmitSelector = "" },
		"no confirm markers": func(c *Config) { c.Checkout.ConfirmMarkers = nil },
		"unknown browser":    func(c *Config) { c.Browser = "firefox" },
		"unknown detector":   func(c *Config) { c.Detector.Mode = "magic" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
