package sniper

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration lets YAML carry "3s" / "500ms" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// FormField is one input of the checkout form: a CSS selector and the value
// to type into it.
type FormField struct {
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
}

// CheckoutPlan describes the purchase flow on the target site: fields to
// fill, the submit button, and text that proves the order went through.
type CheckoutPlan struct {
	Fields         []FormField `yaml:"fields"`
	SubmitSelector string      `yaml:"submit_selector"`
	ConfirmMarkers []string    `yaml:"confirm_markers"`
}

type DetectorConfig struct {
	Mode     string   `yaml:"mode"` // "keywords" (default) or "openai"
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Config is a run's full configuration. Immutable once the run starts.
type Config struct {
	TargetURL       string   `yaml:"target_url"`
	Workers         int      `yaml:"workers"`
	PollInterval    Duration `yaml:"poll_interval"`
	PollBackoffCap  Duration `yaml:"poll_backoff_cap"`
	MaxPollErrors   int      `yaml:"max_poll_errors"`
	CheckoutTimeout Duration `yaml:"checkout_timeout"`

	Browser  string `yaml:"browser"` // "playwright" (default) or "chromedp"
	Headless bool   `yaml:"headless"`
	Proxy    string `yaml:"proxy"`
	ScreenW  int    `yaml:"screen_width"`
	ScreenH  int    `yaml:"screen_height"`

	Detector DetectorConfig `yaml:"detector"`
	Checkout CheckoutPlan   `yaml:"checkout"`
}

func DefaultConfig() Config {
	return Config{
		Workers:         4,
		PollInterval:    Duration(3 * time.Second),
		PollBackoffCap:  Duration(30 * time.Second),
		MaxPollErrors:   5,
		CheckoutTimeout: Duration(45 * time.Second),
		Browser:         "playwright",
		ScreenW:         1920,
		ScreenH:         1080,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	u, err := url.Parse(c.TargetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: target_url %q is not an absolute URL", ErrInvalidConfig, c.TargetURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if c.PollBackoffCap < c.PollInterval {
		return fmt.Errorf("%w: poll_backoff_cap must be >= poll_interval", ErrInvalidConfig)
	}
	if c.MaxPollErrors < 1 {
		return fmt.Errorf("%w: max_poll_errors must be >= 1", ErrInvalidConfig)
	}
	if c.CheckoutTimeout <= 0 {
		return fmt.Errorf("%w: checkout_timeout must be positive", ErrInvalidConfig)
	}
	if c.Checkout.SubmitSelector == "" {
		return fmt.Errorf("%w: checkout.submit_selector is required", ErrInvalidConfig)
	}
	if len(c.Checkout.ConfirmMarkers) == 0 {
		return fmt.Errorf("%w: checkout.confirm_markers is required", ErrInvalidConfig)
	}
	switch c.Browser {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("%w: browser must be playwright or chromedp, got %q", ErrInvalidConfig, c.Browser)
	}
	switch c.Detector.Mode {
	case "", "keywords", "openai":
	default:
		return fmt.Errorf("%w: detector.mode must be keywords or openai, got %q", ErrInvalidConfig, c.Detector.Mode)
	}
	return nil
}
