package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is built once at process start and passed by reference into the
// component constructors; it is never read from ambient globals.
type Config struct {
	KubeConfig string
	KubeMaster string

	SubscriptionID       string
	ResourceGroup        string
	ContainerServiceName string
	SPAppID              string
	SPSecret             string
	SPTenantID           string

	Interval          time.Duration
	Cooldown          time.Duration
	IdleThreshold     time.Duration
	LowWaterPercent   int
	SpareAgents       int
	MaxAgents         int
	OverProvision     int
	MaxRetries        int
	RetryInitialDelay time.Duration
	ObserveTimeout    time.Duration
	ProviderTimeout   time.Duration

	DryRun            bool
	NoScaleUp         bool
	NoScaleDown       bool
	ScaleDownWindow   string
	ScaleDownWindowTZ string

	LogLevel       string
	LogFormat      string
	HTTPPort       string
	MetricsPort    string
	PingerInterval time.Duration

	SlackWebhookURL string
}

// Load builds the configuration from env vars, then overlays any command-line
// flags from args (flags win), then validates.
func Load(args []string) (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		KubeConfig: getEnvOrFallback(envKeyKubeConfig, envKeyKubeConfigFallback),
		KubeMaster: getEnvOrFallback(envKeyKubeMaster, envKeyKubeMasterFallback),

		SubscriptionID:       os.Getenv(envKeySubscriptionID),
		ResourceGroup:        os.Getenv(envKeyResourceGroup),
		ContainerServiceName: os.Getenv(envKeyContainerService),
		SPAppID:              os.Getenv(envKeySPAppID),
		SPSecret:             os.Getenv(envKeySPSecret),
		SPTenantID:           os.Getenv(envKeySPTenantID),

		ScaleDownWindow:   os.Getenv(envKeyScaleDownWindow),
		ScaleDownWindowTZ: os.Getenv(envKeyScaleDownWindowTZ),

		LogLevel:    getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:   getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:    getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort: getEnvOrDefault(envKeyMetricsPort, "9090"),

		SlackWebhookURL: os.Getenv(envKeySlackHook),
	}

	var err error

	if cfg.Interval, err = getDuration(envKeyInterval, time.Minute); err != nil {
		return nil, err
	}

	if cfg.Cooldown, err = getDuration(envKeyCooldown, 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.IdleThreshold, err = getDuration(envKeyIdleThreshold, 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.RetryInitialDelay, err = getDuration(envKeyRetryInitialDelay, 2*time.Second); err != nil {
		return nil, err
	}

	if cfg.ObserveTimeout, err = getDuration(envKeyObserveTimeout, 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.ProviderTimeout, err = getDuration(envKeyProviderTimeout, time.Minute); err != nil {
		return nil, err
	}

	if cfg.PingerInterval, err = getDuration(envKeyPingerInterval, 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.LowWaterPercent, err = getInt(envKeyLowWaterPercent, 20); err != nil {
		return nil, err
	}

	if cfg.SpareAgents, err = getInt(envKeySpareAgents, 1); err != nil {
		return nil, err
	}

	// ACS supports up to 100 agents per pool.
	if cfg.MaxAgents, err = getInt(envKeyMaxAgents, 100); err != nil {
		return nil, err
	}

	if cfg.OverProvision, err = getInt(envKeyOverProvision, 0); err != nil {
		return nil, err
	}

	if cfg.MaxRetries, err = getInt(envKeyMaxRetries, 3); err != nil {
		return nil, err
	}

	if cfg.DryRun, err = getBool(envKeyDryRun, false); err != nil {
		return nil, err
	}

	if cfg.NoScaleUp, err = getBool(envKeyNoScaleUp, false); err != nil {
		return nil, err
	}

	if cfg.NoScaleDown, err = getBool(envKeyNoScaleDown, false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SubscriptionID == "" {
		return fmt.Errorf("validate config: %s is required", envKeySubscriptionID)
	}

	if c.ResourceGroup == "" {
		return fmt.Errorf("validate config: %s is required", envKeyResourceGroup)
	}

	if c.ContainerServiceName == "" {
		return fmt.Errorf("validate config: %s is required", envKeyContainerService)
	}

	if c.SPAppID == "" || c.SPSecret == "" || c.SPTenantID == "" {
		return fmt.Errorf(
			"validate config: missing Azure credentials, provide %s, %s and %s",
			envKeySPAppID, envKeySPSecret, envKeySPTenantID,
		)
	}

	// A pool of zero agents cannot report unit capacity, so at least one spare
	// agent is always kept.
	if c.SpareAgents < 1 {
		return fmt.Errorf("validate config: spare agents must be at least 1, got %d", c.SpareAgents)
	}

	if c.MaxAgents < c.SpareAgents {
		return fmt.Errorf(
			"validate config: max agents (%d) below spare agents (%d)",
			c.MaxAgents, c.SpareAgents,
		)
	}

	if c.OverProvision < 0 {
		return fmt.Errorf("validate config: over-provision must not be negative, got %d", c.OverProvision)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("validate config: max retries must not be negative, got %d", c.MaxRetries)
	}

	if c.LowWaterPercent < 1 || c.LowWaterPercent > 100 {
		return fmt.Errorf("validate config: low-water percent must be in [1, 100], got %d", c.LowWaterPercent)
	}

	for _, check := range []struct {
		name  string
		value time.Duration
		min   time.Duration
	}{
		{envKeyInterval, c.Interval, envMinInterval},
		{envKeyCooldown, c.Cooldown, envMinCooldown},
		{envKeyIdleThreshold, c.IdleThreshold, envMinIdleThreshold},
		{envKeyRetryInitialDelay, c.RetryInitialDelay, envMinRetryInitialDelay},
		{envKeyObserveTimeout, c.ObserveTimeout, envMinObserveTimeout},
		{envKeyProviderTimeout, c.ProviderTimeout, envMinProviderTimeout},
		{envKeyPingerInterval, c.PingerInterval, envMinPingerInterval},
	} {
		if check.value < check.min {
			return fmt.Errorf(
				"validate config: %s must be at least %s, got %s",
				check.name, check.min, check.value,
			)
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvOrFallback(key, fallbackKey string) string {
	value := os.Getenv(key)
	if value == "" {
		return os.Getenv(fallbackKey)
	}

	return value
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return b, nil
}
