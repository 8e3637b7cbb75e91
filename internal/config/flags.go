package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// applyFlags overlays command-line flags onto the env-derived config. Only
// flags the caller actually set are applied. Credentials stay env-only.
func applyFlags(cfg *Config, args []string) error {
	fs := pflag.NewFlagSet("agentpool-autoscaler", pflag.ContinueOnError)

	fs.String("kubeconfig", cfg.KubeConfig,
		"full path to kubeconfig file; if not provided, in-cluster configuration is assumed")
	fs.String("subscription-id", cfg.SubscriptionID, "Azure subscription id")
	fs.String("resource-group", cfg.ResourceGroup, "Azure resource group of the container service")
	fs.String("container-service-name", cfg.ContainerServiceName, "container service name")
	fs.Duration("interval", cfg.Interval, "reconciliation tick interval")
	fs.Duration("cooldown", cfg.Cooldown, "minimum wait between scale operations")
	fs.Duration("idle-threshold", cfg.IdleThreshold,
		"how long a node must stay idle before it may be removed")
	fs.Int("low-water-percent", cfg.LowWaterPercent,
		"utilization percentage below which a node counts as idle")
	fs.Int("spare-agents", cfg.SpareAgents, "minimum agents to keep even when the cluster is unutilized")
	fs.Int("max-agents", cfg.MaxAgents, "maximum agent pool size")
	fs.Int("over-provision", cfg.OverProvision, "extra headroom nodes kept above strict demand")
	fs.Int("max-retries", cfg.MaxRetries, "retry budget for transient provider errors")
	fs.Bool("dry-run", cfg.DryRun, "log decisions without mutating the pool")
	fs.Bool("no-scale-up", cfg.NoScaleUp, "disable pool growth")
	fs.Bool("no-scale-down", cfg.NoScaleDown, "disable pool shrinking")
	fs.String("scale-down-window", cfg.ScaleDownWindow,
		"cron expression confining scale-down to a window; empty allows it at any time")
	fs.String("scale-down-window-tz", cfg.ScaleDownWindowTZ, "IANA timezone for the scale-down window")
	fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", cfg.LogFormat, "log format: json or text")
	fs.String("http-port", cfg.HTTPPort, "port for the health/readiness HTTP server")
	fs.String("metrics-port", cfg.MetricsPort, "port for Prometheus metrics")
	fs.String("slack-hook", cfg.SlackWebhookURL,
		"Slack webhook URL; if provided, scaling messages are posted to Slack")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	var err error

	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}

		err = applyFlag(cfg, fs, f.Name)
	})

	return err
}

//nolint:gocyclo // one case per flag, no logic
func applyFlag(cfg *Config, fs *pflag.FlagSet, name string) error {
	var err error

	switch name {
	case "kubeconfig":
		cfg.KubeConfig, err = fs.GetString(name)
	case "subscription-id":
		cfg.SubscriptionID, err = fs.GetString(name)
	case "resource-group":
		cfg.ResourceGroup, err = fs.GetString(name)
	case "container-service-name":
		cfg.ContainerServiceName, err = fs.GetString(name)
	case "interval":
		cfg.Interval, err = fs.GetDuration(name)
	case "cooldown":
		cfg.Cooldown, err = fs.GetDuration(name)
	case "idle-threshold":
		cfg.IdleThreshold, err = fs.GetDuration(name)
	case "low-water-percent":
		cfg.LowWaterPercent, err = fs.GetInt(name)
	case "spare-agents":
		cfg.SpareAgents, err = fs.GetInt(name)
	case "max-agents":
		cfg.MaxAgents, err = fs.GetInt(name)
	case "over-provision":
		cfg.OverProvision, err = fs.GetInt(name)
	case "max-retries":
		cfg.MaxRetries, err = fs.GetInt(name)
	case "dry-run":
		cfg.DryRun, err = fs.GetBool(name)
	case "no-scale-up":
		cfg.NoScaleUp, err = fs.GetBool(name)
	case "no-scale-down":
		cfg.NoScaleDown, err = fs.GetBool(name)
	case "scale-down-window":
		cfg.ScaleDownWindow, err = fs.GetString(name)
	case "scale-down-window-tz":
		cfg.ScaleDownWindowTZ, err = fs.GetString(name)
	case "log-level":
		cfg.LogLevel, err = fs.GetString(name)
	case "log-format":
		cfg.LogFormat, err = fs.GetString(name)
	case "http-port":
		cfg.HTTPPort, err = fs.GetString(name)
	case "metrics-port":
		cfg.MetricsPort, err = fs.GetString(name)
	case "slack-hook":
		cfg.SlackWebhookURL, err = fs.GetString(name)
	}

	if err != nil {
		return fmt.Errorf("apply flag %s: %w", name, err)
	}

	return nil
}
