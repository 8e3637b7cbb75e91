package config

import "time"

// Env key constants. All autoscaler configuration env vars use the AUTOSCALER_
// prefix; duration values use explicit units (e.g. 5m, 40s, 2h). Command-line
// flags override env values.

// Path to kubeconfig file. If unset, KUBECONFIG is used as fallback; if that
// is also unset, in-cluster configuration is assumed.
const envKeyKubeConfig = "AUTOSCALER_KUBECONFIG"

// Kubernetes API server URL. If unset, KUBERNETES_MASTER is used as fallback.
const envKeyKubeMaster = "AUTOSCALER_KUBE_MASTER"

// Azure subscription holding the container service.
const envKeySubscriptionID = "AUTOSCALER_SUBSCRIPTION_ID"

// Azure resource group of the container service.
const envKeyResourceGroup = "AUTOSCALER_RESOURCE_GROUP"

// Name of the container service whose agent pool is resized.
const envKeyContainerService = "AUTOSCALER_CONTAINER_SERVICE_NAME"

// Service-principal credentials for the provider control API. Supplied via a
// secret store at deploy time; never via flags.
const (
	envKeySPAppID    = "AZURE_SP_APP_ID"
	envKeySPSecret   = "AZURE_SP_SECRET"
	envKeySPTenantID = "AZURE_SP_TENANT_ID"
)

// Log level: debug, info, warn, error.
const envKeyLogLevel = "AUTOSCALER_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "AUTOSCALER_LOG_FORMAT"

// Port for health/readiness HTTP server.
const envKeyHTTPPort = "AUTOSCALER_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "AUTOSCALER_METRICS_PORT"

// Reconciliation tick interval.
const (
	envKeyInterval = "AUTOSCALER_INTERVAL"
	envMinInterval = 10 * time.Second
)

// Minimum wait after a confirmed scale before another may be issued.
const (
	envKeyCooldown = "AUTOSCALER_COOLDOWN"
	envMinCooldown = time.Minute
)

// How long a node must stay below the low-water utilization mark before it is
// a scale-down candidate.
const (
	envKeyIdleThreshold = "AUTOSCALER_IDLE_THRESHOLD"
	envMinIdleThreshold = time.Minute
)

// Utilization percentage below which a node counts as idle.
const envKeyLowWaterPercent = "AUTOSCALER_LOW_WATER_PERCENT"

// Minimum agents to keep even when the cluster is unutilized.
const envKeySpareAgents = "AUTOSCALER_SPARE_AGENTS"

// Maximum agent pool size.
const envKeyMaxAgents = "AUTOSCALER_MAX_AGENTS"

// Extra headroom nodes kept above strict demand on scale-up.
const envKeyOverProvision = "AUTOSCALER_OVER_PROVISION"

// Bounded retry budget for transient provider errors within one decision.
const envKeyMaxRetries = "AUTOSCALER_MAX_RETRIES"

// Initial delay of the exponential retry backoff.
const (
	envKeyRetryInitialDelay = "AUTOSCALER_RETRY_INITIAL_DELAY"
	envMinRetryInitialDelay = time.Second
)

// Timeout for one cluster observation.
const (
	envKeyObserveTimeout = "AUTOSCALER_OBSERVE_TIMEOUT"
	envMinObserveTimeout = 5 * time.Second
)

// Timeout for one provider control API call.
const (
	envKeyProviderTimeout = "AUTOSCALER_PROVIDER_TIMEOUT"
	envMinProviderTimeout = 5 * time.Second
)

// Pinger check interval.
const (
	envKeyPingerInterval = "AUTOSCALER_PINGER_INTERVAL"
	envMinPingerInterval = time.Second
)

// Log decisions without mutating the pool.
const envKeyDryRun = "AUTOSCALER_DRY_RUN"

// Disable pool growth / pool shrinking independently.
const (
	envKeyNoScaleUp   = "AUTOSCALER_NO_SCALE_UP"
	envKeyNoScaleDown = "AUTOSCALER_NO_SCALE_DOWN"
)

// Optional cron expression confining scale-down to a window; empty allows
// scale-down at any time. Timezone is IANA, e.g. Europe/Berlin.
const (
	envKeyScaleDownWindow   = "AUTOSCALER_SCALE_DOWN_WINDOW"
	envKeyScaleDownWindowTZ = "AUTOSCALER_SCALE_DOWN_WINDOW_TZ"
)

// Slack incoming webhook for scale event notifications; empty disables them.
const envKeySlackHook = "SLACK_HOOK"

// Standard k8s env keys used as fallback when AUTOSCALER_* are unset.
const (
	envKeyKubeConfigFallback = "KUBECONFIG"
	envKeyKubeMasterFallback = "KUBERNETES_MASTER"
)
