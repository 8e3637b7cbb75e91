package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubescaler/agentpool-autoscaler/internal/adapters/outbound/azure"
	"github.com/kubescaler/agentpool-autoscaler/internal/adapters/outbound/k8s"
	"github.com/kubescaler/agentpool-autoscaler/internal/config"
	"github.com/kubescaler/agentpool-autoscaler/internal/httpserver"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/cronparser"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/notifier"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/pinger"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/shutdown"
	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

const componentReadyTimeout = 5 * time.Minute

// App owns the wired component graph and its startup order.
type App struct {
	logger     *slog.Logger
	appState   appstater
	components []component
}

// New creates the application with all dependencies wired: kube clients, the
// observer adapter, the Azure provider client, the decision engine and the
// reconciliation loop, plus the HTTP and metrics servers.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	appState appstater,
	pingers *pinger.Service,
) (*App, error) {
	kubeConfig, err := clientcmd.BuildConfigFromFlags(cfg.KubeMaster, cfg.KubeConfig)
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}

	metricsClientset, err := metricsv.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("create metrics clientset: %w", err)
	}

	observer := k8s.New(logger, clientset, metricsClientset)

	provider := azure.NewClient(
		logger,
		azure.Credentials{
			TenantID:     cfg.SPTenantID,
			ClientID:     cfg.SPAppID,
			ClientSecret: cfg.SPSecret,
		},
		cfg.SubscriptionID,
		cfg.ResourceGroup,
		cfg.ContainerServiceName,
	)

	var notify scaler.Notifier = notifier.Noop{}
	if cfg.SlackWebhookURL != "" {
		notify = notifier.NewSlack(logger, cfg.SlackWebhookURL)
	}

	window, err := buildScaleDownWindow(logger, cfg)
	if err != nil {
		return nil, err
	}

	scalerService := scaler.New(logger, scaler.Params{
		Observer: observer,
		Provider: provider,
		Drainer:  observer,
		Notifier: notify,
		Engine:   scaler.NewEngine(cfg.IdleThreshold),

		MinSize:       cfg.SpareAgents,
		MaxSize:       cfg.MaxAgents,
		OverProvision: cfg.OverProvision,

		Interval:          cfg.Interval,
		Cooldown:          cfg.Cooldown,
		ObserveTimeout:    cfg.ObserveTimeout,
		ProviderTimeout:   cfg.ProviderTimeout,
		RetryInitialDelay: cfg.RetryInitialDelay,
		MaxRetries:        cfg.MaxRetries,
		LowWaterPercent:   cfg.LowWaterPercent,

		DryRun:            cfg.DryRun,
		ScaleUpDisabled:   cfg.NoScaleUp,
		ScaleDownDisabled: cfg.NoScaleDown,
		ScaleDownWindow:   window,
	})

	httpServer := httpserver.New(logger, appState, scalerService, cfg.HTTPPort)
	metricsServer := httpserver.NewMetricsServer(logger, cfg.MetricsPort)

	app := &App{
		logger:   logger,
		appState: appState,
		components: []component{
			pingers,
			metricsServer,
			httpServer,
			scalerService,
		},
	}

	for _, p := range []pinger.Pinger{httpServer, metricsServer, scalerService} {
		if err := appState.RegisterPinger(p); err != nil {
			return nil, fmt.Errorf("register pinger %s: %w", p.Name(), err)
		}
	}

	return app, nil
}

// Run starts the components in order, waits for each to become ready, then
// blocks until the context is cancelled and shuts everything down.
func (a *App) Run(originCtx context.Context) error {
	if err := a.appState.SetStarting(originCtx); err != nil {
		return fmt.Errorf("set starting application state: %w", err)
	}

	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	go shutdown.New(a.logger, a.appState).HandleSignals(ctx, cancel)

	for _, c := range a.components {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}

		if err := a.appState.RegisterShutdowner(c); err != nil {
			return fmt.Errorf("register shutdowner %s: %w", c.Name(), err)
		}

		select {
		case <-c.Ready():
			a.logger.InfoContext(ctx, "component ready", "component", c.Name())
		case <-time.After(componentReadyTimeout):
			return fmt.Errorf("component %s not ready after %s", c.Name(), componentReadyTimeout)
		case <-ctx.Done():
			return a.appState.Shutdown(originCtx)
		}
	}

	if err := a.appState.SetRunning(ctx); err != nil {
		return fmt.Errorf("set running application state: %w", err)
	}

	a.logger.InfoContext(ctx, "autoscaler running")

	<-ctx.Done()

	return a.appState.Shutdown(originCtx)
}

// buildScaleDownWindow validates the cron spec once at startup and returns a
// Window, or nil when no window is configured.
func buildScaleDownWindow(logger *slog.Logger, cfg *config.Config) (scaler.Window, error) {
	if cfg.ScaleDownWindow == "" {
		return nil, nil
	}

	parser := cronparser.New()

	if _, err := parser.NextAfter(cfg.ScaleDownWindow, cfg.ScaleDownWindowTZ, time.Now()); err != nil {
		return nil, fmt.Errorf("validate scale-down window: %w", err)
	}

	return &scaleDownWindow{
		logger: logger,
		parser: parser,
		spec:   cfg.ScaleDownWindow,
		tz:     cfg.ScaleDownWindowTZ,
		width:  cfg.Interval,
	}, nil
}

// scaleDownWindow allows scale-down only when the cron spec fired within the
// last tick interval.
type scaleDownWindow struct {
	logger *slog.Logger
	parser *cronparser.Parser
	spec   string
	tz     string
	width  time.Duration
}

func (w *scaleDownWindow) Allows(now time.Time) bool {
	ok, err := w.parser.WithinWindow(w.spec, w.tz, now, w.width)
	if err != nil {
		// Spec was validated at startup; treat a failure here as window closed.
		w.logger.Error("scale-down window check failed", "reason", err)

		return false
	}

	return ok
}
