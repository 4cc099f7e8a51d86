package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/compozy/orderetl/engine/infra/cache"
	"github.com/compozy/orderetl/engine/infra/monitoring"
	"github.com/compozy/orderetl/engine/infra/repo"
	"github.com/compozy/orderetl/engine/loader"
	"github.com/compozy/orderetl/engine/notify"
	"github.com/compozy/orderetl/engine/pipeline"
	"github.com/compozy/orderetl/engine/source"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
)

// RunCmd runs one ETL pass. The optional argument overrides source.dir.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [dir]",
		Short: "Extract, normalize and load one batch of order documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runPipeline(cmd, dir)
		},
	}
}

func runPipeline(cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	out := cmd.OutOrStdout()

	logPath, closeLog, err := attachRunLog(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx = cmd.Context()
	log := logger.FromContext(ctx)

	mon := monitoring.NewMonitoringServiceWithFallback(ctx, &monitoring.Config{
		Enabled:      cfg.Metrics.Enabled,
		TextfilePath: cfg.Metrics.TextfilePath,
	})
	mon.SetAsGlobal()
	defer func() {
		if err := mon.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to shut down monitoring", "error", err)
		}
	}()

	p, cleanup, err := buildPipeline(ctx, cfg, dir, mon)
	if err != nil {
		fmt.Fprintln(out, failStyle.Render("✗ ETL pipeline failed: "+err.Error()))
		return err
	}
	defer cleanup()
	sum, err := p.Run(ctx)
	if err != nil {
		fmt.Fprintln(out, failStyle.Render("✗ ETL pipeline failed: "+err.Error()))
		if logPath != "" {
			fmt.Fprintln(out, detailStyle.Render("  Check log file for details: "+logPath))
		}
		return err
	}
	fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("✓ Loaded %d orders in %s", sum.Orders, sum.Duration.Round(time.Millisecond))))
	if logPath != "" {
		fmt.Fprintln(out, detailStyle.Render("  Log file: "+logPath))
	}
	return nil
}

func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	dir string,
	mon *monitoring.Service,
) (*pipeline.Pipeline, func(), error) {
	noop := func() {}
	src, err := source.New(ctx, &cfg.Source, dir)
	if err != nil {
		return nil, noop, err
	}
	provider := repo.NewProvider(&cfg.Database)
	dialect, err := provider.Dialect()
	if err != nil {
		return nil, noop, err
	}
	ld, err := loader.New(provider.Open)
	if err != nil {
		return nil, noop, err
	}
	notifier, err := notify.New(&cfg.Notify)
	if err != nil {
		return nil, noop, err
	}
	pm, err := monitoring.NewPipelineMetrics(mon.Meter())
	if err != nil {
		return nil, noop, err
	}
	lock, cleanup, err := buildLock(ctx, &cfg.Lock)
	if err != nil {
		return nil, noop, err
	}
	p, err := pipeline.New(pipeline.Options{
		Source:          src,
		Loader:          ld,
		Notifier:        notifier,
		Metrics:         pm,
		Textfile:        mon,
		Driver:          dialect,
		LoadRetries:     cfg.Runtime.LoadRetries,
		RetryBackoff:    cfg.Runtime.RetryBackoff,
		MaxRetryBackoff: cfg.Runtime.MaxRetryBackoff,
		Lock:            lock,
	})
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return p, cleanup, nil
}

// buildLock connects to Redis when the redis lock driver is selected.
func buildLock(ctx context.Context, cfg *config.LockConfig) (pipeline.Locker, func(), error) {
	if cfg.Driver != "redis" {
		return nil, func() {}, nil
	}
	r, err := cache.NewRedis(ctx, &cache.Config{
		URL:        cfg.Redis.URL,
		Host:       cfg.Redis.Host,
		Port:       cfg.Redis.Port,
		Password:   cfg.Redis.Password.Value(),
		DB:         cfg.Redis.DB,
		TLSEnabled: cfg.Redis.TLS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("run lock: %w", err)
	}
	lock, err := cache.NewRunLock(r.Client(), cfg.Key, cfg.TTL)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return lock, func() { _ = r.Close() }, nil
}

// attachRunLog tees the command logger into a fresh per-run file when
// runtime.log_dir is set.
func attachRunLog(cmd *cobra.Command, cfg *config.Config) (string, func(), error) {
	if cfg.Runtime.LogDir == "" {
		return "", func() {}, nil
	}
	f, err := logger.OpenRunLog(cfg.Runtime.LogDir, time.Now())
	if err != nil {
		return "", nil, err
	}
	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		f.Close()
		return "", nil, err
	}
	w := io.MultiWriter(cmd.OutOrStdout(), f)
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource, w)
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
	return f.Name(), func() { _ = f.Close() }, nil
}
