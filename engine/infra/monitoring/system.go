package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/compozy/orderetl/engine/infra/monitoring/metrics"
	"github.com/compozy/orderetl/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unknownBuild = "unknown"

// Set with -ldflags "-X github.com/compozy/orderetl/engine/infra/monitoring.Version=v1.0.0".
var (
	Version    = unknownBuild
	CommitHash = unknownBuild
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// ReadBuildInfo prefers the ldflags values and falls back to the module
// version and VCS revision stamped by the toolchain.
func ReadBuildInfo() BuildInfo {
	bi := BuildInfo{Version: Version, Commit: CommitHash, GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	if bi.Version == unknownBuild && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.Version = info.Main.Version
	}
	if bi.Commit == unknownBuild {
		bi.Commit = vcsRevision(info.Settings)
	}
	return bi
}

func vcsRevision(settings []debug.BuildSetting) string {
	for _, s := range settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return unknownBuild
}

// recordBuildInfo publishes a constant gauge labelled with the build identity.
func recordBuildInfo(ctx context.Context, meter metric.Meter) error {
	gauge, err := meter.Float64Gauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		return fmt.Errorf("create build info gauge: %w", err)
	}
	bi := ReadBuildInfo()
	gauge.Record(ctx, 1, metric.WithAttributes(
		attribute.String("version", bi.Version),
		attribute.String("commit_hash", bi.Commit),
		attribute.String("go_version", bi.GoVersion),
	))
	logger.FromContext(ctx).Debug("Build info recorded", "version", bi.Version, "commit", bi.Commit)
	return nil
}
