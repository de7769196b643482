package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"flowtraced/pkg/flowtypes"
)

// DockerCorrelationHandler looks at running containers' memory stats
// whenever a snapshot's total leak count crosses a configured threshold,
// and logs a correlation note — not a causal claim — giving an operator a
// starting point. Adapted from the teacher's pkg/docker.ClientManager, with
// its connection-pool machinery dropped: this handler issues at most one
// burst of calls per push_interval tick, which doesn't warrant pooling.
// Degrades to a silent no-op when no Docker socket is reachable, matching
// the teacher's container monitor's fallback posture.
type DockerCorrelationHandler struct {
	cli       *client.Client
	threshold uint64
	logger    *logrus.Logger
	reachable bool
}

// NewDockerCorrelationHandler creates a handler against the Docker socket
// found via the standard DOCKER_HOST/DOCKER_* environment variables. A
// failure to reach the daemon is not fatal: the handler is still returned,
// just permanently inert (OnMetrics becomes a no-op).
func NewDockerCorrelationHandler(cfg flowtypes.DockerHandlerConfig, logger *logrus.Logger) *DockerCorrelationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	threshold := cfg.LeakThreshold
	if threshold == 0 {
		threshold = 1
	}

	h := &DockerCorrelationHandler{threshold: threshold, logger: logger}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.WithError(err).Warn("docker correlation handler: client unavailable, running as no-op")
		return h
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		logger.WithError(err).Warn("docker correlation handler: daemon unreachable, running as no-op")
		return h
	}

	h.cli = cli
	h.reachable = true
	return h
}

// Name implements flowtypes.Handler.
func (h *DockerCorrelationHandler) Name() string { return "docker-correlation" }

// RequiredMetrics implements flowtypes.Handler: both families feed the
// threshold check.
func (h *DockerCorrelationHandler) RequiredMetrics() map[flowtypes.MetricType]struct{} {
	return map[flowtypes.MetricType]struct{}{
		flowtypes.DirectLeaks: {},
		flowtypes.HeapLeaks:   {},
	}
}

// OnMetrics implements flowtypes.Handler.
func (h *DockerCorrelationHandler) OnMetrics(snap flowtypes.MetricSnapshot) error {
	if !h.reachable {
		return nil
	}

	var total uint64
	for _, payload := range snap.Metrics {
		total += payload.Total
	}
	if total < h.threshold {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	containers, err := h.cli.ContainerList(ctx, dockertypes.ContainerListOptions{})
	if err != nil {
		return fmt.Errorf("docker correlation handler: list containers: %w", err)
	}

	for _, c := range containers {
		usage, err := h.memoryUsage(ctx, c.ID)
		if err != nil {
			h.logger.WithError(err).WithField("container", c.ID).Debug("docker correlation handler: stats unavailable")
			continue
		}
		h.logger.WithFields(logrus.Fields{
			"container":        c.ID,
			"image":            c.Image,
			"memory_usage_mb":  usage / (1024 * 1024),
			"leak_total":       total,
		}).Warn("leak burst coincided with a running container's memory usage; not a causal claim")
	}
	return nil
}

func (h *DockerCorrelationHandler) memoryUsage(ctx context.Context, containerID string) (uint64, error) {
	stats, err := h.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return 0, err
	}
	defer stats.Body.Close()

	var parsed dockertypes.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	return parsed.MemoryStats.Usage, nil
}

// Close releases the Docker client, if one was created.
func (h *DockerCorrelationHandler) Close() error {
	if h.cli == nil {
		return nil
	}
	return h.cli.Close()
}
