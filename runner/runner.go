package runner

import (
	"context"

	"github.com/erikmalm/streamworks/kafka"
	"github.com/erikmalm/streamworks/otel"
	"github.com/erikmalm/streamworks/task"
	"github.com/erikmalm/streamworks/topology"
)

type Runner interface {
	kafka.RebalanceCallback
	Run(ctx context.Context) error
}

type Factory = func(
	t *topology.Topology, f task.Factory, consumer kafka.Consumer, producer kafka.Producer, telemetry *otel.Telemetry,
) (Runner, error)
