package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/erikmalm/streamworks/committer"
	"github.com/erikmalm/streamworks/errorhandler"
	"github.com/erikmalm/streamworks/logger"
	"github.com/erikmalm/streamworks/offset"
)

// BaseConfig is shared by all runners
type BaseConfig struct {
	Logger           logger.Logger
	ErrorHandler     errorhandler.Handler
	PollErrorBackoff backoff.Backoff

	// OffsetManager is optional. When set, the runner registers its
	// assigned partitions with it and drives its commit pipeline
	// alongside its own Kafka commit.
	OffsetManager *offset.Manager
}

func defaultBaseConfig() BaseConfig {
	l := logger.NewNoopLogger()
	return BaseConfig{
		Logger:           l,
		ErrorHandler:     errorhandler.LogAndContinue(l),
		PollErrorBackoff: backoff.NewFixed(time.Second),
	}
}

type SingleThreadedConfig struct {
	BaseConfig
	CommitterFactory func() committer.Committer
}

func defaultSingleThreadedConfig() SingleThreadedConfig {
	return SingleThreadedConfig{
		BaseConfig: defaultBaseConfig(),
		CommitterFactory: func() committer.Committer {
			return committer.NewPeriodicCommitter()
		},
	}
}

type PartitionedConfig struct {
	BaseConfig
	ChannelBufferSize     int
	WorkerShutdownTimeout time.Duration
	DrainTimeout          time.Duration

	SerdeErrorHandler      errorhandler.Handler
	ProcessingErrorHandler errorhandler.Handler
	ProductionErrorHandler errorhandler.Handler
}

func defaultPartitionedConfig() PartitionedConfig {
	return PartitionedConfig{
		BaseConfig:            defaultBaseConfig(),
		ChannelBufferSize:     100,
		WorkerShutdownTimeout: 30 * time.Second,
		DrainTimeout:          60 * time.Second,
	}
}
