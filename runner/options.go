package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/erikmalm/streamworks/committer"
	"github.com/erikmalm/streamworks/errorhandler"
	"github.com/erikmalm/streamworks/logger"
	"github.com/erikmalm/streamworks/offset"
)

type SingleThreadedOption interface {
	applySingleThreaded(*SingleThreadedConfig)
}

type PartitionedOption interface {
	applyPartitioned(*PartitionedConfig)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applySingleThreaded(c *SingleThreadedConfig) {
	c.Logger = o.logger
}

func (o loggerOption) applyPartitioned(c *PartitionedConfig) {
	c.Logger = o.logger
}

func WithLogger(l logger.Logger) loggerOption {
	return loggerOption{logger: l}
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applySingleThreaded(c *SingleThreadedConfig) {
	c.ErrorHandler = o.handler
}

func (o errorHandlerOption) applyPartitioned(c *PartitionedConfig) {
	c.ErrorHandler = o.handler
}

// WithErrorHandler sets the error handler for a runner
func WithErrorHandler(h errorhandler.Handler) errorHandlerOption {
	return errorHandlerOption{handler: h}
}

type channelBufferSizeOption int

func (o channelBufferSizeOption) applyPartitioned(c *PartitionedConfig) {
	if o > 0 {
		c.ChannelBufferSize = int(o)
	}
}

// WithChannelBufferSize sets the buffer size for partition record channels
func WithChannelBufferSize(size int) channelBufferSizeOption {
	return channelBufferSizeOption(size)
}

type workerShutdownTimeoutOption time.Duration

func (o workerShutdownTimeoutOption) applyPartitioned(c *PartitionedConfig) {
	if o > 0 {
		c.WorkerShutdownTimeout = time.Duration(o)
	}
}

// WithWorkerShutdownTimeout sets the timeout for waiting on worker shutdown
func WithWorkerShutdownTimeout(d time.Duration) workerShutdownTimeoutOption {
	return workerShutdownTimeoutOption(d)
}

type drainTimeoutOption time.Duration

func (o drainTimeoutOption) applyPartitioned(c *PartitionedConfig) {
	if o > 0 {
		c.DrainTimeout = time.Duration(o)
	}
}

// WithDrainTimeout sets the timeout for draining partition channels
func WithDrainTimeout(d time.Duration) drainTimeoutOption {
	return drainTimeoutOption(d)
}

type serdeErrorHandlerOption struct {
	handler errorhandler.Handler
}

func (o serdeErrorHandlerOption) applyPartitioned(c *PartitionedConfig) {
	c.SerdeErrorHandler = o.handler
}

// WithSerdeErrorHandler sets the error handler for serialization/deserialization failures
func WithSerdeErrorHandler(h errorhandler.Handler) serdeErrorHandlerOption {
	return serdeErrorHandlerOption{handler: h}
}

type processingErrorHandlerOption struct {
	handler errorhandler.Handler
}

func (o processingErrorHandlerOption) applyPartitioned(c *PartitionedConfig) {
	c.ProcessingErrorHandler = o.handler
}

// WithProcessingErrorHandler sets the error handler for processor execution failures
func WithProcessingErrorHandler(h errorhandler.Handler) processingErrorHandlerOption {
	return processingErrorHandlerOption{handler: h}
}

type productionErrorHandlerOption struct {
	handler errorhandler.Handler
}

func (o productionErrorHandlerOption) applyPartitioned(c *PartitionedConfig) {
	c.ProductionErrorHandler = o.handler
}

// WithProductionErrorHandler sets the error handler for sink production failures
func WithProductionErrorHandler(h errorhandler.Handler) productionErrorHandlerOption {
	return productionErrorHandlerOption{handler: h}
}

type pollErrorBackoffOption struct {
	b backoff.Backoff
}

func (o pollErrorBackoffOption) applySingleThreaded(c *SingleThreadedConfig) {
	if o.b != nil {
		c.PollErrorBackoff = o.b
	}
}

func (o pollErrorBackoffOption) applyPartitioned(c *PartitionedConfig) {
	if o.b != nil {
		c.PollErrorBackoff = o.b
	}
}

func WithPollErrorBackoff(b backoff.Backoff) pollErrorBackoffOption {
	return pollErrorBackoffOption{b: b}
}

type offsetManagerOption struct {
	manager *offset.Manager
}

func (o offsetManagerOption) applySingleThreaded(c *SingleThreadedConfig) {
	c.OffsetManager = o.manager
}

func (o offsetManagerOption) applyPartitioned(c *PartitionedConfig) {
	c.OffsetManager = o.manager
}

// WithOffsetManager wires a coordination core into the runner: assigned
// partitions are registered with it and its commit pipeline runs
// alongside the runner's own Kafka commit.
func WithOffsetManager(m *offset.Manager) offsetManagerOption {
	return offsetManagerOption{manager: m}
}

type committerOption struct {
	factory func() committer.Committer
}

func (o committerOption) applySingleThreaded(c *SingleThreadedConfig) {
	if o.factory != nil {
		c.CommitterFactory = o.factory
	}
}

// WithCommitter overrides the commit-trigger policy for the single-threaded
// runner. The factory is invoked once per runner instance.
func WithCommitter(factory func() committer.Committer) committerOption {
	return committerOption{factory: factory}
}
