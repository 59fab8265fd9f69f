package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/erikmalm/streamworks/committer"
	"github.com/erikmalm/streamworks/errorhandler"
	"github.com/erikmalm/streamworks/kafka"
	"github.com/erikmalm/streamworks/logger"
	streamsotel "github.com/erikmalm/streamworks/otel"
	"github.com/erikmalm/streamworks/task"
	"github.com/erikmalm/streamworks/topology"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

var _ Runner = (*SingleThreaded)(nil)
var _ kafka.RebalanceCallback = (*SingleThreaded)(nil)

// SingleThreaded polls, processes, and produces on a single goroutine.
// Unlike PartitionedRunner it has no backpressure/pause machinery: one slow
// partition slows the whole poll loop, in exchange for strict in-order
// processing across all assigned partitions.
type SingleThreaded struct {
	consumer    kafka.Consumer
	producer    kafka.Producer
	taskManager task.Manager
	topology    *topology.Topology

	errorHandler errorhandler.Handler
	config       SingleThreadedConfig
	committer    committer.Committer
	offsets      *offsetBinding

	errCh chan error

	logger    logger.Logger
	telemetry *streamsotel.Telemetry
}

// NewSingleThreadedRunner creates a factory function for SingleThreaded
func NewSingleThreadedRunner(opts ...SingleThreadedOption) Factory {
	config := defaultSingleThreadedConfig()
	for _, opt := range opts {
		opt.applySingleThreaded(&config)
	}

	return func(
		t *topology.Topology,
		f task.Factory,
		consumer kafka.Consumer,
		producer kafka.Producer,
		telemetry *streamsotel.Telemetry,
	) (Runner, error) {
		l := config.Logger.With("component", "runner", "runner", "single-threaded")

		return &SingleThreaded{
			consumer:     consumer,
			producer:     producer,
			taskManager:  task.NewManager(f, producer, config.Logger),
			topology:     t,
			errorHandler: config.ErrorHandler,
			config:       config,
			committer:    config.CommitterFactory(),
			offsets:      newOffsetBinding(config.OffsetManager, l),
			errCh:        make(chan error, 1),
			logger:       l,
			telemetry:    telemetry,
		}, nil
	}
}

// Run starts the single-threaded runner and blocks until the context is
// cancelled or a fatal error occurs.
func (r *SingleThreaded) Run(ctx context.Context) error {
	defer r.shutdown()

	topics := r.topology.SourceTopics()
	if err := r.consumer.Subscribe(topics, r); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	r.logger.Info("Single-threaded runner started", "topics", topics)

	var errAttempts uint = 0
	for {
		select {
		case err := <-r.errCh:
			r.logger.Error("Fatal error received in Run()", "error", err)
			return err

		case <-ctx.Done():
			r.logger.Info("Context cancelled, shutting down")
			return nil

		case <-r.committer.C():
			r.commit(ctx)

		default:
			if err := r.doPoll(ctx); err != nil {
				r.logger.Warn("Poll error", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(r.config.PollErrorBackoff.Next(errAttempts)):
				}
				errAttempts++
			} else {
				errAttempts = 0
			}
		}
	}
}

func (r *SingleThreaded) doPoll(ctx context.Context) error {
	tel := r.telemetry
	pollStart := time.Now()

	var receiveSpan trace.Span
	ctx, receiveSpan = tel.Tracer.Start(
		ctx, "receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeReceive,
		),
	)
	records, err := r.consumer.Poll(ctx)

	if err != nil {
		receiveSpan.RecordError(err)
		receiveSpan.End()

		tel.PollDuration.Record(
			ctx, time.Since(pollStart).Seconds(), metric.WithAttributes(
				streamsotel.AttrPollStatus.String(streamsotel.StatusError),
			),
		)
		return fmt.Errorf("failed to poll: %w", err)
	}

	tel.PollDuration.Record(
		ctx, time.Since(pollStart).Seconds(), metric.WithAttributes(
			streamsotel.AttrPollStatus.String(streamsotel.StatusSuccess),
		),
	)

	receiveSpan.SetAttributes(semconv.MessagingBatchMessageCount(len(records)))
	receiveSpan.End()

	if len(records) == 0 {
		r.logger.Debug("No records received from poll")
		return nil
	}

	r.logger.Debug("Polled records", "count", len(records))

	for _, record := range records {
		tel.MessagesConsumed.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(record.Topic),
				semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(record.Partition), 10)),
			),
		)

		tp := record.TopicPartition()
		t, ok := r.taskManager.TaskFor(tp)
		if !ok {
			r.logger.Warn(
				"No task for partition, may have been rebalanced",
				"topic", tp.Topic,
				"partition", tp.Partition,
			)
			continue
		}

		if err := processRecordWithRetry(
			ctx, record, t, r.consumer, r.producer, r.errorHandler, r.telemetry, r.logger,
		); err != nil {
			emitError(r.errCh, r.logger, fmt.Errorf("fatal processing error: %w", err))
			return nil
		}

		r.offsets.update(tp, record.Offset+1)
		r.committer.RecordProcessed(1)
	}

	return nil
}

// commit runs the offset coordination core's pre-commit hooks, then commits
// to Kafka via the consumer.
func (r *SingleThreaded) commit(ctx context.Context) {
	r.offsets.writeCheckpoint(ctx)

	commitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.consumer.Commit(commitCtx); err != nil {
		r.logger.Error("Failed to commit offsets", "error", err)
	}
}

func (r *SingleThreaded) OnAssigned(ctx context.Context, partitions []kafka.TopicPartition) {
	r.logger.Info("Partitions assigned", "partitions", partitions)

	if err := r.taskManager.CreateTasks(partitions); err != nil {
		r.logger.Error("Failed to create tasks for assigned partitions", "error", err)
		emitError(r.errCh, r.logger, fmt.Errorf("failed to create tasks: %w", err))
		return
	}

	r.telemetry.TasksActive.Add(
		ctx, int64(len(partitions)), metric.WithAttributes(
			streamsotel.AttrRunnerType.String(streamsotel.RunnerTypeSingleThreaded),
		),
	)

	r.offsets.onAssigned(ctx, partitions)
}

func (r *SingleThreaded) OnRevoked(ctx context.Context, partitions []kafka.TopicPartition) {
	r.logger.Info("Partitions revoked", "partitions", partitions)

	r.commit(ctx)
	r.offsets.forget(partitions)

	if err := r.taskManager.CloseTasks(partitions); err != nil {
		r.logger.Error("Failed to close tasks for revoked partitions", "error", err)
	}

	if err := r.taskManager.DeleteTasks(partitions); err != nil {
		r.logger.Error("Failed to delete tasks for revoked partitions", "error", err)
	}

	r.telemetry.TasksActive.Add(
		ctx, -int64(len(partitions)), metric.WithAttributes(
			streamsotel.AttrRunnerType.String(streamsotel.RunnerTypeSingleThreaded),
		),
	)

	r.logger.Debug("Completed handling partition revocation")
}

// shutdown commits final offsets, flushes the producer, and releases
// resources held by the runner.
func (r *SingleThreaded) shutdown() {
	r.logger.Info("Shutting down single-threaded runner")

	r.commit(context.Background())

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()

	if err := r.producer.Flush(flushCtx); err != nil {
		r.logger.Error("Failed to flush producer during shutdown", "error", err)
	}

	if err := r.taskManager.Close(); err != nil {
		r.logger.Error("Failed to close task manager", "error", err)
	}

	r.offsets.stop(context.Background())
	r.committer.Close()

	r.logger.Info("Single-threaded runner shutdown complete")
}
