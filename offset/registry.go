package offset

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry records which (task, SSP) pairs this container owns. Register
// is legal only while the owning Manager is in StateRegistering; the set
// is frozen at Freeze, which Manager.Start calls before loading checkpoints.
type Registry struct {
	mu         sync.RWMutex
	frozen     bool
	byTask     map[TaskName]map[SSP]struct{}
	allSSPs    map[SSP]TaskName
	gaugeAttrs map[SSP][]attribute.KeyValue
	gauge      metric.Int64Gauge
}

func NewRegistry(meter metric.Meter) *Registry {
	r := &Registry{
		byTask:     make(map[TaskName]map[SSP]struct{}),
		allSSPs:    make(map[SSP]TaskName),
		gaugeAttrs: make(map[SSP][]attribute.KeyValue),
	}
	if meter != nil {
		if g, err := meter.Int64Gauge(
			"streamworks.offset.current",
			metric.WithDescription("Last-processed offset per system stream partition"),
		); err == nil {
			r.gauge = g
		}
	}
	return r
}

// Register union-inserts ssps under taskName, creating the per-SSP gauge
// attribute set lazily. Returns an error if the registry has already been
// frozen.
func (r *Registry) Register(taskName TaskName, ssps []SSP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return &LifecycleError{Op: "register", State: StateStarted, Expected: StateRegistering}
	}

	set, ok := r.byTask[taskName]
	if !ok {
		set = make(map[SSP]struct{})
		r.byTask[taskName] = set
	}
	for _, ssp := range ssps {
		set[ssp] = struct{}{}
		r.allSSPs[ssp] = taskName
		if _, exists := r.gaugeAttrs[ssp]; !exists {
			r.gaugeAttrs[ssp] = []attribute.KeyValue{
				attribute.String("system", ssp.Stream.System),
				attribute.String("stream", ssp.Stream.Name),
				attribute.Int64("partition", int64(ssp.Partition)),
			}
		}
	}
	return nil
}

// Freeze prevents further Register calls. Called once by Manager.Start
// after the registry has been fully populated.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// TaskFor returns the task owning ssp, disambiguating collisions is not
// needed: the invariant that each SSP belongs to exactly one task within
// the container means the map is the sole source of truth.
func (r *Registry) TaskFor(ssp SSP) (TaskName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.allSSPs[ssp]
	return t, ok
}

// SSPsForTask returns the registered SSPs of a task.
func (r *Registry) SSPsForTask(taskName TaskName) []SSP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byTask[taskName]
	out := make([]SSP, 0, len(set))
	for ssp := range set {
		out = append(out, ssp)
	}
	return out
}

// Tasks returns every registered task name.
func (r *Registry) Tasks() []TaskName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TaskName, 0, len(r.byTask))
	for t := range r.byTask {
		out = append(out, t)
	}
	return out
}

// AllSSPs returns every registered SSP regardless of owning task.
func (r *Registry) AllSSPs() []SSP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SSP, 0, len(r.allSSPs))
	for ssp := range r.allSSPs {
		out = append(out, ssp)
	}
	return out
}

// ObserveOffset records the current offset for a registered SSP. Offsets
// that don't parse as an integer (a broker-specific opaque cursor) are
// silently skipped: the gauge is a best-effort observability aid, never
// load-bearing. A no-op if the SSP was never registered or no meter was
// configured.
func (r *Registry) ObserveOffset(ssp SSP, offset string) {
	if r.gauge == nil {
		return
	}
	r.mu.RLock()
	attrs, ok := r.gaugeAttrs[ssp]
	r.mu.RUnlock()
	if !ok {
		return
	}
	v, err := strconv.ParseInt(offset, 10, 64)
	if err != nil {
		return
	}
	r.gauge.Record(context.Background(), v, metric.WithAttributes(attrs...))
}
