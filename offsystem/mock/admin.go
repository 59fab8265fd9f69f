// Package mockadmin provides a hand-rolled offset.Admin test double,
// configured via functional options in the style of kafka/mock.
package mockadmin

import (
	"context"
	"strconv"
	"sync"

	"github.com/erikmalm/streamworks/offset"
)

var _ offset.Admin = (*Admin)(nil)

// Admin is an in-memory offset.Admin double. OffsetsAfter and
// StartpointResolutions are consulted by GetOffsetsAfter and
// ResolveStartpointToOffset respectively; comparisons fall back to a
// numeric string comparison unless overridden.
type Admin struct {
	mu sync.Mutex

	offsetsAfter          map[offset.SSP]string
	startpointResolutions map[offset.SSP]string
	resolutionErrs        map[offset.SSP]error
	comparator            func(a, b string) (int, bool)

	getOffsetsAfterCalls int
	resolveCalls         []ResolveCall
}

type ResolveCall struct {
	SSP        offset.SSP
	Startpoint offset.Startpoint
}

type Option func(*Admin)

// WithOffsetAfter seeds the result GetOffsetsAfter returns for ssp when
// asked about it, regardless of the input offset.
func WithOffsetAfter(ssp offset.SSP, offset string) Option {
	return func(a *Admin) { a.offsetsAfter[ssp] = offset }
}

// WithStartpointResolution seeds the offset ResolveStartpointToOffset
// returns for ssp.
func WithStartpointResolution(ssp offset.SSP, resolved string) Option {
	return func(a *Admin) { a.startpointResolutions[ssp] = resolved }
}

// WithResolutionError makes ResolveStartpointToOffset fail for ssp.
func WithResolutionError(ssp offset.SSP, err error) Option {
	return func(a *Admin) { a.resolutionErrs[ssp] = err }
}

// WithComparator overrides the default numeric-string comparator.
func WithComparator(cmp func(a, b string) (int, bool)) Option {
	return func(a *Admin) { a.comparator = cmp }
}

func New(opts ...Option) *Admin {
	a := &Admin{
		offsetsAfter:          make(map[offset.SSP]string),
		startpointResolutions: make(map[offset.SSP]string),
		resolutionErrs:        make(map[offset.SSP]error),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Admin) GetOffsetsAfter(_ context.Context, offsets map[offset.SSP]string) (map[offset.SSP]string, error) {
	a.mu.Lock()
	a.getOffsetsAfterCalls++
	a.mu.Unlock()

	out := make(map[offset.SSP]string, len(offsets))
	for ssp := range offsets {
		if resolved, ok := a.offsetsAfter[ssp]; ok {
			out[ssp] = resolved
		}
	}
	return out, nil
}

func (a *Admin) ResolveStartpointToOffset(_ context.Context, ssp offset.SSP, sp offset.Startpoint) (string, error) {
	a.mu.Lock()
	a.resolveCalls = append(a.resolveCalls, ResolveCall{SSP: ssp, Startpoint: sp})
	a.mu.Unlock()

	if err, ok := a.resolutionErrs[ssp]; ok {
		return "", err
	}
	return a.startpointResolutions[ssp], nil
}

func (a *Admin) OffsetComparator(x, y string) (int, bool) {
	if a.comparator != nil {
		return a.comparator(x, y)
	}
	if xi, errX := strconv.ParseInt(x, 10, 64); errX == nil {
		if yi, errY := strconv.ParseInt(y, 10, 64); errY == nil {
			switch {
			case xi < yi:
				return -1, true
			case xi > yi:
				return 1, true
			}
			return 0, true
		}
	}
	if x == y {
		return 0, true
	}
	if x < y {
		return -1, true
	}
	return 1, true
}

// GetOffsetsAfterCalls returns how many times GetOffsetsAfter was invoked.
func (a *Admin) GetOffsetsAfterCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.getOffsetsAfterCalls
}

// ResolveCalls returns every (ssp, startpoint) pair passed to
// ResolveStartpointToOffset, in call order.
func (a *Admin) ResolveCalls() []ResolveCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ResolveCall, len(a.resolveCalls))
	copy(out, a.resolveCalls)
	return out
}
