package progress

import (
	"context"
	"time"
)

// DefaultInterval is the sampling cadence used when none is set.
const DefaultInterval = 50 * time.Millisecond

// Source returns the current counters of the exchange being sampled.
type Source func() Transfer

// Option configures a [Sampler].
type Option func(*Sampler)

// WithInterval sets the sampling cadence. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSink sets the receiver of progress snapshots.
func WithSink(sink Sink) Option {
	return func(s *Sampler) {
		s.sink = sink
	}
}

// WithTick registers fn to run after every sample. The orchestrator
// uses it to drive incremental parsing at the sampling cadence.
func WithTick(fn func()) Option {
	return func(s *Sampler) {
		s.onTick = fn
	}
}

// Sampler polls a Source on a fixed cadence and derives speed from
// the bytes moved between two samples.
type Sampler struct {
	source   Source
	interval time.Duration
	sink     Sink
	onTick   func()

	lastMoved int64
	lastAt    time.Time
	now       func() time.Time
}

// NewSampler returns a Sampler reading from source.
func NewSampler(source Source, opts ...Option) *Sampler {
	s := &Sampler{
		source:   source,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples until ctx ends. Stopping is not an error, so Run
// always returns nil; the signature fits an errgroup.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.lastAt = s.now()
	s.lastMoved = s.source().Moved()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p := s.Sample()
			if s.sink != nil {
				s.sink(p)
			}
			if s.onTick != nil {
				s.onTick()
			}
		}
	}
}

// Sample takes one snapshot and updates the speed baseline.
func (s *Sampler) Sample() Progress {
	t := s.source()
	now := s.now()

	moved := t.Moved()
	elapsed := now.Sub(s.lastAt).Seconds()

	var rate float64
	if elapsed > 0 && !s.lastAt.IsZero() {
		rate = float64(moved-s.lastMoved) / elapsed
	}
	s.lastMoved = moved
	s.lastAt = now

	speed, unit := SpeedUnit(rate)
	pos, length := t.Position()

	return Progress{
		Position:   pos,
		Length:     length,
		Percentage: t.Percentage(),
		Speed:      speed,
		Unit:       unit,
	}
}
