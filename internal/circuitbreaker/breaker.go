package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Config tunes a breaker.
type Config struct {
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold uint32
	// SuccessThreshold consecutive successes close a half-open breaker.
	SuccessThreshold uint32
	// HalfOpenRequests caps concurrent trial calls while half-open.
	HalfOpenRequests uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// ResetInterval clears the closed-state failure streak; zero never clears.
	ResetInterval time.Duration

	OnStateChange func(name string, from, to State)
}

// Breaker guards calls to one dependency (postgres, redis).
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	inFlight  uint32
	deadline  time.Time
	epoch     uint64
}

// New returns a closed breaker.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{name: name, cfg: cfg, logger: logger, now: time.Now}
	b.deadline = b.resetDeadline(b.now())
	return b
}

// Name of the guarded dependency.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker rejects the call. Context cancellation
// by the caller is not counted as a dependency failure.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	epoch, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(epoch, false)
			panic(r)
		}
	}()

	err = fn()
	ok := err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
	b.record(epoch, ok)
	return err
}

// State reports the current state, advancing open to half-open once the timeout elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.now())
	return b.state
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	switch b.state {
	case StateOpen:
		return b.epoch, ErrCircuitBreakerOpen
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenRequests {
			return b.epoch, ErrTooManyRequests
		}
	}
	b.inFlight++
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if epoch != b.epoch {
		// The breaker changed state while the call was running.
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if !ok {
			b.transition(StateOpen, now)
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed, now)
		}
	}
}

// advance applies time-driven transitions. Caller holds mu.
func (b *Breaker) advance(now time.Time) {
	if b.deadline.IsZero() || now.Before(b.deadline) {
		return
	}
	switch b.state {
	case StateOpen:
		b.transition(StateHalfOpen, now)
	case StateClosed:
		b.epoch++
		b.failures = 0
		b.deadline = b.resetDeadline(now)
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.epoch++
	b.failures, b.successes, b.inFlight = 0, 0, 0

	switch to {
	case StateOpen:
		b.deadline = now.Add(b.cfg.OpenTimeout)
	case StateClosed:
		b.deadline = b.resetDeadline(now)
	default:
		b.deadline = time.Time{}
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
	b.logger.Warn("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (b *Breaker) resetDeadline(now time.Time) time.Time {
	if b.cfg.ResetInterval == 0 {
		return time.Time{}
	}
	return now.Add(b.cfg.ResetInterval)
}
