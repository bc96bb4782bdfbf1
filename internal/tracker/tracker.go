// Package tracker polls a generation job until it reaches a terminal state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/api"
	"vidgen/internal/model"
)

const DefaultInterval = 2 * time.Second

var ErrStopped = errors.New("tracking stopped")

type StatusFetcher interface {
	FetchStatus(ctx context.Context, id model.JobID) (model.Snapshot, error)
}

// Recorder persists a completed job. ledger.Recorder satisfies it.
type Recorder interface {
	RecordCompletion(id model.JobID, snap model.Snapshot) (model.LedgerEntry, error)
}

type Options struct {
	Interval time.Duration
	// MaxTransportFailures ends a session after that many consecutive
	// transport failures. Zero polls indefinitely.
	MaxTransportFailures int
	Logger               zerolog.Logger
}

// Update is delivered for every non-terminal poll.
type Update struct {
	ID                model.JobID
	State             model.State
	Snapshot          model.Snapshot
	Err               error
	TransientFailures int
}

// Result is delivered once, when a session reaches a terminal state or
// gives up after too many transport failures.
type Result struct {
	ID       model.JobID
	State    model.State
	Snapshot model.Snapshot
	Message  string
	Err      error
	Entry    *model.LedgerEntry
}

func (r Result) Completed() bool { return r.State == model.StateCompleted }

type Poller struct {
	fetcher     StatusFetcher
	recorder    Recorder
	interval    time.Duration
	maxFailures int
	logger      zerolog.Logger

	mu      sync.Mutex
	current *session
}

type session struct {
	id         model.JobID
	onUpdate   func(Update)
	onTerminal func(Result)
	cancel     context.CancelFunc
	done       chan struct{}

	stopped    atomic.Bool
	inCallback atomic.Bool
	deliverMu  sync.Mutex

	// prev is the session this one replaced. Only the session goroutine
	// reads it, and it is cleared after the first delivery.
	prev *session
}

func New(fetcher StatusFetcher, recorder Recorder, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxFailures := opts.MaxTransportFailures
	if maxFailures < 0 {
		maxFailures = 0
	}
	return &Poller{
		fetcher:     fetcher,
		recorder:    recorder,
		interval:    interval,
		maxFailures: maxFailures,
		logger:      opts.Logger,
	}
}

// Start begins tracking id, stopping any session already running. Both
// callbacks run on the session goroutine in query order and may be nil.
func (p *Poller) Start(id model.JobID, onUpdate func(Update), onTerminal func(Result)) error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("start tracking: video id is required")
	}
	if p.fetcher == nil {
		return fmt.Errorf("start tracking: status fetcher is not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:         id,
		onUpdate:   onUpdate,
		onTerminal: onTerminal,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.current
	p.current = s
	s.prev = prev
	p.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	p.logger.Debug().Str("video_id", id.String()).Msg("tracking started")
	go p.run(ctx, s)
	return nil
}

// Stop ends the current session. It is idempotent, safe before Start and
// safe from inside a callback. Once it returns no callback begins and the
// ledger is not touched, even for a response already in flight.
func (p *Poller) Stop() {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// Done is closed when the current session's goroutine exits.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.current.done
}

// Active returns the id being tracked, or "" when idle.
func (p *Poller) Active() model.JobID {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil || s.stopped.Load() {
		return ""
	}
	select {
	case <-s.done:
		return ""
	default:
		return s.id
	}
}

func (s *session) stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.cancel()
	// A stop issued from inside a callback must not wait on itself.
	if !s.inCallback.Load() {
		s.deliverMu.Lock()
		s.deliverMu.Unlock()
	}
}

// awaitPrevious blocks until no replaced session is inside a callback.
// Stop skips that wait when called from a callback, so the new session
// holds its first delivery instead.
func (s *session) awaitPrevious() {
	for q := s.prev; q != nil; q = q.prev {
		q.deliverMu.Lock()
		q.deliverMu.Unlock()
	}
	s.prev = nil
}

// deliver runs record (if any) and then fn, unless the session was stopped.
func (s *session) deliver(record func(), fn func()) bool {
	s.awaitPrevious()
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.stopped.Load() {
		return false
	}
	if record != nil {
		record()
	}
	if fn != nil {
		s.inCallback.Store(true)
		defer s.inCallback.Store(false)
		fn()
	}
	return true
}

func (p *Poller) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.cancel()

	log := p.logger.With().Str("video_id", s.id.String()).Logger()
	state := model.StateChecking
	failures := 0

	for !s.stopped.Load() {
		snap, err := p.fetcher.FetchStatus(ctx, s.id)
		if s.stopped.Load() {
			log.Debug().Msg("discarding response after stop")
			return
		}

		outcome := classify(s.id, snap, err)
		step := model.Transition(state, outcome)
		log.Debug().
			Str("outcome", outcome.Kind.String()).
			Int("progress", snap.Progress).
			Str("state", string(step.Next)).
			Msg("poll")

		if outcome.Kind == model.OutcomeTransportError {
			failures++
			if p.maxFailures > 0 && failures >= p.maxFailures {
				log.Warn().Err(outcome.Err).Int("failures", failures).Msg("giving up after transport failures")
				res := Result{
					ID:       s.id,
					State:    state,
					Snapshot: snap,
					Message:  fmt.Sprintf("status checks failed %d times in a row", failures),
					Err:      fmt.Errorf("track video %s: %w", s.id, outcome.Err),
				}
				s.deliver(nil, func() { callTerminal(s, res) })
				return
			}
			log.Debug().Err(outcome.Err).Int("failures", failures).Msg("transient status failure")
			u := Update{ID: s.id, State: state, Snapshot: snap, Err: outcome.Err, TransientFailures: failures}
			if !s.deliver(nil, func() { callUpdate(s, u) }) {
				return
			}
		} else {
			failures = 0
			if step.Next != state {
				log.Info().Str("from", string(state)).Str("to", string(step.Next)).Msg("state changed")
			}
			state = step.Next

			if step.Terminal {
				res := Result{ID: s.id, State: state, Snapshot: snap, Message: step.Message, Err: step.Err}
				var record func()
				if step.RecordCompletion && p.recorder != nil {
					record = func() {
						entry, err := p.recorder.RecordCompletion(s.id, snap)
						if err != nil {
							log.Error().Err(err).Msg("record completion failed")
							res.Err = fmt.Errorf("record completed video %s: %w", s.id, err)
							return
						}
						res.Entry = &entry
					}
				}
				s.deliver(record, func() { callTerminal(s, res) })
				return
			}

			u := Update{ID: s.id, State: state, Snapshot: snap, Err: step.Err}
			if !s.deliver(nil, func() { callUpdate(s, u) }) {
				return
			}
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func classify(id model.JobID, snap model.Snapshot, err error) model.Outcome {
	switch {
	case err == nil:
		return model.ClassifySnapshot(id, snap)
	case api.IsNotFound(err):
		return model.NotFoundOutcome(id, err)
	default:
		return model.TransportOutcome(id, err)
	}
}

func callUpdate(s *session, u Update) {
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
}

func callTerminal(s *session, r Result) {
	if s.onTerminal != nil {
		s.onTerminal(r)
	}
}

// Wait tracks id on p until a terminal result, the session is stopped by
// someone else, or ctx is done. Terminal failures are returned as errors
// alongside the result.
func Wait(ctx context.Context, p *Poller, id model.JobID, onUpdate func(Update)) (Result, error) {
	results := make(chan Result, 1)
	if err := p.Start(id, onUpdate, func(r Result) { results <- r }); err != nil {
		return Result{}, err
	}
	done := p.Done()

	select {
	case r := <-results:
		return r, r.Err
	case <-done:
		select {
		case r := <-results:
			return r, r.Err
		default:
			return Result{ID: id}, ErrStopped
		}
	case <-ctx.Done():
		p.Stop()
		return Result{ID: id}, ctx.Err()
	}
}
