package model

import (
	"errors"
	"fmt"
	"strings"
)

type State string

const (
	StateChecking   State = "checking"
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateNotFound   State = "not_found"
)

// Server-side status strings carried in a Snapshot.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeProcessing
	OutcomeCompleted
	OutcomeFailed
	OutcomeNotFound
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeProcessing:
		return "processing"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one status query, reduced to the cases the
// state machine distinguishes.
type Outcome struct {
	Kind     OutcomeKind
	ID       JobID
	Snapshot Snapshot
	Err      error
}

// Step is what Transition decides for one Outcome.
type Step struct {
	From             State
	Next             State
	Terminal         bool
	RecordCompletion bool
	Message          string
	Err              error
}

var allowedTransitions = map[State]map[State]bool{
	StateChecking: {
		StateChecking:   true,
		StatePending:    true,
		StateProcessing: true,
		StateCompleted:  true,
		StateFailed:     true,
		StateNotFound:   true,
	},
	StatePending: {
		StatePending:    true,
		StateProcessing: true,
		StateCompleted:  true,
		StateFailed:     true,
		StateNotFound:   true,
	},
	StateProcessing: {
		StatePending:    true, // server requeue
		StateProcessing: true,
		StateCompleted:  true,
		StateFailed:     true,
		StateNotFound:   true,
	},
	StateCompleted: {},
	StateFailed:    {},
	StateNotFound:  {},
}

func IsKnownState(s State) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateNotFound:
		return true
	default:
		return false
	}
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func ClassifySnapshot(id JobID, snap Snapshot) Outcome {
	o := Outcome{ID: id, Snapshot: snap}
	switch strings.ToLower(strings.TrimSpace(snap.Status)) {
	case StatusPending:
		o.Kind = OutcomePending
	case StatusProcessing, StatusGenerating:
		o.Kind = OutcomeProcessing
	case StatusCompleted:
		o.Kind = OutcomeCompleted
	case StatusFailed:
		o.Kind = OutcomeFailed
	default:
		o.Kind = OutcomeTransportError
		o.Err = fmt.Errorf("unrecognized job status %q", snap.Status)
	}
	return o
}

func NotFoundOutcome(id JobID, err error) Outcome {
	return Outcome{Kind: OutcomeNotFound, ID: id, Err: err}
}

func TransportOutcome(id JobID, err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, ID: id, Err: err}
}

// Transition is pure: it never performs I/O and never mutates its input.
// Terminal states absorb every further outcome.
func Transition(from State, o Outcome) Step {
	step := Step{From: from, Next: from}
	if from.Terminal() {
		step.Terminal = true
		return step
	}

	var to State
	switch o.Kind {
	case OutcomePending:
		to = StatePending
	case OutcomeProcessing:
		to = StateProcessing
	case OutcomeCompleted:
		to = StateCompleted
		step.RecordCompletion = true
	case OutcomeFailed:
		to = StateFailed
		failed := &GenerationFailedError{ID: o.ID, Detail: strings.TrimSpace(o.Snapshot.Message)}
		step.Message = failed.Error()
		step.Err = failed
	case OutcomeNotFound:
		to = StateNotFound
		lost := &JobNotFoundError{ID: o.ID}
		step.Message = lost.Error()
		step.Err = lost
	default:
		step.Err = o.Err
		return step
	}

	if !CanTransition(from, to) {
		step.Err = fmt.Errorf("invalid job state transition: %q -> %q (video_id=%s)", from, to, o.ID)
		step.RecordCompletion = false
		step.Message = ""
		return step
	}
	step.Next = to
	step.Terminal = to.Terminal()
	return step
}

var (
	ErrGenerationFailed = errors.New("video generation failed")
	ErrJobNotFound      = errors.New("video not found")
)

type GenerationFailedError struct {
	ID     JobID
	Detail string
}

func (e *GenerationFailedError) Error() string {
	detail := strings.TrimSpace(e.Detail)
	// The backend already prefixes its message with the same phrase.
	prefix := ErrGenerationFailed.Error() + ":"
	if len(detail) >= len(prefix) && strings.EqualFold(detail[:len(prefix)], prefix) {
		detail = strings.TrimSpace(detail[len(prefix):])
	}
	if detail == "" {
		return ErrGenerationFailed.Error()
	}
	return ErrGenerationFailed.Error() + ": " + detail
}

func (e *GenerationFailedError) Is(target error) bool {
	return target == ErrGenerationFailed
}

type JobNotFoundError struct {
	ID JobID
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("video %s not found; the job may have been lost (server restart or eviction)", e.ID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}
