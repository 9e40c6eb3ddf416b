package commitmsg

import (
	"context"
	"errors"

	"evolog/cli/internal/git"
	"evolog/cli/internal/lock"
	"evolog/cli/internal/ollama"
)

// State is a step of one generation run.
type State int

const (
	StateIdle State = iota
	StateResolvingChanges
	StatePrompting
	StateGenerating
	StateDelivering
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolvingChanges:
		return "resolving-changes"
	case StatePrompting:
		return "prompting"
	case StateGenerating:
		return "generating"
	case StateDelivering:
		return "delivering"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Kind classifies why a run failed.
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindMalformedResponse
	KindEmptyResponse
	KindNoRepository
	KindInsertionFailed
	KindConfig
	KindBusy
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindMalformedResponse:
		return "malformed-response"
	case KindEmptyResponse:
		return "empty-response"
	case KindNoRepository:
		return "no-repository"
	case KindInsertionFailed:
		return "insertion-failed"
	case KindConfig:
		return "config"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

var (
	// ErrInsertionFailed wraps failures to write a generated message.
	ErrInsertionFailed = errors.New("commit message insertion failed")
	// ErrConfig wraps configuration load failures.
	ErrConfig = errors.New("invalid configuration")
)

// Classify maps an error from a run to its Kind. Insertion is checked first:
// a delivery that fails for lack of a repository is still an insertion failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInsertionFailed):
		return KindInsertionFailed
	case errors.Is(err, lock.ErrLocked):
		return KindBusy
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, git.ErrNoRepository):
		return KindNoRepository
	case errors.Is(err, ollama.ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ollama.ErrEmptyResponse):
		return KindEmptyResponse
	case errors.Is(err, ollama.ErrUnreachable), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindUnknown
	}
}
