package progress

import (
	"errors"

	"github.com/ecoquest-ledger/internal/domain"
)

// OutcomeKind classifies the answer to a reward action
type OutcomeKind int

const (
	Failure OutcomeKind = iota
	Success
	AlreadyDone
	InsufficientFunds
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case AlreadyDone:
		return "already_done"
	case InsufficientFunds:
		return "insufficient_funds"
	default:
		return "failure"
	}
}

// Outcome is the classified result of a reward action. Totals and Earned
// are set only for Success. Err is set only for Failure.
type Outcome struct {
	Kind    OutcomeKind
	Totals  domain.Totals
	Earned  domain.Totals
	Message string
	Err     error
}

func failure(err error) Outcome {
	return Outcome{Kind: Failure, Message: err.Error(), Err: err}
}

// classify turns a ledger answer into an Outcome
func classify(result domain.LedgerResult, err error) Outcome {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrAlreadyUnlocked):
			return Outcome{Kind: AlreadyDone, Message: err.Error()}
		case errors.Is(err, domain.ErrInsufficientFunds):
			return Outcome{Kind: InsufficientFunds, Message: err.Error()}
		default:
			return failure(err)
		}
	}

	switch result.Status {
	case domain.StatusSuccess:
		if !result.Totals.Valid() {
			return failure(domain.ErrInvariantViolation)
		}
		return Outcome{Kind: Success, Totals: result.Totals, Earned: result.Earned, Message: result.Message}
	case domain.StatusAlreadyCompleted, domain.StatusAlreadyUnlocked:
		return Outcome{Kind: AlreadyDone, Message: result.Message}
	case domain.StatusInsufficientFunds:
		return Outcome{Kind: InsufficientFunds, Message: result.Message}
	default:
		return failure(errors.New("unknown ledger status " + string(result.Status)))
	}
}
