package auth

import (
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// Outcome is the result of a verification, for callers that prefer a switch
// over errors.Is chains.
type Outcome uint8

const (
	OutcomeValid Outcome = iota
	OutcomeInvalid
	OutcomeExpired
	OutcomeFault
)

// OutcomeOf classifies an error returned by the gateway. A nil error is
// OutcomeValid; anything that is not a token fault is OutcomeFault.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeValid
	case errors.Is(err, common.ErrTokenExpired):
		return OutcomeExpired
	case errors.Is(err, common.ErrInvalidToken):
		return OutcomeInvalid
	default:
		return OutcomeFault
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExpired:
		return "expired"
	default:
		return "fault"
	}
}
