package desk

import (
	"errors"

	"github.com/yoockh/helpdesk/internal/utils"
)

// Error kinds surfaced by the desk. Each returned error wraps exactly one of
// them, so callers test with errors.Is.
var (
	ErrAuthFailure     = errors.New("authentication failed")
	ErrFetchFailure    = errors.New("fetch failed")
	ErrDeliveryFailure = errors.New("delivery failed")
	ErrGuardViolation  = errors.New("action not allowed")
)

func authFailure(op, msg string, err error) error {
	return utils.E(utils.CodeUnauthorized, op, msg, errors.Join(ErrAuthFailure, err))
}

func fetchFailure(op string, err error) error {
	return utils.E(utils.CodeUnavailable, op, "could not reach the support service", errors.Join(ErrFetchFailure, err))
}

func deliveryFailure(op string, err error) error {
	return utils.E(utils.CodeUnavailable, op, "message was not delivered", errors.Join(ErrDeliveryFailure, err))
}

func guard(op, msg string) error {
	return utils.E(utils.CodeConflict, op, msg, ErrGuardViolation)
}
