package postit

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wizard service.
var (
	ErrInsufficientCoins    = errors.New("insufficient coins")
	ErrNoActiveCycle        = errors.New("no active cycle")
	ErrCycleConfirmed       = errors.New("cycle already confirmed")
	ErrConfirmRequired      = errors.New("cycle not confirmed")
	ErrConfirmConflict      = errors.New("another post already confirmed")
	ErrGenerationCapReached = errors.New("generation cap reached")
	ErrRegenerateCapReached = errors.New("regenerate cap reached")
	ErrVariantCapReached    = errors.New("variant cap reached")
	ErrUnknownOption        = errors.New("unknown option")
	ErrUnknownPost          = errors.New("unknown post")
	ErrUnknownBundle        = errors.New("unknown coin bundle")
	ErrUnsupportedLanguage  = errors.New("unsupported language")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidPostID        = errors.New("invalid post id")
	ErrInvalidActionID      = errors.New("invalid action id")
	ErrInvalidPaymentID     = errors.New("invalid payment id")
	ErrInvalidGrantAmount   = errors.New("invalid grant amount")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrPaymentUserMismatch  = errors.New("payment does not belong to user")
	ErrGeneratorUnavailable = errors.New("text generator unavailable")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrBackendUnavailable   = errors.New("ledger backend unavailable")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// InsufficientCoinsError reports a balance check failure together with the
// current balance and the required cost.
type InsufficientCoinsError struct {
	Coins    Coins
	Required Coins
}

// Error returns the formatted error message.
func (insufficientError InsufficientCoinsError) Error() string {
	return fmt.Sprintf("insufficient coins: have %d, need %d", insufficientError.Coins, insufficientError.Required)
}

// Unwrap returns the sentinel for errors.Is checks.
func (insufficientError InsufficientCoinsError) Unwrap() error {
	return ErrInsufficientCoins
}

// ChargedCallError reports an external-call failure that happened after the
// corresponding debit was already committed. The charge is not refunded; the
// caller must surface the cost and remaining balance alongside the failure.
type ChargedCallError struct {
	Cost      Coins
	CoinsLeft Coins
	Err       error
}

// Error returns the formatted error message.
func (chargedError ChargedCallError) Error() string {
	return fmt.Sprintf("external call failed after debit of %d: %v", chargedError.Cost, chargedError.Err)
}

// Unwrap returns the underlying error.
func (chargedError ChargedCallError) Unwrap() error {
	return chargedError.Err
}
