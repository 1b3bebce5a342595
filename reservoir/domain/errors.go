package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidAmount: quantidade negativa, não finita ou texto que não é número.
	// O estado do reservatório não muda.
	ErrInvalidAmount = errors.New("invalid amount")

	ErrCancelledWhileWaiting = errors.New("cancelled while waiting for fuel")
	ErrTimedOut              = errors.New("timed out waiting for fuel")

	ErrSchedulerSaturated = errors.New("scheduler saturated")
	ErrSchedulerClosed    = errors.New("scheduler closed")
	ErrThrottled          = errors.New("trigger throttled")
)

// AmountError descreve uma quantidade rejeitada.
// errors.Is(err, ErrInvalidAmount) é verdadeiro; Unwrap expõe o erro de parse, se houver.
type AmountError struct {
	Input  string
	Reason string
	Err    error
}

func (e *AmountError) Error() string {
	msg := ErrInvalidAmount.Error() + " " + strconv.Quote(e.Input)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AmountError) Unwrap() error { return e.Err }

func (e *AmountError) Is(target error) bool { return target == ErrInvalidAmount }

// InvariantViolation é o valor do panic quando o nível sai de [0, capacity].
// Indica bug de coordenação; não deve ser recuperado.
type InvariantViolation struct {
	Op       string
	Level    float64
	Capacity float64
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("reservoir invariant violated after %s: level=%v capacity=%v", v.Op, v.Level, v.Capacity)
}
