package services

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds, used as log fields and metric labels
const (
	KindSyntax       = "syntax"
	KindConnectivity = "connectivity"
	KindDispatch     = "dispatch"
	KindRunnerFailed = "runner_failed"
	KindTimeout      = "timeout"
	KindFetch        = "fetch"
	KindInternal     = "internal"
)

// SyntaxValidationError reports source code that does not parse
type SyntaxValidationError struct {
	Message string
}

func (e *SyntaxValidationError) Error() string {
	return fmt.Sprintf("Unable to parse function source code. Please ensure that it is valid Go: %s", e.Message)
}

// ConnectivityError reports a host that failed the connection probe
type ConnectivityError struct {
	Host string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("Invalid hostname or unable to connect: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// DispatchError reports a failure while staging or submitting a run
type DispatchError struct {
	RunName string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("Unable to dispatch run %s: %v", e.RunName, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RunnerFailedError reports a run that completed but whose function failed
type RunnerFailedError struct {
	Detail string
}

func (e *RunnerFailedError) Error() string {
	return fmt.Sprintf("Function execution failed: %s", e.Detail)
}

// TimeoutError reports a run that did not reach a terminal state within the wait budget.
// The remote run is left as is.
type TimeoutError struct {
	RunName string
	Budget  time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("Function execution timed out after %s waiting for run %s", e.Budget, e.RunName)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last poll error: %v)", e.LastErr)
	}
	return msg
}

// FetchError reports a result that could not be read after the run finished
type FetchError struct {
	RunName string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Unable to fetch result of run %s: %v", e.RunName, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorKind classifies err into one of the Kind constants
func ErrorKind(err error) string {
	var (
		syntaxErr  *SyntaxValidationError
		connErr    *ConnectivityError
		dispErr    *DispatchError
		runnerErr  *RunnerFailedError
		timeoutErr *TimeoutError
		fetchErr   *FetchError
	)
	// wrappers first: a DispatchError may carry a ConnectivityError
	switch {
	case errors.As(err, &dispErr):
		return KindDispatch
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &runnerErr):
		return KindRunnerFailed
	case errors.As(err, &syntaxErr):
		return KindSyntax
	case errors.As(err, &connErr):
		return KindConnectivity
	default:
		return KindInternal
	}
}
