// Package errors provides structured error handling for the flow pipeline.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindDiff indicates a failure while diffing layer trees.
	KindDiff
	// KindPreroll indicates a failure during preroll.
	KindPreroll
	// KindPaint indicates a failure while painting or rasterizing.
	KindPaint
	// KindSubmit indicates a surface frame could not be presented.
	KindSubmit
	// KindConfig indicates an invalid or unreadable configuration.
	KindConfig
	// KindScene indicates an invalid scene description.
	KindScene
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindDiff:
		return "diff"
	case KindPreroll:
		return "preroll"
	case KindPaint:
		return "paint"
	case KindSubmit:
		return "submit"
	case KindConfig:
		return "config"
	case KindScene:
		return "scene"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// FlowError represents a structured error raised by the pipeline.
type FlowError struct {
	// Op is the operation that failed (e.g., "engine.Rasterizer.Draw").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Frame is the frame number the error belongs to, if any.
	Frame uint64
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *FlowError) Error() string {
	if e.Frame != 0 {
		return fmt.Sprintf("%s [%s] frame=%d: %v", e.Op, e.Kind, e.Frame, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "engine.Rasterizer.Draw").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// InvariantError reports a broken structural invariant, such as diffing a
// clean subtree against a missing old layer. It signals a defect in whoever
// built the layer tree and is raised with panic after being reported.
type InvariantError struct {
	// Op is the operation that detected the violation.
	Op string
	// Message describes the violated invariant.
	Message string
	// StackTrace contains the call stack at the time of the violation.
	StackTrace string
	// Timestamp is when the violation was detected.
	Timestamp time.Time
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Message)
}

// ErrorHandler receives errors reported by the pipeline.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *FlowError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
	// HandleInvariant is called right before an invariant violation panics.
	HandleInvariant(err *InvariantError)
}
