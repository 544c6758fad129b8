// Package generation defines the generative capabilities the companion relies on,
// the tagged outcome of every call, and the sticky quota breakers guarding them.
package generation

import "fmt"

// Kind names one generation capability. Each kind owns one QuotaBreaker.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindMusic  Kind = "music"
	KindSpeech Kind = "speech"
)

// Status tags the outcome of a generation call.
type Status int

const (
	StatusOK Status = iota
	StatusQuotaExceeded
	StatusNotConfigured
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusQuotaExceeded:
		return "quota_exceeded"
	case StatusNotConfigured:
		return "not_configured"
	case StatusTransient:
		return "transient"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a generation call. Value is only meaningful when
// Status is StatusOK; Message carries the failure detail for StatusTransient.
type Result[T any] struct {
	Status  Status
	Value   T
	Message string
}

// OK wraps a successful payload.
func OK[T any](v T) Result[T] { return Result[T]{Status: StatusOK, Value: v} }

// QuotaExceeded reports a quota signal from the provider.
func QuotaExceeded[T any]() Result[T] { return Result[T]{Status: StatusQuotaExceeded} }

// NotConfigured reports a disabled capability.
func NotConfigured[T any]() Result[T] { return Result[T]{Status: StatusNotConfigured} }

// Transient reports any other failure with its message.
func Transient[T any](msg string) Result[T] {
	return Result[T]{Status: StatusTransient, Message: msg}
}

// FromError classifies err into a Result; a nil err yields OK(v).
func FromError[T any](v T, err error) Result[T] {
	if err == nil {
		return OK(v)
	}
	switch Classify(err) {
	case StatusQuotaExceeded:
		return QuotaExceeded[T]()
	case StatusNotConfigured:
		return NotConfigured[T]()
	default:
		return Transient[T](err.Error())
	}
}

// Ok reports whether the call succeeded.
func (r Result[T]) Ok() bool { return r.Status == StatusOK }
