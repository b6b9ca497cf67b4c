// Package result carries the uniform success/error envelope every adapter
// method returns. Adapter failures never surface as Go errors to callers;
// they arrive as records inside the envelope.
package result

// Result wraps either a value or structured error information.
type Result[T any] struct {
	value  T
	hasVal bool
	errs   *ErrorInfo
}

// Ok builds a success envelope around v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, hasVal: true}
}

// OkWith builds a success envelope that also carries non-catastrophic
// records accumulated during the call.
func OkWith[T any](v T, info *ErrorInfo) Result[T] {
	if info != nil && len(info.Errors) == 0 && info.Catastrophic == nil {
		info = nil
	}
	return Result[T]{value: v, hasVal: true, errs: info}
}

// Fail builds an error envelope with no value.
func Fail[T any](info *ErrorInfo) Result[T] {
	return Result[T]{errs: info}
}

// HasNoData reports whether the call produced no value.
func (r Result[T]) HasNoData() bool {
	return !r.hasVal
}

// Data returns the value; the zero value when HasNoData.
func (r Result[T]) Data() T {
	return r.value
}

// ErrorInfo returns the accumulated error information, nil on a clean
// success.
func (r Result[T]) ErrorInfo() *ErrorInfo {
	return r.errs
}

// Failed reports whether a catastrophic error aborted the call.
func (r Result[T]) Failed() bool {
	return r.errs != nil && r.errs.Catastrophic != nil
}
