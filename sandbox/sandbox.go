// Package sandbox wraps every network-calling adapter method. It
// acquires the bearer token, runs the supplied operation, and funnels
// any failure into the result envelope so nothing above it ever sees a
// raw error.
package sandbox

import (
	"context"
	"time"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/telemetry"
)

// Sandbox accumulates the error records of one adapter call. Create one
// per call; it is not reused.
type Sandbox struct {
	tokens auth.TokenProvider
	info   result.ErrorInfo
}

// New creates a sandbox bound to a token provider.
func New(tokens auth.TokenProvider) *Sandbox {
	return &Sandbox{tokens: tokens}
}

// PushError records a partial failure without aborting the operation.
// Catastrophic records are funneled the same way; the run loop checks
// for one after the operation settles.
func (s *Sandbox) PushError(rec result.ErrorRecord) {
	s.info.Push(rec)
}

// PushRaw classifies err and records it as non-catastrophic.
func (s *Sandbox) PushRaw(err error) {
	rec := result.Record(err)
	rec.Catastrophic = false
	s.info.Push(rec)
}

// PushPartial records the failure of one sub-operation of a fan-out
// whose siblings succeeded. The record is marked partial rather than
// carrying the classified kind, and is never catastrophic.
func (s *Sandbox) PushPartial(err error) {
	rec := result.Record(err)
	rec.Kind = result.KindPartial
	rec.Catastrophic = false
	s.info.Push(rec)
}

// Run acquires a token for the audience, invokes op with it, and returns
// an envelope. op errors are classified, never rethrown. If ctx is
// cancelled by the time op settles, the envelope carries a cancellation
// record and no value, so late settlement after the caller has moved on
// is inert.
func Run[T any](ctx context.Context, s *Sandbox, audience auth.Audience, op func(ctx context.Context, token string) (T, error)) result.Result[T] {
	start := time.Now()
	defer func() {
		telemetry.RecordAdapterCall(ctx, string(audience), time.Since(start).Seconds(), len(s.info.Errors))
	}()

	token, err := s.tokens.GetToken(ctx, audience)
	if err != nil {
		s.info.Push(result.ErrorRecord{
			Kind:         result.KindAuth,
			Message:      err.Error(),
			Catastrophic: true,
			Raw:          err,
		})
		return result.Fail[T](&s.info)
	}

	value, err := op(ctx, token)

	if ctx.Err() != nil {
		s.info.Push(result.ErrorRecord{
			Kind:    result.KindCancelled,
			Message: ctx.Err().Error(),
			Raw:     ctx.Err(),
		})
		return result.Fail[T](&s.info)
	}
	if err != nil {
		s.info.Push(result.Record(err))
		return result.Fail[T](&s.info)
	}
	if s.info.Catastrophic != nil {
		return result.Fail[T](&s.info)
	}
	if s.info.Empty() {
		return result.Ok(value)
	}
	return result.OkWith(value, &s.info)
}
