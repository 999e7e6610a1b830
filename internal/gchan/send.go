// Package gchan contains helpers for channel operations that must respect a context.
// The helpers log consistently when a context is canceled mid-operation,
// which keeps kernel request/response code short.
package gchan

import (
	"context"
	"log/slog"
)

// SendC sends val to out unless ctx is canceled first.
// On cancellation it logs "Context canceled while " + during and reports false.
func SendC[T any](ctx context.Context, log *slog.Logger, out chan<- T, val T, during string) (sent bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return false
	case out <- val:
		return true
	}
}

// RecvC receives from in unless ctx is canceled first.
// On cancellation it logs "Context canceled while " + during,
// and returns the zero value of T with received=false.
func RecvC[T any](ctx context.Context, log *slog.Logger, in <-chan T, during string) (val T, received bool) {
	select {
	case <-ctx.Done():
		log.Info("Context canceled while "+during, "cause", context.Cause(ctx))
		return val, false
	case val = <-in:
		return val, true
	}
}

// ReqResp sends req to reqCh and then waits for a value on respCh.
// It reports false if ctx is canceled during either step.
//
// respCh should be buffered with capacity 1,
// so that the responder never blocks on a caller who gave up.
func ReqResp[T, U any](
	ctx context.Context, log *slog.Logger,
	reqCh chan<- T, req T,
	respCh <-chan U,
	what string,
) (resp U, ok bool) {
	if !SendC(ctx, log, reqCh, req, "sending "+what+" request") {
		return resp, false
	}

	return RecvC(ctx, log, respCh, "receiving "+what+" response")
}
