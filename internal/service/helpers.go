package service

import (
	"context"
	"errors"
	"time"
)

// ErrForbidden indicates the authorization gate denied the request.
var ErrForbidden = errors.New("forbidden")

// storageCtx derives a bounded context for a single storage call. A zero
// timeout leaves the request context untouched.
func storageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
