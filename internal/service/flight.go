package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/target/opsconsole/internal/errors"
)

// flightTimeout bounds a shared fetch once it no longer follows any single caller's context.
const flightTimeout = 30 * time.Second

// sharedFlight runs fn once per key for all concurrent callers. fn gets a context that keeps
// ctx's values but not its cancellation, so one caller giving up does not fail the others;
// each caller still stops waiting when its own ctx ends.
func sharedFlight(
	ctx context.Context,
	g *singleflight.Group,
	key string,
	fn func(context.Context) (any, error),
) (any, error) {
	ch := g.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, key+" abandoned")
	}
}
