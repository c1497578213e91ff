package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	logx "mediabot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowRequest is the handler duration above which a success logs at info.
const slowRequest = 750 * time.Millisecond

// Chain wraps h so that m[0] is the outermost layer.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func reqLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error carrying the value.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					reqLogger(log, req).Error("handler panic",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per handled command or callback.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			fields := []logx.Field{logx.Duration("took", took)}
			if req != nil {
				fields = append(fields,
					logx.String("kind", string(req.Update.Kind)),
					logx.String("path", strings.Join(req.Path, " ")),
					logx.Int64("from", req.FromID),
				)
			}
			log := reqLogger(log, req)
			switch {
			case err != nil:
				log.Warn("handler failed", append(fields, logx.Err(err))...)
			case took >= slowRequest:
				log.Info("handler ok (slow)", fields...)
			default:
				log.Debug("handler ok", fields...)
			}
			return err
		}
	}
}
