// Package middleware provides the logger and cross-cutting Fiber middleware.
package middleware

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process logger. Records logged with a request context carry
// that request's id, trace id and user id.
var Logger = NewLogger(os.Getenv("APP_ENV"))

// PageCacheHeader reports whether a page came from the page cache.
const PageCacheHeader = "X-Page-Cache"

// requestInfo is what the log handler reads from a request context.
type requestInfo struct {
	RequestID string
	TraceID   string
	UserID    uint
}

type requestInfoKey struct{}

func infoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

func withInfo(ctx context.Context, update func(*requestInfo)) context.Context {
	info := infoFrom(ctx)
	update(&info)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithRequestID returns ctx tagged with a request id for logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withInfo(ctx, func(i *requestInfo) { i.RequestID = id })
}

// WithUserID returns ctx tagged with the signed-in user for logging.
func WithUserID(ctx context.Context, id uint) context.Context {
	return withInfo(ctx, func(i *requestInfo) { i.UserID = id })
}

type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	info := infoFrom(ctx)
	if info.RequestID != "" {
		r.AddAttrs(slog.String("request_id", info.RequestID))
	}
	if info.TraceID != "" {
		r.AddAttrs(slog.String("trace_id", info.TraceID))
	}
	if info.UserID != 0 {
		r.AddAttrs(slog.Uint64("user_id", uint64(info.UserID)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

// WrapHandler makes h add the request fields found in the context.
func WrapHandler(h slog.Handler) slog.Handler {
	return requestHandler{h}
}

// NewLogger logs JSON in production and text elsewhere. The test env only
// shows warnings.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "test" {
		opts.Level = slog.LevelWarn
	}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if env == "production" || env == "prod" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(WrapHandler(h))
}

// ContextMiddleware moves the request id and trace id from Fiber locals into
// the request context. It must run after requestid and TracingMiddleware.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		tid, _ := c.Locals("traceID").(string)
		c.SetUserContext(withInfo(c.UserContext(), func(i *requestInfo) {
			i.RequestID, i.TraceID = rid, tid
		}))
		return c.Next()
	}
}

// SetUserID records the authenticated user in Fiber locals and in the
// request context.
func SetUserID(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(WithUserID(c.UserContext(), userID))
}

// StructuredLogger writes one access log line per request. Server errors
// log at error level and client errors at warn.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}
		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if hit := c.GetRespHeader(PageCacheHeader); hit != "" {
			attrs = append(attrs, slog.String("page_cache", hit))
		}

		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		Logger.LogAttrs(c.UserContext(), level, "request", attrs...)
		return err
	}
}
