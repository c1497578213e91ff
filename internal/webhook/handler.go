// Package webhook receives "recently added" events over HTTP and hands
// them to the fan-out dispatcher.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediabot/internal/config"
	"mediabot/internal/fanout"
	"mediabot/internal/media"
	"mediabot/internal/metrics"
	logx "mediabot/pkg/logx"
)

const (
	RecentlyAddedPath = "/webhooks/recentlyadded"

	defaultMaxBody  = 1 << 20
	dispatchTimeout = 2 * time.Minute
)

// Dispatcher is the part of fanout.Dispatcher the endpoint needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev media.Event, primary string) fanout.Report
}

type Deps struct {
	Dispatcher Dispatcher
	// Config is read per request so the token and primary destination
	// follow reloads.
	Config  func() *config.Config
	Metrics *metrics.Metrics
	Logger  logx.Logger
}

type Handler struct {
	dispatch Dispatcher
	cfg      func() *config.Config
	metrics  *metrics.Metrics
	log      logx.Logger
}

// DispatchResult is the data of a successful webhook response.
type DispatchResult struct {
	DispatchID string `json:"dispatch_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Matched    int    `json:"matched"`
	Delivered  int    `json:"delivered"`
	Unresolved int    `json:"unresolved"`
	Failed     int    `json:"failed"`
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{dispatch: d.Dispatcher, cfg: d.Config, metrics: d.Metrics, log: log}
}

// Routes builds the HTTP surface. metricsPath mounts the prometheus
// handler when non-empty.
func (h *Handler) Routes(metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Post(RecentlyAddedPath, h.handleRecentlyAdded)
	if metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, h.metrics.Handler())
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	success(w, map[string]string{"status": "healthy"}, h.log)
}

func (h *Handler) handleRecentlyAdded(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg()
	log := h.log.With(logx.String("rid", middleware.GetReqID(r.Context())))

	if !authorized(r, cfg.Webhook.Token) {
		h.metrics.WebhookEvent("", "unauthorized")
		fail(w, http.StatusUnauthorized, "invalid or missing token", log)
		return
	}

	limit := cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.metrics.WebhookEvent("", "invalid")
			fail(w, http.StatusRequestEntityTooLarge, "payload too large", log)
			return
		}
		fail(w, http.StatusBadRequest, "read body: "+err.Error(), log)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		h.metrics.WebhookEvent("", "empty")
		success(w, DispatchResult{}, log)
		return
	}

	ev, err := decode(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.metrics.WebhookEvent("", "invalid")
		log.Warn("webhook payload rejected", logx.Err(err))
		fail(w, http.StatusBadRequest, err.Error(), log)
		return
	}

	// The sender only wants an acknowledgement; a dropped connection must
	// not cut deliveries short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), dispatchTimeout)
	defer cancel()
	rep := h.dispatch.Dispatch(ctx, ev, cfg.RecentlyAdded.PostTo)
	h.metrics.WebhookEvent(string(ev.Type()), "dispatched")

	success(w, DispatchResult{
		DispatchID: rep.DispatchID,
		Title:      rep.Title,
		Matched:    rep.Matched,
		Delivered:  rep.Count(fanout.StatusDelivered),
		Unresolved: rep.Count(fanout.StatusUnresolved),
		Failed:     rep.Count(fanout.StatusFailed),
	}, log)
}

// decode accepts a JSON body or a form body whose "payload" field holds
// the JSON document.
func decode(contentType string, body []byte) (media.Event, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/x-www-form-urlencoded" {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, errors.Join(media.ErrInvalid, err)
		}
		return media.DecodeForm(vals.Get("payload"))
	}
	return media.Decode(bytes.NewReader(body))
}

// authorized accepts "Authorization: Bearer <token>" or ?token=. An empty
// configured token disables the check.
func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); got == "" && auth != "" {
		scheme, val, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			got = strings.TrimSpace(val)
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []logx.Field{
			logx.String("rid", middleware.GetReqID(r.Context())),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("dur", time.Since(start)),
		}
		if ww.Status() >= 500 {
			h.log.Warn("http request", fields...)
			return
		}
		h.log.Debug("http request", fields...)
	})
}
