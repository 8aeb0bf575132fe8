// Package httpserver exposes the stub link-matching backend over JSON/HTTP.
package httpserver

import (
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/convert"
	"github.com/and161185/deferlink/internal/crypto"
	"github.com/and161185/deferlink/internal/metrics"
	"github.com/and161185/deferlink/internal/server/stub"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxRequestBytes = 64 << 10

// Deps groups what the handler needs. Gatherer may be nil to disable /metrics.
type Deps struct {
	Backend  *stub.Backend
	APIKey   string
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// NewHandler builds the stub HTTP API.
func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	h := &handler{backend: d.Backend, log: d.Log}

	api := http.NewServeMux()
	api.HandleFunc("POST "+convert.PathReferrer, h.referrer)
	api.HandleFunc("POST "+convert.PathFingerprint, h.fingerprint)

	mux := http.NewServeMux()
	mux.Handle("/v1/", requireKey(d.APIKey, api))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return recoverer(d.Log, logging(d.Log, d.Metrics, mux))
}

type handler struct {
	backend *stub.Backend
	log     *zap.Logger
}

func (h *handler) referrer(w http.ResponseWriter, r *http.Request) {
	body, ok := decode(w, r)
	if !ok {
		return
	}
	token, _ := body[convert.FieldReferrer].(string)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty referrer"})
		return
	}
	reply := h.backend.LookupByReferrer(token)
	writeJSON(w, reply.Status, reply.Body)
}

func (h *handler) fingerprint(w http.ResponseWriter, r *http.Request) {
	body, ok := decode(w, r)
	if !ok {
		return
	}
	fp, err := convert.FingerprintFromMap(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	reply := h.backend.MatchByFingerprint(fp)
	writeJSON(w, reply.Status, reply.Body)
}

func decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad json"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireKey rejects requests without the expected bearer key. An empty key disables the check.
func requireKey(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" {
			tok, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !crypto.VerifyAPIKey(tok, apiKey) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "bad api key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logging(log *zap.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.ObserveRequest(routeLabel(r.URL.Path), strconv.Itoa(rec.status))
		log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", r.Header.Get("X-Request-Id")),
			zap.String("peer", r.RemoteAddr),
		)
	})
}

// routeLabel keeps the metric label set bounded to the served routes.
func routeLabel(path string) string {
	switch path {
	case convert.PathReferrer, convert.PathFingerprint, "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

func recoverer(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				log.Error("panic",
					zap.Any("reason", v),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
