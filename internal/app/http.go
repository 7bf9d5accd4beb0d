package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"arb_go/internal/cache"
	"arb_go/internal/domain"
	"arb_go/internal/engine"
	"arb_go/internal/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultViewDepth = 20

type healthResponse struct {
	CheckedAt  string              `json:"checked_at"`
	Books      int                 `json:"books"`
	Crossed    int                 `json:"crossed"`
	Incomplete int                 `json:"incomplete"`
	Stale      int                 `json:"stale"`
	Anomalous  []engine.BookHealth `json:"anomalous"`
}

type statsResponse struct {
	Metrics   infra.MetricsSnapshot `json:"metrics"`
	Cache     *cache.Stats          `json:"cache,omitempty"`
	Books     int                   `json:"books"`
	Created   uint64                `json:"books_created"`
	Connected map[string]bool       `json:"connected"`
}

// Handler serves /metrics, /healthz, the read-only book API and, when
// enabled, pprof.
func (b *Bootstrap) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(b.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/symbols", b.handleSymbols)
	mux.HandleFunc("GET /api/books/{venue}/{symbol}", b.handleBook)
	mux.HandleFunc("GET /api/consolidated/{symbol}", b.handleConsolidated)
	mux.HandleFunc("GET /api/health", b.handleHealth)
	mux.HandleFunc("GET /api/premium/{base}", b.handlePremium)
	mux.HandleFunc("GET /api/stats", b.handleStats)

	if b.Config.Metrics.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (b *Bootstrap) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := b.Service.Symbols()
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Bootstrap) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol, err := domain.ParseSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, ok := b.Service.Book(domain.VenueID(strings.ToLower(r.PathValue("venue"))), symbol)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (b *Bootstrap) handleConsolidated(w http.ResponseWriter, r *http.Request) {
	symbol, err := domain.ParseSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	depth := defaultViewDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidDepth)
			return
		}
		depth = n
	}
	var venues []domain.VenueID
	if v := r.URL.Query().Get("venues"); v != "" {
		for _, name := range strings.Split(v, ",") {
			venues = append(venues, domain.VenueID(strings.ToLower(strings.TrimSpace(name))))
		}
	}
	writeJSON(w, http.StatusOK, b.Service.Consolidated(symbol, depth, venues...))
}

func (b *Bootstrap) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := b.Service.Health()
	crossed, incomplete, stale := report.Counts()
	anomalous := report.Anomalous()
	if anomalous == nil {
		anomalous = []engine.BookHealth{}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		CheckedAt:  report.CheckedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Books:      len(report.Books),
		Crossed:    crossed,
		Incomplete: incomplete,
		Stale:      stale,
		Anomalous:  anomalous,
	})
}

func (b *Bootstrap) handlePremium(w http.ResponseWriter, r *http.Request) {
	p, ok := b.Service.Premium(r.PathValue("base"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Bootstrap) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Metrics:   b.Metrics.Snapshot(),
		Books:     b.Manager.BookCount(),
		Created:   b.Manager.BooksCreated(),
		Connected: make(map[string]bool, len(b.feeds)),
	}
	if c := b.Manager.Cache(); c != nil {
		st := c.Stats()
		resp.Cache = &st
	}
	for _, f := range b.feeds {
		resp.Connected[f.name] = f.worker.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
