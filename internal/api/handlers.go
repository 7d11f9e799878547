package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"quantdesk/internal/backtest"
	"quantdesk/internal/domain"
	"quantdesk/internal/heatmap"
	"quantdesk/internal/indicator"
	"quantdesk/internal/store"
	"quantdesk/internal/strategy"
)

const maxBodyBytes = 1 << 20

// ModulesResponse lists what a backtest request may name.
type ModulesResponse struct {
	Indicators []indicator.Info `json:"indicators"`
	Strategies []strategy.Info  `json:"strategies"`
	Intervals  []string         `json:"intervals"`
}

// SymbolsResponse is the tradable universe.
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

// RunsResponse lists recorded runs, newest first.
type RunsResponse struct {
	Runs []store.RunRecord `json:"runs"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// HealthRequest carries the credentials to check.
type HealthRequest struct {
	Credentials domain.Credentials `json:"market_data_credentials"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Backtester.Run(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	var req heatmap.Request
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Aggregator.Scan(r.Context(), s.deps.Provider, req, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleHeatmapStream streams progress as server-sent events followed by a
// single result or error event.
func (s *Server) handleHeatmapStream(w http.ResponseWriter, r *http.Request) {
	var req heatmap.Request
	if !decodeBody(w, r, &req) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event string, v any) {
		if err := writeEvent(w, event, v); err != nil {
			s.log.Debug("sse write failed", "err", err)
			return
		}
		flusher.Flush()
	}

	res, err := s.deps.Aggregator.Scan(r.Context(), s.deps.Provider, req, func(p heatmap.Progress) {
		send(EventProgress, p)
	})
	if err != nil {
		s.logFailure(r, err)
		send(EventError, errorBody(err))
		return
	}
	send(EventResult, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var req HealthRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, s.deps.Provider.Health(r.Context(), req.Credentials))
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, ModulesResponse{
		Indicators: indicator.Describe(),
		Strategies: s.deps.Strategies.Describe(),
		Intervals:  domain.SupportedIntervals(),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	creds := domain.Credentials{
		APIKey:    r.Header.Get(HeaderAPIKey),
		APISecret: r.Header.Get(HeaderAPISecret),
	}
	u, err := s.deps.Provider.Universe(creds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	symbols, err := u.Symbols(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if q := strings.ToUpper(r.URL.Query().Get("prefix")); q != "" {
		symbols = slices.DeleteFunc(slices.Clone(symbols), func(sym string) bool {
			return !strings.HasPrefix(sym, q)
		})
	}
	writeJSON(w, SymbolsResponse{Symbols: symbols, Count: len(symbols)})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "NotFound", "run log disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, RunsResponse{Runs: runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "NotFound", "run log disabled")
		return
	}
	id := r.PathValue("id")
	rec, err := s.deps.Runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("run %s not found", id))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// Credential headers accepted by GET endpoints.
const (
	HeaderAPIKey    = "X-Alpaca-Key"
	HeaderAPISecret = "X-Alpaca-Secret"
)

// SSE event names.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	wildcard := len(origins) == 0 || slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderAPIKey+", "+HeaderAPISecret)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeBody reads a JSON body into v, replying 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "InvalidRequest", msg)
		return false
	}
	return true
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch domain.Kind(err) {
	case "InvalidRequest", "UnknownStrategy", "UnknownIndicator", "InvalidParameter", "InvalidHorizon":
		return http.StatusBadRequest
	case "InsufficientData":
		return http.StatusUnprocessableEntity
	case "DataUnavailable":
		return http.StatusServiceUnavailable
	case "Cancelled":
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Kind: domain.Kind(err)}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logFailure(r, err)
	status := HTTPStatus(err)
	body := errorBody(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("encoding error response", "err", err)
	}
}

func (s *Server) logFailure(r *http.Request, err error) {
	level := slog.LevelInfo
	if domain.Kind(err) == "Internal" {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"kind", domain.Kind(err),
		"err", err,
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Kind: kind})
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
