// Package apihttp exposes the catalog search pipeline over HTTP.
package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"playshelf/catalogsearch/internal/catalog"
	"playshelf/catalogsearch/internal/domain"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
}

// Pinger is implemented by dependencies the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	search  SearchService
	logger  *slog.Logger
	pingers map[string]Pinger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPinger registers a named dependency for the health endpoint.
func WithPinger(name string, pinger Pinger) ServerOption {
	return func(s *Server) {
		if pinger != nil {
			s.pingers[name] = pinger
		}
	}
}

func NewServer(search SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:  search,
		logger:  slog.Default(),
		pingers: make(map[string]Pinger),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/classify", s.handleClassify)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "catalog-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidQuery),
			errors.Is(err, catalog.ErrInvalidLimit),
			errors.Is(err, catalog.ErrInvalidOffset):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Error("search failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func parseSearchRequest(r *http.Request) (domain.SearchRequest, error) {
	values := r.URL.Query()

	query := strings.TrimSpace(values.Get("q"))
	if query == "" {
		query = strings.TrimSpace(values.Get("query"))
	}

	request := domain.SearchRequest{Query: query}

	var err error
	if request.Limit, err = parseIntParam(values.Get("limit")); err != nil {
		return domain.SearchRequest{}, errors.New("limit must be an integer")
	}
	if request.Offset, err = parseIntParam(values.Get("offset")); err != nil {
		return domain.SearchRequest{}, errors.New("offset must be an integer")
	}
	if request.MinCachedResults, err = parseIntParam(values.Get("minCached")); err != nil {
		return domain.SearchRequest{}, errors.New("minCached must be an integer")
	}
	request.IncludeDLC = parseBoolParam(values.Get("includeDlc"))

	if raw := strings.TrimSpace(values.Get("buckets")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			bucket, ok := domain.ParseBucket(name)
			if !ok {
				return domain.SearchRequest{}, errors.New("unknown bucket: " + strings.TrimSpace(name))
			}
			request.AllowedBuckets = append(request.AllowedBuckets, bucket)
		}
	}
	return request, nil
}

// handleClassify reorders an already-fetched entry list without touching the
// cache or upstream. It serves callers that hold cached results and only need
// the ranking engine.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var payload struct {
		Query   string                `json:"query"`
		Entries []domain.CatalogEntry `json:"entries"`
		Buckets []string              `json:"buckets,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	var allowed []domain.Bucket
	for _, name := range payload.Buckets {
		bucket, ok := domain.ParseBucket(name)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown bucket: "+name)
			return
		}
		allowed = append(allowed, bucket)
	}

	ranked := catalog.Rank(payload.Entries, payload.Query, allowed)
	writeJSON(w, http.StatusOK, struct {
		Results         []domain.CatalogEntry         `json:"results"`
		Classifications []domain.ClassificationResult `json:"classifications"`
	}{
		Results:         ranked,
		Classifications: catalog.ClassifyAll(ranked),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type dependency struct {
		Name  string `json:"name"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	healthy := true
	deps := make([]dependency, 0, len(s.pingers))
	for name, pinger := range s.pingers {
		dep := dependency{Name: name, OK: true}
		if err := pinger.Ping(r.Context()); err != nil {
			dep.OK = false
			dep.Error = err.Error()
			healthy = false
		}
		deps = append(deps, dep)
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, struct {
		Status       string       `json:"status"`
		Dependencies []dependency `json:"dependencies,omitempty"`
	}{Status: state, Dependencies: deps})
}

func parseIntParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseBoolParam(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: code, Message: message})
}
