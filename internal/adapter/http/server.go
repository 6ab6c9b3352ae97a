// Package http serves a minimal stand-in for the Harmony coverages API so
// load runs can be smoke tested locally.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/skorper/harmony/internal/domain"
)

// RangesetRoute is the OGC coverages rangeset route, matched on the escaped path.
const RangesetRoute = "/{collection}/ogc-api-coverages/1.0.0/collections/{variable}/coverage/rangeset"

const maxUploadBytes = 32 << 20

// Options configures the stub.
type Options struct {
	Addr string
	// StepPolls is the number of status reads before a job moves one state.
	StepPolls int
	// AsyncCollections always answer asynchronously.
	AsyncCollections []string
	// SyncCollections always answer synchronously.
	SyncCollections []string
	// FailCollections produce jobs that end failed.
	FailCollections []string
}

// DefaultOptions mirrors how the UAT environment answers the built-in workload.
func DefaultOptions() Options {
	return Options{
		Addr:             ":3000",
		StepPolls:        2,
		AsyncCollections: []string{"C1234082763-POCLOUD"},
		SyncCollections:  []string{"C1234530533-EEDTEST"},
	}
}

// Server is the HTTP adapter for the stub API.
type Server struct {
	opts   Options
	jobs   *jobStore
	router *mux.Router
	server *http.Server
}

// NewServer creates a new stub server.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		jobs:   newJobStore(opts.StepPolls),
		router: mux.NewRouter().UseEncodedPath(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc(RangesetRoute, s.handleRangeset).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// jobResponse is the JSON body of job endpoints.
type jobResponse struct {
	domain.JobState
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type jobListResponse struct {
	Count int           `json:"count"`
	Jobs  []jobResponse `json:"jobs"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (s *Server) handleRangeset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection, err := url.PathUnescape(vars["collection"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid collection")
		return
	}
	variable, err := url.PathUnescape(vars["variable"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid variable")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	output := outputName(variable, r.Form.Get("format"))
	if !s.isAsync(collection, r.Form) {
		log.Debug().Str("collection", collection).Str("variable", variable).Msg("sync rangeset")
		w.Header().Set("Content-Type", contentType(r.Form.Get("format")))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", output))
		fmt.Fprintf(w, "stub output for %s/%s\n", collection, variable)
		return
	}

	state := s.jobs.create(requestURL(r), output, slices.Contains(s.opts.FailCollections, collection))
	log.Debug().Str("job", state.JobID).Str("collection", collection).Msg("job created")
	http.Redirect(w, r, "/jobs/"+state.JobID, http.StatusSeeOther)
}

// isAsync reports whether a request could match more than one granule.
func (s *Server) isAsync(collection string, form url.Values) bool {
	if slices.Contains(s.opts.AsyncCollections, collection) {
		return true
	}
	if slices.Contains(s.opts.SyncCollections, collection) {
		return false
	}
	if form.Get("granuleId") != "" || form.Get("granuleid") != "" {
		return false
	}
	return form.Get("maxResults") != "1"
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.poll(mux.Vars(r)["id"])
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(job, baseURL(r)))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.cancel(mux.Vars(r)["id"])
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	log.Debug().Str("job", job.state.JobID).Msg("job canceled")
	s.writeJSON(w, http.StatusOK, toResponse(job, baseURL(r)))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	jobs := s.jobs.list()
	resp := jobListResponse{Count: len(jobs), Jobs: make([]jobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toResponse(j, base))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobFinished):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("job error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{
		Code:        "harmony." + strings.ReplaceAll(http.StatusText(status), " ", ""),
		Description: "Error: " + msg,
	})
}

func toResponse(job *stubJob, base string) jobResponse {
	state := job.state
	self := base + "/jobs/" + url.PathEscape(state.JobID)
	state.Links = []domain.JobLink{{Href: self, Rel: "self", Type: "application/json", Title: "The current page"}}
	if state.Status == domain.StatusSuccessful {
		state.Links = append(state.Links, domain.JobLink{
			Href:  base + "/service-results/" + url.PathEscape(state.JobID) + "/" + url.PathEscape(job.output),
			Rel:   "data",
			Type:  contentType(path.Ext(job.output)),
			Title: job.output,
		})
	}
	return jobResponse{
		JobState:  state,
		CreatedAt: job.created.UTC().Format(time.RFC3339),
		UpdatedAt: job.updated.UTC().Format(time.RFC3339),
	}
}

func outputName(variable, format string) string {
	name := strings.Trim(strings.ReplaceAll(variable, "/", "_"), "_")
	if name == "" {
		name = "all"
	}
	switch contentType(format) {
	case "image/png":
		return name + ".png"
	case "image/tiff":
		return name + ".tif"
	case "application/x-zarr":
		return name + ".zarr"
	}
	return name + ".nc4"
}

// contentType normalizes a format parameter or file extension.
func contentType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "image/png", "png":
		return "image/png"
	case "image/tiff", "tif", "tiff":
		return "image/tiff"
	case "application/x-zarr", "zarr":
		return "application/x-zarr"
	}
	return "application/x-netcdf4"
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func requestURL(r *http.Request) string {
	return baseURL(r) + r.URL.RequestURI()
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("stub listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
