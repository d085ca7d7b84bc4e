package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rzbill/strata/internal/runtime"
	streamsvc "github.com/rzbill/strata/internal/services/streams"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// StreamsController handles all stream-related HTTP endpoints.
//
// Streams are addressed by name. Append creates the backing stream on first
// use; every other endpoint works on what already exists.
type StreamsController struct {
	rt     *runtime.Runtime
	st     *streamsvc.Service
	logger logpkg.Logger
}

// NewStreamsController creates a new streams controller.
func NewStreamsController(rt *runtime.Runtime, svc *streamsvc.Service, logger logpkg.Logger) *StreamsController {
	return &StreamsController{rt: rt, st: svc, logger: logger}
}

// RegisterRoutes registers all stream-related routes with the given mux.
func (c *StreamsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/streams", c.handleListStreams)
	mux.HandleFunc("/v1/streams/append", c.handleAppend)
	mux.HandleFunc("/v1/streams/fetch", c.handleFetch)
	mux.HandleFunc("/v1/streams/trim", c.handleTrim)
	mux.HandleFunc("/v1/streams/describe", c.handleDescribe)
	mux.HandleFunc("/v1/streams/warmup", c.handleWarmUp)
	mux.HandleFunc("/v1/streams/destroy", c.handleDestroy)
}

// handleListStreams lists streams whose name starts with ?prefix.
func (c *StreamsController) handleListStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	list, err := c.st.List(r.Context(), prefix)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	writeJSON(w, listStreamsResp{Prefix: prefix, Streams: list})
}

// handleAppend appends records and returns their offsets.
func (c *StreamsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	start := time.Now()
	var req appendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	res, err := c.st.Append(r.Context(), req.Name, req.Records)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	c.logger.Debug("http.append",
		logpkg.Str("stream", req.Name),
		logpkg.Int("records", len(req.Records)),
		logpkg.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(res)
}

// handleFetch reads records. Query: name, start, end, max_bytes, filter.
func (c *StreamsController) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	startOff, err := parseInt64(q.Get("start"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	endOff, err := parseInt64(q.Get("end"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	out, err := c.st.Fetch(r.Context(), name, streamsvc.FetchOptions{
		Start:    startOff,
		End:      endOff,
		MaxBytes: parseLimit(q.Get("max_bytes")),
		Filter:   q.Get("filter"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleTrim drops records below start_offset.
func (c *StreamsController) handleTrim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req trimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	info, err := c.st.Trim(r.Context(), req.Name, req.StartOffset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, info)
}

// handleDescribe returns catalog and storage state for ?name.
func (c *StreamsController) handleDescribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	info, err := c.st.Describe(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, info)
}

// handleWarmUp creates the stream without appending.
func (c *StreamsController) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req nameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	info, err := c.st.WarmUp(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, info)
}

// handleDestroy deletes a stream and its catalog entry.
func (c *StreamsController) handleDestroy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req nameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.st.Destroy(r.Context(), req.Name); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}
