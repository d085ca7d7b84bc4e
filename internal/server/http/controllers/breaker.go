package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rzbill/strata/internal/protocol"
	streamsvc "github.com/rzbill/strata/internal/services/streams"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// APIVersionHeader carries the protocol version of a binary request body.
const APIVersionHeader = "X-Api-Version"

// maxGroupBody bounds UpdateGroup request bodies.
const maxGroupBody = 64 << 10

// ControllerController serves the overload breaker status and the binary
// UpdateGroup endpoint.
type ControllerController struct {
	st     *streamsvc.Service
	logger logpkg.Logger
}

// NewControllerController creates a new controller-endpoint controller.
func NewControllerController(svc *streamsvc.Service, logger logpkg.Logger) *ControllerController {
	return &ControllerController{st: svc, logger: logger}
}

// RegisterRoutes registers breaker and group routes with the given mux.
func (c *ControllerController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/controller/breaker", c.handleBreaker)
	mux.HandleFunc("/v1/groups/update", c.handleUpdateGroup)
}

// handleBreaker returns the creation gate and breaker state.
func (c *ControllerController) handleBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, c.st.BreakerStatus())
}

// handleUpdateGroup decodes a protobuf-wire UpdateGroup request. The reply is
// always an encoded response; only undecodable requests get a 400.
func (c *ControllerController) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	version := protocol.MaxVersion
	if h := r.Header.Get(APIVersionHeader); h != "" {
		v, err := strconv.ParseInt(h, 10, 16)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+APIVersionHeader)
			return
		}
		version = int16(v)
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxGroupBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	out, err := c.st.UpdateGroup(r.Context(), raw, version)
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set(APIVersionHeader, strconv.Itoa(int(version)))
	if err != nil {
		if !errors.Is(err, protocol.ErrVersion) && !errors.Is(err, protocol.ErrMalformed) {
			c.logger.Error("update group", logpkg.Err(err))
		}
		w.WriteHeader(http.StatusBadRequest)
	}
	_, _ = w.Write(out)
}
