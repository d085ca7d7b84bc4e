package controllers

import (
	"net/http"

	"github.com/rzbill/strata/internal/runtime"
	streamsvc "github.com/rzbill/strata/internal/services/streams"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general    *GeneralController
	streams    *StreamsController
	controller *ControllerController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, streamsSvc *streamsvc.Service, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:    NewGeneralController(rt),
		streams:    NewStreamsController(rt, streamsSvc, logger),
		controller: NewControllerController(streamsSvc, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.streams.RegisterRoutes(mux)
	r.controller.RegisterRoutes(mux)
}
