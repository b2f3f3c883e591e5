package handlers

import (
	"context"
	"net/http"
	"time"

	"example.com/ticketing/services/events/internal/services"
	"example.com/ticketing/services/events/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// wireTimeLayout is the wire format for the search window parameters. The
// trailing Z is a literal; offsets are rejected.
const wireTimeLayout = "2006-01-02T15:04:05Z"

// EventQueryService is the read-path contract the handler depends on.
type EventQueryService interface {
	List(ctx context.Context, startsAt, endsAt time.Time) ([]services.EventView, error)
}

// EventsHandler handles event search HTTP requests
type EventsHandler struct {
	queryService EventQueryService
	tracer       tracing.Tracer
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(queryService EventQueryService, tracer tracing.Tracer) *EventsHandler {
	return &EventsHandler{
		queryService: queryService,
		tracer:       tracer,
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error *apiError   `json:"error"`
	Data  interface{} `json:"data"`
}

type eventsData struct {
	Events []services.EventView `json:"events"`
}

type listResponse struct {
	Data  eventsData  `json:"data"`
	Error interface{} `json:"error"`
}

// HandleSearch lists events fully contained in the requested window. Both
// parameters are validated before any storage access.
func (h *EventsHandler) HandleSearch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-events")
	defer h.tracer.EndTransaction(txn)

	startsAt, ok := h.windowParam(c, "starts_at")
	if !ok {
		return
	}
	endsAt, ok := h.windowParam(c, "ends_at")
	if !ok {
		return
	}

	h.tracer.AddAttribute(txn, "starts_at", startsAt.String())
	h.tracer.AddAttribute(txn, "ends_at", endsAt.String())

	views, err := h.queryService.List(c.Request.Context(), startsAt, endsAt)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list events")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: &apiError{Code: http.StatusInternalServerError, Message: "internal server error"},
		})
		return
	}

	c.JSON(http.StatusOK, listResponse{Data: eventsData{Events: views}})
}

// windowParam parses one required window parameter, answering the request
// with a client error when it is absent or malformed.
func (h *EventsHandler) windowParam(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	t, err := time.Parse(wireTimeLayout, value)
	if value == "" || err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: &apiError{
				Code:    http.StatusBadRequest,
				Message: "Query param: '" + name + "' not provided or malformed.",
			},
		})
		return time.Time{}, false
	}
	return t, true
}

// RegisterRoutes registers the handler's routes
func (h *EventsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/search", h.HandleSearch)
}
