package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/ksred/holdings-ingest/pkg/response"
)

// FilingReader is the read side of the filings store used by the admin API.
type FilingReader interface {
	Ping(ctx context.Context) error
	GetFilingResponse(ctx context.Context, accessionNumber string) (*types.FilingResponse, error)
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status      string     `json:"status"`
	Store       string     `json:"store"`
	LastCycleAt *time.Time `json:"last_cycle_at"`
}

// ReloadResponse reports the outcome of a manual watch list reload.
type ReloadResponse struct {
	Changed       bool `json:"changed"`
	WatchListSize int  `json:"watch_list_size"`
}

// GinHandlers contains HTTP handlers for the operator API
type GinHandlers struct {
	processor *Processor
	store     FilingReader
}

// NewGinHandlers creates the admin API handlers.
func NewGinHandlers(processor *Processor, store FilingReader) *GinHandlers {
	return &GinHandlers{
		processor: processor,
		store:     store,
	}
}

// HealthHandler reports store reachability and the last successful cycle.
func (h *GinHandlers) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		health := HealthResponse{Status: "ok", Store: "ok", LastCycleAt: h.processor.LastCycleAt()}
		if err := h.store.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Store = err.Error()
			response.ServiceUnavailable(c, health)
			return
		}
		response.Success(c, health)
	}
}

// GetFilingHandler reads back a filing and its holdings by accession number.
// Requires a valid JWT token
func (h *GinHandlers) GetFilingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accession := strings.TrimSpace(c.Param("accession"))
		if accession == "" {
			response.BadRequest(c, "Accession number is required")
			return
		}

		filing, err := h.store.GetFilingResponse(c.Request.Context(), accession)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "Filing not found")
			return
		}
		response.Handle(c, filing, err)
	}
}

// ReloadWatchListHandler forces a watch list refresh outside the poll cycle.
func (h *GinHandlers) ReloadWatchListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		changed, err := h.processor.ReloadWatchList()
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, ReloadResponse{
			Changed:       changed,
			WatchListSize: h.processor.Status().WatchListSize,
		})
	}
}

// StatusHandler returns the loop counters.
func (h *GinHandlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.processor.Status())
	}
}
