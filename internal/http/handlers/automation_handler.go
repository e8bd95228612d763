// Automation and operations HTTP handlers.
//
// This file exposes the operational surface of the engine:
//   - POST /automation/sweep           (drain due automation tokens now)
//   - GET  /attention                  (open needs-a-human items)
//   - POST /attention/{id}/resolve     (mark an item handled)
//   - GET  /stats                      (engine-wide counters)
//
// The sweep endpoint exists alongside the cron loop so operators can force a
// pass after config changes or incident recovery; both paths share the same
// claim-token semantics, so overlap is harmless.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
	"github.com/meridian-crm/go-scheduling-backend/internal/services"
	"github.com/meridian-crm/go-scheduling-backend/internal/utils"
)

// ListAttentionResponse wraps the open attention items.
type ListAttentionResponse struct {
	Items []domain.AttentionItem `json:"items"`
}

// RunSweep godoc
// @ID          runSweep
// @Summary     Run one automation sweep now
// @Description Claims and handles all due next-action tokens in one batch and reports the outcome.
// @Tags        Automation
// @Produce     json
//
// @Success     200  {object}  services.SweepReport
// @Failure     500  {object}  handlers.ErrorResponse  "Sweep failed"
// @Router      /automation/sweep [post]
func (h *Handlers) RunSweep(c *gin.Context) {
	report, err := h.sweeper.Run(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// ListAttention godoc
// @ID          listAttention
// @Summary     List open attention items
// @Description Returns unresolved needs-a-human markers, oldest first.
// @Tags        Attention
// @Produce     json
//
// @Param       limit  query  int  false  "Max items"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListAttentionResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /attention [get]
func (h *Handlers) ListAttention(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	items, err := h.attention.ListOpen(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListAttentionResponse{Items: items})
}

// ResolveAttention godoc
// @ID          resolveAttention
// @Summary     Resolve an attention item
// @Description Marks one attention item as handled by a human.
// @Tags        Attention
// @Produce     json
//
// @Param       id  path  string  true  "Attention item ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Item not found"
// @Router      /attention/{id}/resolve [post]
func (h *Handlers) ResolveAttention(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}
	if err := h.attention.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "attention item not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// GetStats godoc
// @ID          getStats
// @Summary     Engine-wide counters
// @Description Returns request counts per status, open attention items, and pending automation tokens.
// @Tags        Automation
// @Produce     json
//
// @Success     200  {object}  repo.EngineStats
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := repo.Stats(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
