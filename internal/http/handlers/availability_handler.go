// Availability HTTP handler.
//
// This file exposes a point availability probe used by CRM frontends before
// proposing a time manually:
//   - GET /availability
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridian-crm/go-scheduling-backend/internal/utils"
)

// AvailabilityResponse reports whether one slot is open for all attendees.
type AvailabilityResponse struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Emails          []string  `json:"emails"`
	Available       bool      `json:"available"`
}

// CheckAvailability godoc
// @ID          checkAvailability
// @Summary     Probe one candidate slot
// @Description Reports whether the given attendees are all free for the slot. Tentative and working-elsewhere calendar entries do not block; anything unknown does.
// @Tags        Availability
// @Produce     json
//
// @Param       emails    query  string  true   "Comma-separated attendee emails"
// @Param       start     query  string  true   "Slot start (RFC 3339)"  example(2026-09-01T14:00:00Z)
// @Param       duration  query  int     false  "Duration in minutes"    minimum(1) default(30)
//
// @Success     200  {object}  handlers.AvailabilityResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502  {object}  handlers.ErrorResponse  "Calendar provider error"
// @Router      /availability [get]
func (h *Handlers) CheckAvailability(c *gin.Context) {
	var emails []string
	for _, e := range strings.Split(c.Query("emails"), ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	if len(emails) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "emails query parameter required")
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start must be RFC 3339")
		return
	}

	duration := utils.AtoiDefault(c.Query("duration"), 30)
	if duration < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "duration must be positive")
		return
	}

	available, err := h.slots.CheckSlot(c.Request.Context(), emails, start.UTC(), duration)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AvailabilityResponse{
		Start:           start.UTC(),
		DurationMinutes: duration,
		Emails:          emails,
		Available:       available,
	})
}
