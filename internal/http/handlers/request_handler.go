// Scheduling request HTTP handlers.
//
// This file exposes REST endpoints for scheduling request resources:
//   - POST   /requests                (create and send initial outreach)
//   - GET    /requests               (list, paginated, filterable by status)
//   - GET    /requests/{id}          (fetch one request with attendees)
//   - GET    /requests/{id}/actions  (audit log of one negotiation)
//   - POST   /requests/{id}/cancel   (manual cancellation)
//   - POST   /requests/{id}/complete (mark a confirmed meeting as held)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
	"github.com/meridian-crm/go-scheduling-backend/internal/services"
	"github.com/meridian-crm/go-scheduling-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NegotiationEngine defines the request lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type NegotiationEngine interface {
	// CreateRequest proposes slots, persists the request, and sends opening outreach.
	CreateRequest(ctx context.Context, req *domain.SchedulingRequest) error
	// ProcessReply interprets one inbound reply and advances the state machine.
	ProcessReply(ctx context.Context, msg domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error)
	// Cancel moves an open request to cancelled on behalf of actor.
	Cancel(ctx context.Context, id, actor string) error
	// Complete marks a confirmed meeting as held, disarming no-show detection.
	Complete(ctx context.Context, id string) error
}

// Sweeper drains due automation tokens in one batch.
type Sweeper interface {
	Run(ctx context.Context) (services.SweepReport, error)
}

// AttentionDesk lists and resolves persisted needs-a-human markers.
type AttentionDesk interface {
	ListOpen(ctx context.Context, limit int) ([]domain.AttentionItem, error)
	Resolve(ctx context.Context, id string) error
}

// SlotChecker answers point availability questions against the calendar
// provider.
type SlotChecker interface {
	CheckSlot(ctx context.Context, emails []string, start time.Time, durationMinutes int) (bool, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for scheduling requests, inbound replies,
// automation, and attention items. It depends on abstract service interfaces
// to keep transport concerns separate from business logic.
type Handlers struct {
	engine    NegotiationEngine
	sweeper   Sweeper
	attention AttentionDesk
	slots     SlotChecker
	db        *gorm.DB
}

// New constructs and returns a Handlers instance bound to the given services.
func New(engine NegotiationEngine, sweeper Sweeper, attention AttentionDesk, slots SlotChecker, db *gorm.DB) *Handlers {
	return &Handlers{engine: engine, sweeper: sweeper, attention: attention, slots: slots, db: db}
}

//
// DTOs
//

// AttendeePayload describes one participant in a create-request payload.
type AttendeePayload struct {
	Side             string `json:"side" binding:"required,oneof=internal external" example:"external"`
	Email            string `json:"email" binding:"required,email" example:"pat@acme.com"`
	Name             string `json:"name" example:"Pat Jones"`
	IsOrganizer      bool   `json:"is_organizer"`
	IsPrimaryContact bool   `json:"is_primary_contact"`
}

// CreateRequestPayload is the JSON payload for opening a new negotiation.
type CreateRequestPayload struct {
	Title           string            `json:"title" binding:"required,min=1,max=255" example:"Platform demo"`
	CompanyRef      string            `json:"company_ref" example:"acme-042"`
	MeetingType     string            `json:"meeting_type" binding:"required" example:"demo"`
	DurationMinutes int               `json:"duration_minutes" binding:"required,min=1" example:"30"`
	EmailThreadID   string            `json:"email_thread_id" binding:"required" example:"thread-7f3a"`
	CreatedBy       string            `json:"created_by" example:"ae@ours.io"`
	Attendees       []AttendeePayload `json:"attendees" binding:"required,min=2,dive"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRequestsResponse wraps a page of requests and pagination information.
type ListRequestsResponse struct {
	Requests   []domain.SchedulingRequest `json:"requests"`
	Pagination Pagination                 `json:"pagination"`
}

// ListActionsResponse wraps the audit log of one request.
type ListActionsResponse struct {
	Actions []domain.SchedulingAction `json:"actions"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// requestID validates the :id path param as a UUID and fails the request with
// 400 when it is not. The second return value reports validity.
func requestID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateRequest godoc
// @ID          createRequest
// @Summary     Open a new scheduling negotiation
// @Description Creates a scheduling request, proposes slots, and sends the initial outreach email.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateRequestPayload  true  "Create request payload"
//
// @Success     201  {object}  domain.SchedulingRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	var payload CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	req := &domain.SchedulingRequest{
		Title:           strings.TrimSpace(payload.Title),
		CompanyRef:      strings.TrimSpace(payload.CompanyRef),
		MeetingType:     payload.MeetingType,
		DurationMinutes: payload.DurationMinutes,
		EmailThreadID:   payload.EmailThreadID,
		CreatedBy:       strings.TrimSpace(payload.CreatedBy),
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "api"
	}
	for _, a := range payload.Attendees {
		req.Attendees = append(req.Attendees, domain.SchedulingAttendee{
			Side:             a.Side,
			Email:            strings.ToLower(strings.TrimSpace(a.Email)),
			Name:             strings.TrimSpace(a.Name),
			IsOrganizer:      a.IsOrganizer,
			IsPrimaryContact: a.IsPrimaryContact,
		})
	}

	if err := h.engine.CreateRequest(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyTitle),
			errors.Is(err, services.ErrInvalidDuration),
			errors.Is(err, services.ErrNoOrganizer),
			errors.Is(err, services.ErrNoExternalAttendee):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, req)
}

// ListRequests godoc
// @ID          listRequests
// @Summary     List scheduling requests (paginated)
// @Description Returns a page of scheduling requests, optionally filtered by status.
// @Tags        Requests
// @Produce     json
//
// @Param       status     query  string  false "Filter by status"  Enums(negotiating, awaiting_response, confirmed, declined, cancelled)
// @Param       page       query  int     false "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRequestsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	status := c.Query("status")
	if status != "" && !validStatus(status) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
		return
	}

	total, err := repo.CountRequests(ctx, h.db, status)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListRequestsPage(ctx, h.db, status, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRequestsResponse{
		Requests: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Fetch one scheduling request
// @Description Returns a single request with its attendees.
// @Tags        Requests
// @Produce     json
//
// @Param       id  path  string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.SchedulingRequest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}
	req, err := repo.GetRequest(c.Request.Context(), h.db, id)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		return
	}
	ok(c, http.StatusOK, req)
}

// ListActions godoc
// @ID          listActions
// @Summary     Audit log of one request
// @Description Returns all recorded actions for a request, oldest first.
// @Tags        Requests
// @Produce     json
//
// @Param       id  path  string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ListActionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Router      /requests/{id}/actions [get]
func (h *Handlers) ListActions(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if _, err := repo.GetRequest(ctx, h.db, id); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		return
	}
	actions, err := repo.ListActions(ctx, h.db, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListActionsResponse{Actions: actions})
}

// CancelRequest godoc
// @ID          cancelRequest
// @Summary     Cancel a negotiation
// @Description Moves an open request to cancelled and stops all automation on it.
// @Tags        Requests
// @Produce     json
//
// @Param       id  path  string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Request already terminal"
// @Router      /requests/{id}/cancel [post]
func (h *Handlers) CancelRequest(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}
	if err := h.engine.Cancel(c.Request.Context(), id, domain.ActorUser); err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		case errors.Is(err, services.ErrTerminalState):
			fail(c, http.StatusConflict, ErrCodeTerminalState, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// CompleteRequest godoc
// @ID          completeRequest
// @Summary     Mark a confirmed meeting as held
// @Description Records meeting completion and disarms no-show detection.
// @Tags        Requests
// @Produce     json
//
// @Param       id  path  string  true  "Request ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Request not confirmed"
// @Router      /requests/{id}/complete [post]
func (h *Handlers) CompleteRequest(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}
	if err := h.engine.Complete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		case errors.Is(err, services.ErrNotConfirmed):
			fail(c, http.StatusConflict, ErrCodeNotConfirmed, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

func validStatus(s string) bool {
	switch s {
	case domain.StatusNegotiating, domain.StatusAwaitingResponse,
		domain.StatusConfirmed, domain.StatusDeclined, domain.StatusCancelled:
		return true
	}
	return false
}
