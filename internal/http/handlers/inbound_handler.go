// Inbound reply HTTP handler.
//
// This file exposes the webhook-style endpoint that mail plumbing calls when a
// prospect replies on a negotiation thread:
//   - POST /inbound/replies
//
// The endpoint is idempotent by message id: redelivering the same message is
// acknowledged without reprocessing, so upstream providers may retry freely.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/services"
)

// InboundReplyPayload is the JSON payload for one normalized inbound reply.
// Field names follow the upstream mail provider's webhook shape.
type InboundReplyPayload struct {
	ID             string `json:"id" binding:"required" example:"AAMkAGI2TG93AAA="`
	Subject        string `json:"subject" example:"RE: Platform demo"`
	Body           string `json:"body" binding:"required"`
	BodyPreview    string `json:"bodyPreview"`
	FromAddress    string `json:"from_address" binding:"required,email" example:"pat@acme.com"`
	FromName       string `json:"from_name" example:"Pat Jones"`
	ConversationID string `json:"conversationId" binding:"required" example:"thread-7f3a"`
}

// ProcessReplyResponse reports the interpretation and resulting request state.
type ProcessReplyResponse struct {
	Request        *domain.SchedulingRequest `json:"request"`
	Interpretation domain.Interpretation     `json:"interpretation"`
	// Duplicate is true when the message had already been processed and the
	// call was acknowledged without side effects.
	Duplicate bool `json:"duplicate,omitempty"`
}

// ProcessReply godoc
// @ID          processReply
// @Summary     Process one inbound prospect reply
// @Description Interprets the reply, advances the negotiation state machine, and returns the interpretation. Redelivery of an already-processed message id is acknowledged with duplicate=true.
// @Tags        Inbound
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.InboundReplyPayload  true  "Normalized inbound reply"
//
// @Success     200  {object}  handlers.ProcessReplyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No request owns this thread"
// @Failure     409  {object}  handlers.ErrorResponse  "Request already terminal"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /inbound/replies [post]
func (h *Handlers) ProcessReply(c *gin.Context) {
	var payload InboundReplyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	msg := domain.InboundMessage{
		ID:             payload.ID,
		Subject:        payload.Subject,
		Body:           payload.Body,
		BodyPreview:    payload.BodyPreview,
		FromAddress:    strings.ToLower(strings.TrimSpace(payload.FromAddress)),
		FromName:       strings.TrimSpace(payload.FromName),
		ConversationID: payload.ConversationID,
	}

	req, itp, err := h.engine.ProcessReply(c.Request.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateMessage):
			// Ack the redelivery so the provider stops retrying.
			ok(c, http.StatusOK, ProcessReplyResponse{Request: req, Duplicate: true})
		case errors.Is(err, services.ErrUnknownThread):
			fail(c, http.StatusNotFound, ErrCodeUnknownThread, err.Error())
		case errors.Is(err, services.ErrTerminalState):
			fail(c, http.StatusConflict, ErrCodeTerminalState, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ProcessReplyResponse{Request: req, Interpretation: itp})
}
