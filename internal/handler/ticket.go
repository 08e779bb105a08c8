package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
)

// TicketReader: часть сервиса тикетов, доступная через HTTP. Сообщения и закрытие идут только через бота.
type TicketReader interface {
	ListOpenTickets(ctx context.Context) ([]model.Ticket, error)
	CountUnseen(ctx context.Context) (int64, error)
	GetTicket(ctx context.Context, id uint64) (*model.Ticket, error)
	GetConversation(ctx context.Context, ticketID uint64) ([]model.Message, error)
	Acknowledge(ctx context.Context, ticketID uint64) error
}

type TicketHandler struct {
	svc TicketReader
}

func NewTicketHandler(svc TicketReader) *TicketHandler {
	return &TicketHandler{svc: svc}
}

func (h *TicketHandler) List(c *gin.Context) {
	items, err := h.svc.ListOpenTickets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   len(items),
	})
}

func (h *TicketHandler) Unseen(c *gin.Context) {
	n, err := h.svc.CountUnseen(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unseen": n})
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	t, err := h.svc.GetTicket(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Messages(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	msgs, err := h.svc.GetConversation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_id": id, "messages": msgs})
}

// Ack снимает отметку о новой активности пользователя, не отправляя ответа.
func (h *TicketHandler) Ack(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	if err := h.svc.Acknowledge(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func ticketID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case errors.Is(err, errs.ErrTicketClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "ticket closed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
