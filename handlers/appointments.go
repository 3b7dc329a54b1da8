package handlers

import (
	"net/http"
	"strconv"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	conversationRepo "bookline/database/repository/conversation"
	"bookline/utils"

	"github.com/gin-gonic/gin"
)

// OpsHandler exposes the JWT-protected support endpoints: upcoming
// appointments for a tenant and the message log of one conversation.
type OpsHandler struct {
	Appointments  appointmentRepo.AppointmentRepository
	Conversations conversationRepo.ConversationRepository
}

func NewOpsHandler(appointments appointmentRepo.AppointmentRepository, conversations conversationRepo.ConversationRepository) *OpsHandler {
	return &OpsHandler{Appointments: appointments, Conversations: conversations}
}

// ListAppointments returns the tenant's appointments for a professional over
// the coming days. Query params: professional_id (required), days (default 7).
func (h *OpsHandler) ListAppointments(c *gin.Context) {
	tenantID := c.GetString("tenantID")
	professionalID := c.Query("professional_id")
	if professionalID == "" {
		utils.JSONError(c, http.StatusBadRequest, "missing professional_id", "")
		return
	}

	days := 7
	if d, err := strconv.Atoi(c.Query("days")); err == nil && d > 0 {
		days = d
	}

	from := time.Now()
	to := from.AddDate(0, 0, days)
	appointments, err := h.Appointments.FindOverlapping(c.Request.Context(), tenantID, professionalID, from, to)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to load appointments", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appointments})
}

// ListConversationMessages returns the recent messages of one conversation.
func (h *OpsHandler) ListConversationMessages(c *gin.Context) {
	conversationID := c.Param("id")
	messages, err := h.Conversations.RecentMessages(c.Request.Context(), conversationID, 100)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to load messages", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Health reports process liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
