package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	conversationRepo "bookline/database/repository/conversation"
	tenantRepo "bookline/database/repository/tenant"
	"bookline/models"
	"bookline/services/agent"
	"bookline/services/intelligence"
	"bookline/services/messaging"
	"bookline/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InboundMessage is the provider-agnostic webhook shape the core expects.
// Transport-specific envelopes are flattened to this by the channel adapter.
type InboundMessage struct {
	From              string `json:"from"`
	To                string `json:"to"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"providerMessageId"`
}

// WebhookHandler receives provider callbacks, deduplicates them, runs the
// orchestrator to termination and dispatches the reply. All collaborators are
// injected so tests can swap in doubles.
type WebhookHandler struct {
	Tenants       tenantRepo.TenantRepository
	Conversations conversationRepo.ConversationRepository
	Appointments  appointmentRepo.AppointmentRepository
	Provider      intelligence.Provider
	Sender        messaging.Sender
	Verifier      messaging.SignatureVerifier
	Assembler     *agent.Assembler
	MaxToolRounds int
	ModelTimeout  time.Duration
	VerifyToken   string
}

// VerifySubscription answers the provider's GET handshake by echoing
// hub.challenge when the verify token matches.
func (h *WebhookHandler) VerifySubscription(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.VerifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.String(http.StatusForbidden, "verification failed")
}

// HandleInbound processes one webhook delivery. Once the payload is
// understood, every outcome returns 200 so the provider never retry-storms;
// only signature and contract violations surface as HTTP failures.
func (h *WebhookHandler) HandleInbound(c *gin.Context) {
	logger := utils.GetLogger()

	raw, err := c.GetRawData()
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "unreadable payload", err.Error())
		return
	}

	if err := h.Verifier.Verify(raw, c.GetHeader("X-Hub-Signature-256")); err != nil {
		utils.JSONError(c, http.StatusUnauthorized, "invalid signature", err.Error())
		return
	}

	var inbound InboundMessage
	if err := json.Unmarshal(raw, &inbound); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "malformed payload", err.Error())
		return
	}
	if inbound.From == "" || inbound.To == "" || inbound.Body == "" || inbound.ProviderMessageID == "" {
		utils.JSONError(c, http.StatusBadRequest, "missing required fields",
			"from, to, body and providerMessageId are all required")
		return
	}

	ctx := c.Request.Context()

	tenant, err := h.Tenants.FindByWhatsAppNumber(ctx, inbound.To)
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, "unknown recipient number", inbound.To)
		return
	}

	conv, err := h.Conversations.FindOrCreate(ctx, tenant.ID, inbound.From)
	if err != nil {
		// The thread itself is unreachable; nothing downstream can run, but
		// the payload was understood, so suppress provider retries.
		logger.Error("find-or-create conversation failed",
			zap.String("tenantID", tenant.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	processed, err := h.Conversations.HasProcessed(ctx, conv.ID, inbound.ProviderMessageID)
	if err != nil {
		// Fail open: reprocess rather than risk dropping a message.
		logger.Warn("idempotency lookup failed, reprocessing",
			zap.String("conversationID", conv.ID), zap.Error(err))
	}
	if processed {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	if err := h.Conversations.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        inbound.Body,
	}); err != nil {
		logger.Warn("failed to persist inbound message, continuing",
			zap.String("conversationID", conv.ID), zap.Error(err))
	}
	if err := h.Conversations.TouchInbound(ctx, conv.ID); err != nil {
		logger.Warn("failed to update conversation timestamps",
			zap.String("conversationID", conv.ID), zap.Error(err))
	}

	reply := h.runAgent(c, tenant, conv, inbound)

	if err := h.Sender.Send(ctx, tenant.PhoneNumberID, inbound.From, reply); err != nil {
		// The reply may be lost, never duplicated; delivery retries beyond the
		// adapter's budget are its own concern.
		logger.Error("outbound send failed",
			zap.String("conversationID", conv.ID), zap.Error(err))
	} else if err := h.Conversations.TouchOutbound(ctx, conv.ID); err != nil {
		logger.Warn("failed to update conversation timestamps",
			zap.String("conversationID", conv.ID), zap.Error(err))
	}

	if err := h.Conversations.MarkProcessed(ctx, conv.ID, inbound.ProviderMessageID); err != nil {
		// Not marked means a replay would reprocess; that bias is deliberate.
		logger.Error("failed to write idempotency marker",
			zap.String("conversationID", conv.ID),
			zap.String("providerMessageID", inbound.ProviderMessageID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runAgent assembles context, runs the orchestration loop and persists the
// outbound message with its usage metadata. Every failure path still yields a
// non-empty reply.
func (h *WebhookHandler) runAgent(c *gin.Context, tenant *models.Tenant, conv *models.Conversation, inbound InboundMessage) string {
	logger := utils.GetLogger()

	timeout := h.ModelTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	bundle, err := h.Assembler.BuildContext(ctx, tenant, conv.ID, inbound.Body)
	if err != nil {
		logger.Error("context assembly failed",
			zap.String("conversationID", conv.ID), zap.Error(err))
		return agent.FallbackReply
	}

	catalog := agent.NewCatalog(tenant, inbound.From, h.Appointments, h.Tenants)
	orchestrator := &agent.Orchestrator{Provider: h.Provider, MaxRounds: h.MaxToolRounds}
	result := orchestrator.Run(ctx, bundle, catalog)

	if err := h.Conversations.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        result.Reply,
		Usage:          &result.Usage,
		Model:          result.Model,
	}); err != nil {
		logger.Warn("failed to persist outbound message, continuing",
			zap.String("conversationID", conv.ID), zap.Error(err))
	}

	return result.Reply
}
