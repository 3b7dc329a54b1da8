package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"bookline/models"
	"bookline/services/agent"
	"bookline/services/intelligence"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubTenants resolves exactly one tenant by its WhatsApp number.
type stubTenants struct {
	tenant *models.Tenant
}

func (s *stubTenants) FindByID(_ context.Context, id string) (*models.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, models.NewNotFoundError("tenant not found")
}

func (s *stubTenants) FindByWhatsAppNumber(_ context.Context, number string) (*models.Tenant, error) {
	if s.tenant != nil && s.tenant.WhatsAppNumber == number {
		return s.tenant, nil
	}
	return nil, models.NewNotFoundError("tenant not found")
}

func (s *stubTenants) ServicesByTenant(context.Context, string) ([]models.Service, error) {
	return nil, nil
}
func (s *stubTenants) GetService(context.Context, string, string) (*models.Service, error) {
	return nil, models.NewNotFoundError("service not found")
}
func (s *stubTenants) ProfessionalsByTenant(context.Context, string) ([]models.Professional, error) {
	return nil, nil
}
func (s *stubTenants) GetProfessional(context.Context, string, string) (*models.Professional, error) {
	return nil, models.NewNotFoundError("professional not found")
}
func (s *stubTenants) FindCustomerByAddress(context.Context, string, string) (*models.Customer, error) {
	return nil, models.NewNotFoundError("customer not found")
}
func (s *stubTenants) UpsertCustomer(_ context.Context, c *models.Customer) (*models.Customer, error) {
	cp := *c
	cp.ID = "cust-1"
	return &cp, nil
}
func (s *stubTenants) AppendCustomerNote(context.Context, string, string, string) error { return nil }
func (s *stubTenants) KnowledgeByTenant(context.Context, string) ([]models.KnowledgeSnippet, error) {
	return nil, nil
}

// memConversations keeps threads, messages and idempotency markers in memory.
type memConversations struct {
	convs         map[string]*models.Conversation // keyed tenantID+address
	messages      []models.Message
	processed     map[string]bool
	createErr     error
	hasErr        error
	inboundTouch  int
	outboundTouch int
}

func newMemConversations() *memConversations {
	return &memConversations{
		convs:     make(map[string]*models.Conversation),
		processed: make(map[string]bool),
	}
}

func (m *memConversations) FindOrCreate(_ context.Context, tenantID, address string) (*models.Conversation, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	key := tenantID + "/" + address
	if conv, ok := m.convs[key]; ok {
		return conv, nil
	}
	conv := &models.Conversation{
		ID:              fmt.Sprintf("conv-%d", len(m.convs)+1),
		TenantID:        tenantID,
		CustomerAddress: address,
	}
	m.convs[key] = conv
	return conv, nil
}

func (m *memConversations) AppendMessage(_ context.Context, msg *models.Message) error {
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memConversations) RecentMessages(_ context.Context, conversationID string, _ int) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memConversations) HasProcessed(_ context.Context, conversationID, providerMessageID string) (bool, error) {
	if m.hasErr != nil {
		return false, m.hasErr
	}
	return m.processed[conversationID+"/"+providerMessageID], nil
}

func (m *memConversations) MarkProcessed(_ context.Context, conversationID, providerMessageID string) error {
	m.processed[conversationID+"/"+providerMessageID] = true
	return nil
}

func (m *memConversations) TouchInbound(context.Context, string) error {
	m.inboundTouch++
	return nil
}

func (m *memConversations) TouchOutbound(context.Context, string) error {
	m.outboundTouch++
	return nil
}

// stubAppointments satisfies the repository interface; text-only runs never
// reach it.
type stubAppointments struct{}

func (stubAppointments) Create(context.Context, *models.Appointment) error { return nil }
func (stubAppointments) Cancel(context.Context, string, string, string) error {
	return nil
}
func (stubAppointments) Reschedule(context.Context, string, string, time.Time) (*models.Appointment, error) {
	return nil, models.NewNotFoundError("appointment not found")
}
func (stubAppointments) GetByID(context.Context, string, string) (*models.Appointment, error) {
	return nil, models.NewNotFoundError("appointment not found")
}
func (stubAppointments) FindOverlapping(context.Context, string, string, time.Time, time.Time) ([]models.Appointment, error) {
	return nil, nil
}
func (stubAppointments) FindUpcomingByCustomer(context.Context, string, string, time.Time) ([]models.Appointment, error) {
	return nil, nil
}

type textProvider struct {
	reply    string
	err      error
	calls    int
	requests []intelligence.Request
}

func (p *textProvider) Complete(_ context.Context, req intelligence.Request) (*intelligence.Turn, error) {
	p.calls++
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &intelligence.Turn{Text: p.reply, Usage: models.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}}, nil
}

func (p *textProvider) ModelName() string { return "text-stub" }

type sentMessage struct {
	phoneNumberID string
	to            string
	body          string
}

type recordingSender struct {
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, phoneNumberID, to, body string) error {
	s.sent = append(s.sent, sentMessage{phoneNumberID, to, body})
	return s.err
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify([]byte, string) error { return v.err }

type webhookFixture struct {
	handler  *WebhookHandler
	tenants  *stubTenants
	convos   *memConversations
	provider *textProvider
	sender   *recordingSender
	router   *gin.Engine
}

func newWebhookFixture() *webhookFixture {
	tenants := &stubTenants{tenant: &models.Tenant{
		ID:             "tenant-1",
		Name:           "Bloom Studio",
		WhatsAppNumber: "15551230000",
		PhoneNumberID:  "pn-77",
	}}
	convos := newMemConversations()
	provider := &textProvider{reply: "Sure, I can help with that!"}
	sender := &recordingSender{}

	h := &WebhookHandler{
		Tenants:       tenants,
		Conversations: convos,
		Appointments:  stubAppointments{},
		Provider:      provider,
		Sender:        sender,
		Verifier:      stubVerifier{},
		Assembler:     &agent.Assembler{Conversations: convos, Directory: tenants},
		VerifyToken:   "verify-me",
	}

	router := gin.New()
	router.GET("/webhook/whatsapp", h.VerifySubscription)
	router.POST("/webhook/whatsapp", h.HandleInbound)
	return &webhookFixture{handler: h, tenants: tenants, convos: convos, provider: provider, sender: sender, router: router}
}

func (f *webhookFixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const inboundBody = `{"from":"15559990000","to":"15551230000","body":"Hi, can I book a haircut?","providerMessageId":"wamid.abc123"}`

func TestVerifySubscription(t *testing.T) {
	f := newWebhookFixture()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=c4ll3ng3", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "c4ll3ng3", w.Body.String())

	req = httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=c4ll3ng3", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleInboundHappyPath(t *testing.T) {
	f := newWebhookFixture()

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)

	require.Len(t, f.sender.sent, 1)
	require.Equal(t, "pn-77", f.sender.sent[0].phoneNumberID)
	require.Equal(t, "15559990000", f.sender.sent[0].to)
	require.Equal(t, "Sure, I can help with that!", f.sender.sent[0].body)

	// One user message, one assistant message with usage and model recorded.
	require.Len(t, f.convos.messages, 2)
	require.Equal(t, models.RoleUser, f.convos.messages[0].Role)
	require.Equal(t, "Hi, can I book a haircut?", f.convos.messages[0].Content)
	require.Equal(t, models.RoleAssistant, f.convos.messages[1].Role)
	require.NotNil(t, f.convos.messages[1].Usage)
	require.Equal(t, 5, f.convos.messages[1].Usage.TotalTokens)
	require.Equal(t, "text-stub", f.convos.messages[1].Model)

	require.Equal(t, 1, f.convos.inboundTouch)
	require.Equal(t, 1, f.convos.outboundTouch)
	require.True(t, f.convos.processed["conv-1/wamid.abc123"])
}

func TestHandleInboundSendsLatestMessageToModelOnce(t *testing.T) {
	f := newWebhookFixture()

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)

	// The inbound body is persisted before context assembly; it must still
	// appear in the model request exactly once.
	require.Len(t, f.provider.requests, 1)
	seen := 0
	for _, msg := range f.provider.requests[0].Messages {
		if msg.Role == intelligence.RoleUser && msg.Content == "Hi, can I book a haircut?" {
			seen++
		}
	}
	require.Equal(t, 1, seen)
}

func TestHandleInboundReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture()

	first := f.post(inboundBody)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.post(inboundBody)
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), `"duplicate"`)

	// No second send, no extra stored messages, one model run total.
	require.Len(t, f.sender.sent, 1)
	require.Len(t, f.convos.messages, 2)
	require.Equal(t, 1, f.provider.calls)
}

func TestHandleInboundBadSignature(t *testing.T) {
	f := newWebhookFixture()
	f.handler.Verifier = stubVerifier{err: errors.New("signature mismatch")}

	w := f.post(inboundBody)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, f.sender.sent)
	require.Empty(t, f.convos.messages)
}

func TestHandleInboundMalformedPayload(t *testing.T) {
	f := newWebhookFixture()
	w := f.post(`{"from": 12,`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, f.sender.sent)
}

func TestHandleInboundMissingFields(t *testing.T) {
	f := newWebhookFixture()
	w := f.post(`{"from":"15559990000","to":"15551230000","body":"hello"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, f.sender.sent)
}

func TestHandleInboundUnknownRecipient(t *testing.T) {
	f := newWebhookFixture()
	w := f.post(`{"from":"15559990000","to":"19990000000","body":"hello","providerMessageId":"wamid.x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Empty(t, f.sender.sent)
}

func TestHandleInboundConversationFailureSuppressesRetry(t *testing.T) {
	f := newWebhookFixture()
	f.convos.createErr = errors.New("primary down")

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"error"`)
	require.Empty(t, f.sender.sent)
}

func TestHandleInboundProviderFailureSendsFallback(t *testing.T) {
	f := newWebhookFixture()
	f.provider.err = errors.New("upstream 500")

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.sender.sent, 1)
	require.Equal(t, agent.FallbackReply, f.sender.sent[0].body)
	// Processed marker still written: the delivery was handled, a replay must
	// not trigger a second apology.
	require.True(t, f.convos.processed["conv-1/wamid.abc123"])
}

func TestHandleInboundIdempotencyLookupFailsOpen(t *testing.T) {
	f := newWebhookFixture()
	f.convos.hasErr = errors.New("cache down")

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)
	require.Len(t, f.sender.sent, 1)
}

func TestHandleInboundSendFailureStillAcks(t *testing.T) {
	f := newWebhookFixture()
	f.sender.err = errors.New("cloud api 503")

	w := f.post(inboundBody)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)
	require.Equal(t, 0, f.convos.outboundTouch)
}
