package messaging

import (
	"context"
	"fmt"
	"time"

	"bookline/models"

	"github.com/go-resty/resty/v2"
)

// WhatsAppClient sends text messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	httpClient *resty.Client
}

// NewWhatsAppClient creates a new Cloud API client.
func NewWhatsAppClient(baseURL, accessToken string) (*WhatsAppClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("WhatsApp baseURL cannot be empty")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("WhatsApp accessToken cannot be empty")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &WhatsAppClient{httpClient: client}, nil
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send posts a plain-text message to the given address. Delivery retries
// beyond the bounded resty retry budget are the provider's concern.
func (c *WhatsAppClient) Send(ctx context.Context, phoneNumberID, to, body string) error {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
	}
	payload.Text.Body = body

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(fmt.Sprintf("/%s/messages", phoneNumberID))
	if err != nil {
		return models.NewProviderError("whatsapp send failed", err)
	}
	if resp.IsError() {
		return models.NewProviderError(
			fmt.Sprintf("whatsapp send returned status %d: %s", resp.StatusCode(), resp.String()), nil)
	}
	return nil
}
