// Package messaging holds the pluggable channel adapters: the outbound sender
// that delivers replies to a customer address and the signature verifier that
// authenticates inbound webhooks.
package messaging

import "context"

// Sender delivers a plain-text reply to a channel address.
type Sender interface {
	Send(ctx context.Context, phoneNumberID, to, body string) error
}

// SignatureVerifier authenticates a raw webhook payload against a
// provider-supplied signature header.
type SignatureVerifier interface {
	Verify(payload []byte, signatureHeader string) error
}
