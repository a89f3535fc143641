package calendar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyWebhookSignature checks the provider's HMAC-SHA256 hex signature
// over the raw request body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookPayload is the subset of the provider's webhook body this service
// cares about for booking lifecycle logging.
type WebhookPayload struct {
	TriggerEvent string `json:"triggerEvent"`
	Payload      struct {
		Booking struct {
			ID    int64  `json:"id"`
			UID   string `json:"uid"`
			Title string `json:"title"`
			Start string `json:"start"`
		} `json:"booking"`
		Attendees []struct {
			Email string `json:"email"`
		} `json:"attendees"`
	} `json:"payload"`
}
