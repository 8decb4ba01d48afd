package webhook

import (
	"encoding/json"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Event is the delivery body sent by the verification provider when an
// identity check changes state. VendorData echoes whatever reference the
// tenant attached when creating the session; Decision carries the full
// verdict document on decision deliveries. Both are kept opaque.
type Event struct {
	SessionID   string          `json:"session_id"`
	Status      string          `json:"status"`
	WebhookType string          `json:"webhook_type"`
	Timestamp   int64           `json:"timestamp"`
	VendorData  string          `json:"vendor_data,omitempty"`
	Decision    json.RawMessage `json:"decision,omitempty"`
}

// Webhook types the provider emits.
const (
	TypeStatusUpdated = "status.updated"
	TypeDecision      = "decision"
)

func ParseEvent(body []byte) (*Event, error) {
	event := &Event{}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode webhook event")
	}

	if event.SessionID == "" {
		return nil, goerrors.New("webhook event missing session id", goerrors.CategoryBadInput)
	}

	return event, nil
}

// SimpleSigningString is the legacy signature input: timestamp, session id,
// status, and webhook type joined by colons in that order. A field the
// delivery did not carry contributes the empty string.
func (e *Event) SimpleSigningString() string {
	timestamp := ""
	if e.Timestamp != 0 {
		timestamp = strconv.FormatInt(e.Timestamp, 10)
	}
	return strings.Join([]string{timestamp, e.SessionID, e.Status, e.WebhookType}, ":")
}
