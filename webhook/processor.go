package webhook

import (
	"context"
	"strings"
	"time"

	auth "github.com/nidohq/nido-auth"
)

// Processor applies authenticated verification events to the user
// directory. It assumes the caller already ran Verifier.Verify on the body.
type Processor struct {
	users        auth.Users
	logger       auth.Logger
	activitySink auth.ActivitySink
}

func NewProcessor(users auth.Users) *Processor {
	return &Processor{
		users:        users,
		logger:       auth.DefaultLogger(),
		activitySink: auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return nil }),
	}
}

func (p *Processor) WithLogger(logger auth.Logger) *Processor {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Processor) WithActivitySink(sink auth.ActivitySink) *Processor {
	if sink != nil {
		p.activitySink = sink
	}
	return p
}

// Process updates the session owner's verification status. Unknown session
// ids are logged and dropped rather than failed: the provider retries
// deliveries, and a session we never minted will not appear later.
func (p *Processor) Process(ctx context.Context, event *Event) error {
	status, ok := mapProviderStatus(event.Status)
	if !ok {
		p.logger.Warn("webhook carries unknown status, ignoring", "status", event.Status, "session_id", event.SessionID)
		return nil
	}

	user, err := p.users.UpdateKYCStatus(ctx, event.SessionID, status)
	if err != nil {
		if auth.IsRecordNotFound(err) {
			p.logger.Warn("webhook session has no owner, dropping", "session_id", event.SessionID)
			return nil
		}
		return err
	}

	if err := p.activitySink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventKYCStatusChanged,
		Actor:      auth.ActorRef{Type: "system"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"session_id": event.SessionID,
			"status":     status,
			"type":       event.WebhookType,
		},
	}); err != nil {
		p.logger.Warn("activity sink record error: %v", err)
	}

	return nil
}

// mapProviderStatus translates the provider's vocabulary into ours.
func mapProviderStatus(providerStatus string) (auth.KYCStatus, bool) {
	switch strings.ToLower(providerStatus) {
	case "created", "started", "submitted", "in_review":
		return auth.KYCStatusInReview, true
	case "approved":
		return auth.KYCStatusApproved, true
	case "declined", "resubmission_requested":
		return auth.KYCStatusDeclined, true
	case "abandoned", "expired":
		return auth.KYCStatusAbandoned, true
	default:
		return "", false
	}
}
