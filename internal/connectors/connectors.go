package connectors

import (
	"context"

	"cartpilot/internal"
)

// MailConnector pulls goal-request mail from a provider.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.InboundMessage, error)
}
