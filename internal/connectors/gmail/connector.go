package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"cartpilot/internal"
	"cartpilot/internal/config"
)

const provider = "gmail"

type Connector struct {
	service *gmail.Service
	now     func() time.Time
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	return newConnector(ctx, option.WithTokenSource(tokens))
}

func newConnector(ctx context.Context, opts ...option.ClientOption) (*Connector, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc, now: time.Now}, nil
}

// FetchInbox lists up to max messages under label and downloads each one raw.
// Headers come from the raw message itself, so one call per message is enough.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.InboundMessage, error) {
	list := c.service.Users.Messages.List("me").LabelIds(label)
	if max > 0 {
		list = list.MaxResults(int64(max))
	}
	resp, err := list.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %s: %w", label, err)
	}

	out := make([]internal.InboundMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c.toInbound(ref.Id, raw))
	}
	return out, nil
}

func (c *Connector) toInbound(gmailID string, raw []byte) internal.InboundMessage {
	in := internal.InboundMessage{
		Provider:   provider,
		MessageID:  gmailID,
		ReceivedAt: c.now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return in
	}
	h := parsed.Header
	dec := new(mime.WordDecoder)
	in.Subject = decodeHeader(dec, h.Get("Subject"))
	in.From = decodeHeader(dec, h.Get("From"))
	if id := h.Get("Message-ID"); id != "" {
		in.MessageID = id
	}
	if t, err := h.Date(); err == nil {
		in.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return in
}

func decodeHeader(dec *mime.WordDecoder, value string) string {
	if out, err := dec.DecodeHeader(value); err == nil {
		return out
	}
	return value
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
