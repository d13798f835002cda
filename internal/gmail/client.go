// Package gmail provides the mailbox collaborator backed by the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/model"
)

const (
	listPageSize = 100
	maxBodyBytes = 10_000

	// Gmail per-user quota is generous but bursty scans can trip it; keep
	// steady-state request rate below the documented per-second limit.
	requestsPerSecond = 10
	requestBurst      = 20
)

// Client implements the service.Mailbox interface against the Gmail API.
type Client struct {
	svc     *gmailapi.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Gmail client authenticated with the given access
// token.
func NewClient(ctx context.Context, accessToken string) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:  slog.Default().With("component", "gmail"),
	}, nil
}

// ListMessageIDs returns one page of message IDs matching the query.
func (c *Client) ListMessageIDs(ctx context.Context, query, pageToken string) ([]string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	call := c.svc.Users.Messages.List("me").Q(query).MaxResults(listPageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", wrapAPIError("failed to list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}

	return ids, resp.NextPageToken, nil
}

// GetMessageMetadata fetches just the headers needed by the billing gate.
func (c *Client) GetMessageMetadata(ctx context.Context, id string) (*model.MessageHeader, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := c.svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("failed to get message metadata", err)
	}

	header := &model.MessageHeader{ID: msg.Id}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				header.From = h.Value
			case "Subject":
				header.Subject = h.Value
			}
		}
	}
	if msg.InternalDate > 0 {
		header.Date = time.UnixMilli(msg.InternalDate).UTC()
	}

	return header, nil
}

// GetMessageFull fetches the complete message, including a decoded
// plain-text body.
func (c *Client) GetMessageFull(ctx context.Context, id string) (*model.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("failed to get message", err)
	}

	raw := &model.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		raw.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				raw.From = h.Value
			case "Subject":
				raw.Subject = h.Value
			}
		}
		raw.Body = extractBody(msg.Payload)
	}

	return raw, nil
}

// extractBody walks the MIME tree for a text body, preferring text/plain
// over text/html, and caps the result.
func extractBody(payload *gmailapi.MessagePart) string {
	body := findBody(payload)
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return body
}

func findBody(part *gmailapi.MessagePart) string {
	if part == nil {
		return ""
	}

	if part.Body != nil && part.Body.Data != "" && len(part.Parts) == 0 {
		return decodePart(part.Body.Data)
	}

	htmlBody := ""
	for _, child := range part.Parts {
		switch child.MimeType {
		case "text/plain":
			if child.Body != nil && child.Body.Data != "" {
				return decodePart(child.Body.Data)
			}
		case "text/html":
			if child.Body != nil && child.Body.Data != "" {
				htmlBody = decodePart(child.Body.Data)
			}
		default:
			if nested := findBody(child); nested != "" {
				return nested
			}
		}
	}

	return htmlBody
}

func decodePart(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// wrapAPIError classifies Gmail API failures for the retry layer.
func wrapAPIError(msg string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%s: %w", msg, common.ErrRateLimit)
		case apiErr.Code >= 500:
			return &common.RetryableError{Err: fmt.Errorf("%s: %w", msg, err), Retryable: true}
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &common.RetryableError{Err: fmt.Errorf("%s: %w", msg, err), Retryable: false}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
