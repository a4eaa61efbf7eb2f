package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts rendered text to a chat-style webhook.
type WebhookNotifier struct {
	url       string
	client    *http.Client
	templates *Templates
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier. A nil templates value uses DefaultTemplates.
func NewWebhookNotifier(url string, templates *Templates) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	if templates == nil {
		var err error
		templates, err = NewTemplates(nil)
		if err != nil {
			return nil, err
		}
	}
	return &WebhookNotifier{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		templates: templates,
	}, nil
}

func (n *WebhookNotifier) NotifyPaymentApproved(ctx context.Context, msg PaymentApproved) error {
	return n.send(ctx, KindPaymentApproved, msg)
}

func (n *WebhookNotifier) NotifySessionExpired(ctx context.Context, msg SessionExpired) error {
	return n.send(ctx, KindSessionExpired, msg)
}

func (n *WebhookNotifier) NotifyBidSelected(ctx context.Context, msg BidSelected) error {
	return n.send(ctx, KindBidSelected, msg)
}

func (n *WebhookNotifier) send(ctx context.Context, kind Kind, data any) error {
	if n == nil {
		return errors.New("webhook notifier: nil")
	}
	content, err := n.templates.Render(kind, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: content}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}
