// internal/services/webhook_notifier.go
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const webhookSignatureHeader = "X-CareOps-Signature"

type webhookPayload struct {
	CommunicationID string                 `json:"communication_id"`
	SubjectKind     string                 `json:"subject_kind"`
	SubjectID       string                 `json:"subject_id"`
	Kind            string                 `json:"kind"`
	Recipient       string                 `json:"recipient"`
	Data            map[string]interface{} `json:"data,omitempty"`
	SentAt          time.Time              `json:"sent_at"`
}

// WebhookNotifier POSTs each message as JSON to a single endpoint, signing
// the body with HMAC-SHA256 when a secret is configured.
type WebhookNotifier struct {
	httpClient *resty.Client
	secret     string
}

func NewWebhookNotifier(url, secret string, retries int, timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &WebhookNotifier{
		httpClient: client,
		secret:     secret,
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		CommunicationID: msg.CommunicationID.String(),
		SubjectKind:     string(msg.SubjectKind),
		SubjectID:       msg.SubjectID.String(),
		Kind:            msg.Kind,
		Recipient:       msg.Recipient,
		Data:            msg.Data,
		SentAt:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req := n.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", msg.CommunicationID.String()).
		SetBody(body)
	if n.secret != "" {
		req.SetHeader(webhookSignatureHeader, signPayload(n.secret, body))
	}

	resp, err := req.Post("")
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}

	if resp.IsError() {
		logrus.WithFields(logrus.Fields{
			"communication_id": msg.CommunicationID,
			"status_code":      resp.StatusCode(),
		}).Warn("Webhook rejected notification")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	return nil
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
