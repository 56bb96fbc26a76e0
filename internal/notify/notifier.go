package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// KeywordMatch is the webhook body sent when an active keyword matches a
// freshly collected comment.
type KeywordMatch struct {
	GroupID     int64     `json:"group_id"`
	GroupName   string    `json:"group_name"`
	Keyword     string    `json:"keyword"`
	CommentText string    `json:"comment_text"`
	CommentLink string    `json:"comment_link"`
	MatchedAt   time.Time `json:"matched_at"`
}

// Notifier POSTs keyword-match payloads directly to the webhook URL stored
// in a group's monitoring settings.
type Notifier struct {
	client  *http.Client
	secret  []byte
	retries int
}

func NewNotifier(secret string) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		secret:  []byte(secret),
		retries: 3,
	}
}

// Send delivers the payload with a bounded retry loop. The body is signed
// with HMAC-SHA256 in X-Watch-Signature so receivers can verify origin.
func (n *Notifier) Send(ctx context.Context, url string, match KeywordMatch) error {
	body, err := json.Marshal(match)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		if err := n.deliver(ctx, url, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("webhook delivery to %s failed: %w", url, lastErr)
}

func (n *Notifier) deliver(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vkwatch/1.0")
	if len(n.secret) > 0 {
		mac := hmac.New(sha256.New, n.secret)
		mac.Write(body)
		req.Header.Set("X-Watch-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %s", resp.Status)
	}
	return nil
}
