package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDispatchFailed marks deliveries the gateway rejected. Exposed for
// telemetry; Send itself reports a plain bool to the pipeline.
var ErrDispatchFailed = errors.New("gateway dispatch failed")

// OutboundMessage is one reply to deliver through the messaging gateway.
type OutboundMessage struct {
	To       string
	Text     string
	Metadata map[string]any
}

// Client delivers replies through a WTS-style messaging gateway.
type Client struct {
	baseURL     string
	token       string
	countryCode string
	chunkLimit  int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(log *slog.Logger, baseURL, token, countryCode string, chunkLimit int, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if chunkLimit <= 0 {
		chunkLimit = 4096
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		countryCode: countryCode,
		chunkLimit:  chunkLimit,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("service", "gateway")),
	}
}

type sendPayload struct {
	Body     sendBody       `json:"body"`
	To       string         `json:"to"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sendBody struct {
	Text string `json:"text"`
}

// Send normalizes the recipient to dialing format and delivers the message,
// chunking long texts. Returns false on any non-2xx or transport failure;
// delivery is fire-and-forget, retries are not attempted here.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) bool {
	to := NormalizeDialing(msg.To, c.countryCode)
	if to == "" {
		c.logger.Error("dispatch dropped: empty recipient")
		return false
	}

	for _, part := range ChunkText(msg.Text, c.chunkLimit) {
		if !c.deliver(ctx, to, part, msg.Metadata) {
			return false
		}
	}
	return true
}

func (c *Client) deliver(ctx context.Context, to, text string, metadata map[string]any) bool {
	body, err := json.Marshal(sendPayload{
		Body:     sendBody{Text: text},
		To:       to,
		Metadata: metadata,
	})
	if err != nil {
		c.logger.Error("marshal gateway payload failed", slog.Any("error", err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/v1/message/send", bytes.NewReader(body))
	if err != nil {
		c.logger.Error("build gateway request failed", slog.Any("error", err))
		return false
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/*+json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway transport failure",
			slog.String("to", to),
			slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("gateway rejected message",
			slog.String("to", to),
			slog.Int("status", resp.StatusCode),
			slog.String("body", strings.TrimSpace(string(detail))))
		return false
	}

	c.logger.Info("message delivered", slog.String("to", to))
	return true
}

// TestConnection probes the gateway agent listing.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/core/v1/agent", nil)
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}

// NormalizeDialing converts a canonical digits identity to the gateway's
// dialing format, prefixing the country code when absent.
func NormalizeDialing(number, countryCode string) string {
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n := digits.String()
	if n == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(n, countryCode) {
		n = countryCode + n
	}
	return "+" + n
}
