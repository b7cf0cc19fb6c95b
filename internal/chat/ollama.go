package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// scanBufferSize bounds a single NDJSON line from the backend.
const scanBufferSize = 1024 * 1024

// OllamaClient talks to an Ollama-compatible /api/chat endpoint.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOllamaClient creates a chat completion client.
func NewOllamaClient(log *slog.Logger, baseURL, model string, temperature float64, timeout time.Duration) *OllamaClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("service", "chat")),
	}
}

// Complete sends the prompt and reassembles the reply. The backend may answer
// with one JSON object or a stream of newline-delimited JSON chunks; content
// fragments are concatenated in line order and malformed lines are skipped.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Options:  Options{Temperature: c.temperature},
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generation backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	reply, err := reassemble(resp.Body)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Healthy probes the backend model listing.
func (c *OllamaClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generation backend status %d", resp.StatusCode)
	}
	return nil
}

// reassemble concatenates the content field of every well-formed chunk in
// line order. A single non-streamed JSON object parses as one line.
func reassemble(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	var out strings.Builder
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part chunk
		if err := json.Unmarshal(line, &part); err != nil {
			continue
		}
		out.WriteString(part.Message.Content)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read backend stream: %w", err)
	}

	reply := strings.TrimSpace(out.String())
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}
