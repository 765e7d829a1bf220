// internal/provider/provider.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// SendRequest is one assembled message on its way out.
type SendRequest struct {
	Provider string
	SenderID string
	To       string
	Payload  any
}

// SendResult is the normalized provider outcome. A failed attempt is data,
// not an error; transport problems land in ErrorMessage too.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ErrorMessage      string
	RawResponse       string
}

// Sender posts one message to the configured provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) SendResult
}

// Config carries per-provider credentials and endpoints.
type Config struct {
	MetaBaseURL     string
	MetaAccessToken string
	MetaPhoneID     string

	GupshupBaseURL string
	GupshupAPIKey  string

	Timeout time.Duration
}

// HTTPSender talks to the real provider APIs.
type HTTPSender struct {
	cfg    Config
	client *http.Client
}

func NewHTTPSender(cfg Config) *HTTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, req SendRequest) SendResult {
	switch req.Provider {
	case model.ProviderMeta:
		return s.post(ctx,
			fmt.Sprintf("%s/%s/messages", s.cfg.MetaBaseURL, s.cfg.MetaPhoneID),
			map[string]string{"Authorization": "Bearer " + s.cfg.MetaAccessToken},
			req.Payload)
	case model.ProviderGupshup:
		return s.post(ctx,
			s.cfg.GupshupBaseURL+"/wa/api/v1/template/msg",
			map[string]string{"apikey": s.cfg.GupshupAPIKey},
			req.Payload)
	}
	return SendResult{ErrorMessage: fmt.Sprintf("unsupported provider %q", req.Provider)}
}

func (s *HTTPSender) post(ctx context.Context, url string, headers map[string]string, payload any) SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{ErrorMessage: fmt.Sprintf("marshal payload: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{ErrorMessage: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return SendResult{ErrorMessage: fmt.Sprintf("provider request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	result := SendResult{RawResponse: string(raw)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.ErrorMessage = fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)
		return result
	}

	result.Success = true
	result.ProviderMessageID = extractMessageID(raw)
	return result
}

// extractMessageID digs the provider message id out of either response shape.
// Meta returns {"messages":[{"id":...}]}, gupshup {"messageId":...}.
func extractMessageID(raw []byte) string {
	var meta struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &meta); err == nil && len(meta.Messages) > 0 {
		return meta.Messages[0].ID
	}
	var gupshup struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(raw, &gupshup); err == nil {
		return gupshup.MessageID
	}
	return ""
}

// MockSender simulates provider sends with a fixed success rate. Used by the
// seeder and local runs without provider credentials.
type MockSender struct {
	SuccessRate float64
}

func (m *MockSender) Send(ctx context.Context, req SendRequest) SendResult {
	rate := m.SuccessRate
	if rate == 0 {
		rate = 0.9
	}
	if rand.Float64() < rate {
		return SendResult{
			Success:           true,
			ProviderMessageID: fmt.Sprintf("mock-%d", rand.Int63()),
			RawResponse:       `{"mock":true}`,
		}
	}
	return SendResult{ErrorMessage: "mock sending failed", RawResponse: `{"mock":true}`}
}

var (
	_ Sender = (*HTTPSender)(nil)
	_ Sender = (*MockSender)(nil)
)
