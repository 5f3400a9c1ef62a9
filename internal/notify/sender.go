package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"peer-match/internal/config"

	"golang.org/x/time/rate"
)

var ErrDelivery = errors.New("delivery failed")

// Sender delivers a text message to a messaging address. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, address int64, text string) error
}

type TelegramSender struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

func NewTelegramSender(cfg config.NotifyConfig, client *http.Client) (*TelegramSender, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("empty telegram bot token")
	}
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 25
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &TelegramSender{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		token:   token,
		timeout: timeout,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *TelegramSender) Send(ctx context.Context, address int64, text string) error {
	if address == 0 {
		return fmt.Errorf("%w: empty address", ErrDelivery)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrDelivery, err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: address, Text: text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, redactToken(err.Error(), s.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var out sendMessageResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: status=%d description=%q", ErrDelivery, resp.StatusCode, desc)
	}
	return nil
}

func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}

// DisabledSender fails every send so messages stay in the outbox until a real sender is configured.
type DisabledSender struct{}

func (DisabledSender) Send(context.Context, int64, string) error {
	return fmt.Errorf("%w: sender disabled", ErrDelivery)
}
