package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segyhp/microloan-engine/internal/domain"
)

const whatsappPrefix = "whatsapp:"

type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	Timeout    time.Duration
}

func (c Config) configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

// APIError is a non-2xx answer from the messages endpoint.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("twilio returned status %d", e.Status)
	}
	return fmt.Sprintf("twilio %d (code %d): %s", e.Status, e.Code, e.Message)
}

// TwilioSender posts messages to the Twilio REST API on one channel.
type TwilioSender struct {
	cfg     Config
	channel domain.Channel
	from    string
	enabled bool
	client  *http.Client
}

// NewSMSSender is enabled whenever credentials and a sender number exist.
func NewSMSSender(cfg Config, from string) *TwilioSender {
	return newSender(cfg, domain.ChannelSMS, from, true)
}

// NewWhatsAppSender is additionally gated by the feature switch.
func NewWhatsAppSender(cfg Config, from string, enabled bool) *TwilioSender {
	if from != "" && !strings.HasPrefix(from, whatsappPrefix) {
		from = whatsappPrefix + from
	}
	return newSender(cfg, domain.ChannelWhatsApp, from, enabled)
}

func newSender(cfg Config, channel domain.Channel, from string, enabled bool) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &TwilioSender{
		cfg:     cfg,
		channel: channel,
		from:    from,
		enabled: enabled && cfg.configured() && from != "",
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *TwilioSender) Channel() domain.Channel { return s.channel }

func (s *TwilioSender) Enabled() bool { return s.enabled }

func (s *TwilioSender) Send(ctx context.Context, phone, message string) error {
	to := phone
	if s.channel == domain.ChannelWhatsApp {
		to = whatsappPrefix + phone
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", strings.ToLower(string(s.channel)), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return apiErr
}
