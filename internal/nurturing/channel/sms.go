package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"closing_backend/internal/nurturing/repository"
	"closing_backend/platform/config"
	"closing_backend/platform/logger"
	"closing_backend/platform/phone"
)

// SMSAdapter sends nurturing messages through an HTTP SMS gateway.
type SMSAdapter struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type gatewayRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewSMSAdapter creates the gateway client. Returns nil when no gateway is
// configured; the registry simply won't carry the channel.
func NewSMSAdapter(cfg config.SMSConfig, log *logger.Logger) *SMSAdapter {
	if !cfg.IsSMSEnabled() {
		return nil
	}

	return &SMSAdapter{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayAPIKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (a *SMSAdapter) Name() string { return repository.ChannelSMS }

func (a *SMSAdapter) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no phone number on record")
	}

	payload := gatewayRequest{
		Phone:   phone.NormalizeE164(msg.To),
		Message: msg.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/messages", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if a.log != nil {
		a.log.Debug("sms sent", "phone", payload.Phone)
	}
	return nil
}
