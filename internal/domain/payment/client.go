// internal/domain/payment/client.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/pkg/apperror"
)

// Client talks to the payment provider's REST API.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient creates a new payment provider client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		secretKey: cfg.Payment.SecretKey,
		baseURL:   cfg.Payment.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// CreateIntent creates a payment intent with the provider. The idempotency
// key is sent as a header so the provider deduplicates identical calls.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams, idempotencyKey string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountMinorUnits, 10))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	body, err := c.call(ctx, http.MethodPost, "/payment_intents", form, headers)
	if err != nil {
		return nil, err
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, apperror.Provider("failed to parse payment intent response", err)
	}
	return &intent, nil
}

// RetrieveIntent fetches the current state of an intent by id.
func (c *Client) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	body, err := c.call(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, apperror.Provider("failed to parse payment intent response", err)
	}
	return &intent, nil
}

// call makes one HTTP request against the provider API.
func (c *Client) call(ctx context.Context, method, endpoint string, form url.Values, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, apperror.Provider("failed to build provider request", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Provider("payment provider unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Provider("failed to read provider response", err)
	}

	if resp.StatusCode >= 400 {
		c.log.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"endpoint": endpoint,
		}).Error("Payment provider API call failed")
		return nil, apperror.Provider(
			fmt.Sprintf("provider API call failed with status %d", resp.StatusCode), nil)
	}

	return respBody, nil
}
