// Package chapa talks to a Chapa-compatible payment gateway over its initialize/verify HTTP contract.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout     = 5 * time.Second
	maxResponseBytes   = 1 << 20
	statusSuccess      = "success"
	initializePath     = "transaction/initialize"
	verifyPathTemplate = "transaction/verify/%s"
)

// ErrInvalidConfig reports a client that cannot be built.
var ErrInvalidConfig = errors.New("invalid chapa config")

// Config holds the gateway endpoint and credentials.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Validate fills defaults and rejects unusable settings.
func (cfg *Config) Validate() error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret key is required", ErrInvalidConfig)
	}
	return nil
}

// Client implements travel.Gateway.
type Client struct {
	baseURL    string
	secretKey  string
	timeout    time.Duration
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// NewClient builds a gateway client.
func NewClient(cfg Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/",
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type initializePayload struct {
	Amount      string          `json:"amount"`
	Currency    string          `json:"currency"`
	TxRef       string          `json:"tx_ref"`
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	CallbackURL string          `json:"callback_url"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Initialize opens a hosted checkout for the transaction.
func (client *Client) Initialize(ctx context.Context, request travel.InitializeRequest) (travel.InitializeResult, error) {
	payload, err := json.Marshal(initializePayload{
		Amount:      request.Amount.String(),
		Currency:    request.Currency.String(),
		TxRef:       request.TxRef.String(),
		Email:       request.Email,
		FirstName:   request.FirstName,
		LastName:    request.LastName,
		CallbackURL: request.CallbackURL,
		Metadata:    json.RawMessage(request.Metadata.String()),
	})
	if err != nil {
		return travel.InitializeResult{}, fmt.Errorf("%w: encode initialize payload: %w", travel.ErrGatewayRejected, err)
	}
	statusCode, body, err := client.do(ctx, http.MethodPost, initializePath, payload)
	if err != nil {
		return travel.InitializeResult{}, err
	}
	if statusCode != http.StatusOK || gjson.Get(body, "status").String() != statusSuccess {
		return travel.InitializeResult{}, fmt.Errorf("%w: status %d: %s", travel.ErrGatewayRejected, statusCode, responseMessage(body))
	}
	checkoutURL := gjson.Get(body, "data.checkout_url").String()
	if checkoutURL == "" {
		return travel.InitializeResult{}, fmt.Errorf("%w: response carries no checkout url", travel.ErrGatewayRejected)
	}
	return travel.InitializeResult{
		GatewayTxID: gatewayTransactionID(body),
		CheckoutURL: checkoutURL,
	}, nil
}

// Verify fetches the authoritative outcome of a transaction.
// A readable non-success answer is reported as Succeeded=false, not as an error.
func (client *Client) Verify(ctx context.Context, txRef travel.TxRef) (travel.VerifyResult, error) {
	statusCode, body, err := client.do(ctx, http.MethodGet, fmt.Sprintf(verifyPathTemplate, url.PathEscape(txRef.String())), nil)
	if err != nil {
		return travel.VerifyResult{}, err
	}
	if transientVerifyStatus(statusCode) {
		return travel.VerifyResult{}, fmt.Errorf("%w: verify status %d: %s", travel.ErrGatewayUnavailable, statusCode, responseMessage(body))
	}
	succeeded := statusCode == http.StatusOK && gjson.Get(body, "status").String() == statusSuccess
	return travel.VerifyResult{
		Succeeded:   succeeded,
		GatewayTxID: gatewayTransactionID(body),
		Message:     responseMessage(body),
	}, nil
}

// transientVerifyStatus marks answers that say nothing about the transaction itself.
// A payment must stay pending on these rather than be marked failed.
func transientVerifyStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

// do performs an authenticated call and classifies transport-level failures as unavailable.
func (client *Client) do(ctx context.Context, method string, path string, payload []byte) (int, string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	var requestBody io.Reader
	if payload != nil {
		requestBody = bytes.NewReader(payload)
	}
	httpRequest, err := http.NewRequestWithContext(requestCtx, method, client.baseURL+path, requestBody)
	if err != nil {
		return 0, "", fmt.Errorf("%w: build request: %w", travel.ErrGatewayUnavailable, err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+client.secretKey)
	httpRequest.Header.Set("Accept", "application/json")
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s %s: %w", travel.ErrGatewayUnavailable, method, path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return response.StatusCode, "", fmt.Errorf("%w: read response: %w", travel.ErrGatewayUnavailable, err)
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return response.StatusCode, "", fmt.Errorf("%w: status %d", travel.ErrGatewayUnavailable, response.StatusCode)
	}
	body := string(raw)
	if !gjson.Valid(body) {
		return response.StatusCode, "", fmt.Errorf("%w: status %d with unreadable body", travel.ErrGatewayUnavailable, response.StatusCode)
	}
	return response.StatusCode, body, nil
}

func gatewayTransactionID(body string) string {
	for _, path := range []string{"data.id", "data.reference", "data.tx_ref"} {
		if value := gjson.Get(body, path).String(); value != "" {
			return value
		}
	}
	return ""
}

// responseMessage flattens the gateway message, which is either a string or a field->errors object.
func responseMessage(body string) string {
	message := gjson.Get(body, "message")
	if !message.IsObject() {
		return message.String()
	}
	parts := make([]string, 0)
	message.ForEach(func(key gjson.Result, value gjson.Result) bool {
		parts = append(parts, fmt.Sprintf("%s: %s", key.String(), value.String()))
		return true
	})
	return strings.Join(parts, "; ")
}
