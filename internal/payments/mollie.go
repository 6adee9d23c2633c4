// Package payments implements the postit.PaymentProvider contract against a
// Mollie-style payments API.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

const (
	defaultBaseURL = "https://api.mollie.com/v2"
	defaultTimeout = 15 * time.Second
)

// Config carries the provider client settings.
type Config struct {
	APIKey        string
	BaseURL       string
	PublicBaseURL string // prefix for redirect and webhook URLs
	Timeout       time.Duration
}

// Client calls the payments API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient wires a Client, applying defaults for unset fields.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("payments: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type paymentMetadata struct {
	UserID string `json:"userId"`
	Coins  string `json:"coins"`
}

type paymentResource struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Metadata paymentMetadata `json:"metadata"`
	Links    struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

// CreatePayment opens a checkout with the provider.
func (client *Client) CreatePayment(ctx context.Context, request postit.CreatePaymentRequest) (postit.ProviderPayment, error) {
	body := map[string]any{
		"amount": map[string]string{
			"currency": "EUR",
			"value":    formatEuroCents(request.AmountCents),
		},
		"description": request.Description,
		"metadata": paymentMetadata{
			UserID: request.UserID,
			Coins:  strconv.FormatInt(request.Coins, 10),
		},
	}
	if client.config.PublicBaseURL != "" {
		redirect := client.config.PublicBaseURL + "/"
		if request.ReturnTo != "" {
			redirect += "?returnTo=" + url.QueryEscape(request.ReturnTo)
		}
		body["redirectUrl"] = redirect
		body["webhookUrl"] = client.config.PublicBaseURL + "/api/phase4/webhook"
	}

	resource, err := client.call(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return postit.ProviderPayment{}, err
	}
	return resourceToPayment(resource), nil
}

// GetPayment fetches the current status of one payment.
func (client *Client) GetPayment(ctx context.Context, paymentID string) (postit.ProviderPayment, error) {
	resource, err := client.call(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return postit.ProviderPayment{}, err
	}
	return resourceToPayment(resource), nil
}

func (client *Client) call(ctx context.Context, method string, path string, body any) (*paymentResource, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("payments encode: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("payments build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.config.APIKey)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("payments call: %w", err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("payments read: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("payments status %d: %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}
	var resource paymentResource
	if err := json.Unmarshal(raw, &resource); err != nil {
		return nil, fmt.Errorf("payments decode: %w", err)
	}
	if resource.ID == "" {
		return nil, fmt.Errorf("payments response missing id")
	}
	return &resource, nil
}

func resourceToPayment(resource *paymentResource) postit.ProviderPayment {
	coins, _ := strconv.ParseInt(resource.Metadata.Coins, 10, 64)
	return postit.ProviderPayment{
		ID:          resource.ID,
		Status:      resource.Status,
		CheckoutURL: resource.Links.Checkout.Href,
		UserID:      resource.Metadata.UserID,
		Coins:       coins,
	}
}

func formatEuroCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
