package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Live delegates to the real payment processor over HTTPS. Every call has
// a bounded timeout; a timeout is a gateway failure, never a success.
type Live struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Gateway = (*Live)(nil)

func NewLive(baseURL, apiKey string) *Live {
	return &Live{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type processorResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *Live) AuthorizeHold(ctx context.Context, amount decimal.Decimal, currency, payerRef string, meta map[string]string) (Hold, error) {
	resp, err := g.post(ctx, "/v1/holds", map[string]any{
		"amount":   amount.String(),
		"currency": currency,
		"payer":    payerRef,
		"capture":  false,
		"metadata": meta,
	})
	if err != nil {
		return Hold{}, &Error{Op: "authorize", Err: err}
	}
	return Hold{Ref: resp.ID, RawStatus: resp.Status}, nil
}

func (g *Live) Capture(ctx context.Context, holdRef string) (string, error) {
	resp, err := g.post(ctx, "/v1/holds/"+holdRef+"/capture", map[string]any{})
	if err != nil {
		return "", &Error{Op: "capture", Err: err}
	}
	return resp.ID, nil
}

func (g *Live) Transfer(ctx context.Context, amount decimal.Decimal, currency, payeeRef string, meta map[string]string) (string, error) {
	if payeeRef == "" {
		return "", ErrNoPayableAccount
	}
	resp, err := g.post(ctx, "/v1/transfers", map[string]any{
		"amount":      amount.String(),
		"currency":    currency,
		"destination": payeeRef,
		"metadata":    meta,
	})
	if err != nil {
		return "", &Error{Op: "transfer", Err: err}
	}
	return resp.ID, nil
}

func (g *Live) CancelHold(ctx context.Context, holdRef, reason string) (string, error) {
	resp, err := g.post(ctx, "/v1/holds/"+holdRef+"/cancel", map[string]any{
		"reason": reason,
	})
	if err != nil {
		return "", &Error{Op: "cancel", Err: err}
	}
	return resp.ID, nil
}

func (g *Live) post(ctx context.Context, path string, body map[string]any) (*processorResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
	var out processorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid processor response: %w", err)
	}
	return &out, nil
}
