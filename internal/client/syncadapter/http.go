package syncadapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
)

const maxErrorBody = 64 << 10

// TokenSource returns the bearer token of the current session, or "" when
// there is none.
type TokenSource func() string

// HTTPAdapter talks JSON to the remote plan store.
type HTTPAdapter struct {
	client  *http.Client
	baseURL string
	token   TokenSource
}

// NewHTTPAdapter builds an adapter against baseURL. token may be nil.
func NewHTTPAdapter(client *http.Client, baseURL string, token TokenSource) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// NewHTTPClient returns a client with the given timeout. When caFile is set the
// server certificate must chain to that CA.
func NewHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func (a *HTTPAdapter) FetchOwnerPlans(ctx context.Context, ownerID string) ([]models.Plan, error) {
	var plans []models.Plan
	q := url.Values{"owner": {ownerID}}
	if err := a.do(ctx, "fetch plans", http.MethodGet, "/api/plans?"+q.Encode(), nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (a *HTTPAdapter) FetchPublicPlan(ctx context.Context, token string) (*models.Plan, error) {
	var p models.Plan
	if err := a.do(ctx, "fetch public plan", http.MethodGet, "/api/public/"+url.PathEscape(token), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *HTTPAdapter) CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	var p models.Plan
	if err := a.do(ctx, "create plan", http.MethodPost, "/api/plans", plan, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *HTTPAdapter) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	return a.do(ctx, "update plan", http.MethodPut, "/api/plans/"+url.PathEscape(plan.ID), plan, nil)
}

func (a *HTTPAdapter) DeletePlan(ctx context.Context, id string) error {
	return a.do(ctx, "delete plan", http.MethodDelete, "/api/plans/"+url.PathEscape(id), nil, nil)
}

func (a *HTTPAdapter) FetchCompletion(ctx context.Context, ownerID string) ([]models.CompletionRecord, error) {
	var records []models.CompletionRecord
	q := url.Values{"owner": {ownerID}}
	if err := a.do(ctx, "fetch completions", http.MethodGet, "/api/completions?"+q.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *HTTPAdapter) UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error {
	return a.do(ctx, "upsert completion", http.MethodPut, "/api/completions", rec, nil)
}

// ConfirmUpgrade exchanges a payment receipt for a PRO bearer token.
func (a *HTTPAdapter) ConfirmUpgrade(ctx context.Context, orderID string) (string, error) {
	var resp models.UpgradeResponse
	if err := a.do(ctx, "confirm upgrade", http.MethodPost, "/api/upgrade", models.UpgradeRequest{OrderID: orderID}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &models.RemoteError{Op: "confirm upgrade", Status: http.StatusOK, Message: "no token in response"}
	}
	return resp.Token, nil
}

// do performs one request. out may be nil when the response body is ignored.
func (a *HTTPAdapter) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.RemoteError{Op: op, Status: resp.StatusCode, Message: "invalid response: " + err.Error()}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body models.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body = models.ErrorBody{Message: strings.TrimSpace(string(raw))}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		field := body.Field
		if field == "" {
			field = "request"
		}
		return &models.ValidationError{Field: field, Reason: body.Message}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case resp.StatusCode == http.StatusForbidden && body.Limit > 0:
		return &models.QuotaExceededError{Tier: body.Tier, Limit: body.Limit}
	default:
		return &models.RemoteError{Op: op, Status: resp.StatusCode, Message: body.Message}
	}
}
