package tournaments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
)

const (
	defaultTimeout             = 5 * time.Second
	responseBodyReadLimit int64 = 1024
	userIDHeader                = "X-User-ID"
)

var errBaseURLRequired = errors.New("tournament service url is required")

// Client reads tournament records from the tournament service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Tournament is the subset of the tournament record used for payout checks.
type Tournament struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	PrizePool int64    `json:"prizePool"`
	WinnerIDs []string `json:"winnerIds"`
}

// HasWinner reports whether userID is listed among the winners.
func (t *Tournament) HasWinner(userID uuid.UUID) bool {
	if t == nil {
		return false
	}
	id := userID.String()
	for _, winner := range t.WinnerIDs {
		if strings.EqualFold(winner, id) {
			return true
		}
	}
	return false
}

// GetTournament fetches one tournament on behalf of userID.
func (c *Client) GetTournament(ctx context.Context, userID, tournamentID uuid.UUID) (*Tournament, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tournament client not configured")
	}
	if tournamentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tournament id is required")
	}

	endpoint := fmt.Sprintf("%s/api/v1/tournaments/%s", c.baseURL, url.PathEscape(tournamentID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build tournament request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(userIDHeader, userID.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute tournament request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tournament not found")
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "tournament request failed")
	}

	var envelope struct {
		Data *Tournament `json:"data"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read tournament response")
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode tournament response")
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}

	// Older deployments return the record without an envelope.
	var bare Tournament
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode tournament response")
	}
	return &bare, nil
}
