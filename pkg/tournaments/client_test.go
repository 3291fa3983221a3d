package tournaments

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("https://tournaments.internal/", time.Second, WithHTTPClient(&http.Client{Transport: fn}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestGetTournamentSendsUserHeader(t *testing.T) {
	userID := uuid.New()
	tournamentID := uuid.New()

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "https://tournaments.internal/api/v1/tournaments/"+tournamentID.String() {
			t.Fatalf("unexpected url %s", req.URL)
		}
		if req.Header.Get(userIDHeader) != userID.String() {
			t.Fatalf("missing user header")
		}
		return jsonResponse(http.StatusOK, `{"data":{"id":"`+tournamentID.String()+`","status":"completed","winnerIds":["`+userID.String()+`"]}}`), nil
	})

	tournament, err := client.GetTournament(context.Background(), userID, tournamentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tournament.Status != "completed" {
		t.Fatalf("unexpected status %q", tournament.Status)
	}
	if !tournament.HasWinner(userID) {
		t.Fatalf("expected user to be a winner")
	}
}

func TestGetTournamentAcceptsBareRecord(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":"t-1","name":"Spring Cup"}`), nil
	})

	tournament, err := client.GetTournament(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tournament.Name != "Spring Cup" {
		t.Fatalf("unexpected tournament %+v", tournament)
	}
}

func TestGetTournamentErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   pkgerrors.Code
	}{
		{name: "not found", status: http.StatusNotFound, code: pkgerrors.CodeNotFound},
		{name: "server error", status: http.StatusBadGateway, code: pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, `{"error":"nope"}`), nil
			})
			_, err := client.GetTournament(context.Background(), uuid.New(), uuid.New())
			if !pkgerrors.Is(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  ", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	_, err := c.GetTournament(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
