// Package identity verifies login assertions and maps them to an email
// address.
package identity

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
)

// ErrVerifierStatus is returned when the remote verifier answers with a
// non-200 status.
var ErrVerifierStatus = errors.New("identity: verifier returned unexpected status")

// Result is the outcome of a verification. OK is false for a well-formed
// but rejected assertion.
type Result struct {
	OK    bool
	Email string
}

// Verifier checks an identity assertion. Verify may block; callers run it
// off the hub goroutine and cancel ctx when the connection goes away.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (Result, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, assertion string) (Result, error)

func (f VerifierFunc) Verify(ctx context.Context, assertion string) (Result, error) {
	return f(ctx, assertion)
}

// RemoteVerifier posts the assertion and audience to a verification
// endpoint that answers {"status":"okay","email":...}.
type RemoteVerifier struct {
	URL      string
	Audience string
	Client   *http.Client
}

// NewRemoteVerifier returns a RemoteVerifier with a bounded HTTP client.
func NewRemoteVerifier(endpoint, audience string) *RemoteVerifier {
	return &RemoteVerifier{
		URL:      endpoint,
		Audience: audience,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type verifyResponse struct {
	Status string `json:"status"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, assertion string) (Result, error) {
	if assertion == "" {
		return Result{}, nil
	}
	form := url.Values{"assertion": {assertion}, "audience": {v.Audience}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("identity: verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: %d", ErrVerifierStatus, resp.StatusCode)
	}
	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("identity: decode response: %w", err)
	}
	if body.Status != "okay" || body.Email == "" {
		return Result{}, nil
	}
	return Result{OK: true, Email: body.Email}, nil
}

// Insecure accepts any assertion that looks like an email address and
// treats it as verified. Development only.
type Insecure struct{}

func (Insecure) Verify(_ context.Context, assertion string) (Result, error) {
	at := strings.IndexByte(assertion, '@')
	if at <= 0 || at == len(assertion)-1 {
		return Result{}, nil
	}
	return Result{OK: true, Email: assertion}, nil
}
