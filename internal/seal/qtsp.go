package seal

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
	"sync"
	"time"

	"pactum.org/internal/ids"
)

const (
	defaultPollInterval    = 1 * time.Second
	defaultMaxPollAttempts = 30
	defaultSealTimeout     = 30 * time.Second

	// Refresh the cached bearer token this long before its declared expiry.
	tokenRefreshSlack = 60 * time.Second
)

// QTSPConfig configures the production sealer.
type QTSPConfig struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	ClientSecret  string
	EvidenceGroup string

	PollInterval    time.Duration // default 1s
	MaxPollAttempts int           // default 30
	Timeout         time.Duration // wall-clock bound on create-then-poll, default 30s

	HTTPClient *http.Client
}

// QTSPSealer obtains qualified timestamp tokens from an external authority:
// client-credentials auth, evidence submission, bounded status polling.
type QTSPSealer struct {
	cfg    QTSPConfig
	client *http.Client
	now    func() time.Time

	// Bearer token cache. Shared read-mostly across all contracts; guarded
	// by its own lock so unrelated appends never serialize on a refresh.
	tokenMu     sync.Mutex
	bearerToken string
	tokenExpiry time.Time
}

var _ Sealer = (*QTSPSealer)(nil)

// NewQTSP validates cfg and constructs the sealer.
func NewQTSP(cfg QTSPConfig) (*QTSPSealer, error) {
	switch {
	case strings.TrimSpace(cfg.BaseURL) == "":
		return nil, errors.New("qtsp base url is required")
	case strings.TrimSpace(cfg.TokenURL) == "":
		return nil, errors.New("qtsp token url is required")
	case strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "":
		return nil, errors.New("qtsp client credentials are required")
	case strings.TrimSpace(cfg.EvidenceGroup) == "":
		return nil, errors.New("qtsp evidence group is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSealTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &QTSPSealer{cfg: cfg, client: client, now: time.Now}, nil
}

func (q *QTSPSealer) Provider() string { return "qtsp" }

// Seal submits the hash as evidence and polls until the authority reports a
// terminal status or the budget is exhausted.
func (q *QTSPSealer) Seal(ctx context.Context, contentHash string) (Seal, error) {
	ctx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()

	evidenceID, err := q.submitEvidence(ctx, contentHash)
	if err != nil {
		return Seal{}, err
	}
	token, err := q.awaitCompletion(ctx, evidenceID)
	if err != nil {
		return Seal{}, err
	}
	return Seal{
		ID:        ids.NewSeal(),
		Provider:  q.Provider(),
		Qualified: true,
		IssuedAt:  q.now().UTC(),
		Token:     token,
		Status:    StatusIssued,
	}, nil
}

// bearer returns a cached access token, refreshing it when less than
// tokenRefreshSlack remains before expiry.
func (q *QTSPSealer) bearer(ctx context.Context) (string, error) {
	q.tokenMu.Lock()
	defer q.tokenMu.Unlock()

	if q.bearerToken != "" && q.now().Before(q.tokenExpiry.Add(-tokenRefreshSlack)) {
		return q.bearerToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {q.cfg.ClientID},
		"client_secret": {q.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}
	q.bearerToken = payload.AccessToken
	q.tokenExpiry = q.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return q.bearerToken, nil
}

type evidenceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Token  []byte `json:"token"`
	Detail string `json:"detail"`
}

func (q *QTSPSealer) submitEvidence(ctx context.Context, contentHash string) (string, error) {
	token, err := q.bearer(ctx)
	if err != nil {
		return "", err
	}

	reqBody, err := json.Marshal(map[string]any{
		"external_id": uuidString(),
		"hash":        contentHash,
		"algorithm":   "SHA-256",
	})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimSuffix(q.cfg.BaseURL, "/") +
		"/v1/evidence-groups/" + url.PathEscape(q.cfg.EvidenceGroup) + "/evidences"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := q.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var ev evidenceResponse
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("decode evidence response: %w", err)
	}
	if ev.ID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: "missing evidence id"}
	}
	return ev.ID, nil
}

func (q *QTSPSealer) awaitCompletion(ctx context.Context, evidenceID string) ([]byte, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < q.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrSealTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}

		ev, err := q.fetchEvidence(ctx, evidenceID)
		if err != nil {
			return nil, err
		}
		switch ev.Status {
		case "COMPLETED":
			if len(ev.Token) == 0 {
				return nil, &RejectedError{EvidenceID: evidenceID, Detail: "completed without token"}
			}
			return ev.Token, nil
		case "ERROR":
			return nil, &RejectedError{EvidenceID: evidenceID, Detail: ev.Detail}
		}
	}
	return nil, ErrSealTimeout
}

func (q *QTSPSealer) fetchEvidence(ctx context.Context, evidenceID string) (evidenceResponse, error) {
	token, err := q.bearer(ctx)
	if err != nil {
		return evidenceResponse{}, err
	}
	endpoint := strings.TrimSuffix(q.cfg.BaseURL, "/") +
		"/v1/evidence-groups/" + url.PathEscape(q.cfg.EvidenceGroup) +
		"/evidences/" + url.PathEscape(evidenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return evidenceResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := q.client.Do(req)
	if err != nil {
		return evidenceResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return evidenceResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return evidenceResponse{}, &SubmissionError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	var ev evidenceResponse
	if err := json.Unmarshal(body, &ev); err != nil {
		return evidenceResponse{}, fmt.Errorf("decode evidence status: %w", err)
	}
	return ev, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
