package seal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStubSealerIssuesNonQualifiedToken(t *testing.T) {
	s, err := NewStub([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	hash := strings.Repeat("ab", 32)
	sl, err := s.Seal(context.Background(), hash)
	if err != nil {
		t.Fatal(err)
	}
	if sl.Status != StatusIssued {
		t.Fatalf("status = %q, want ISSUED", sl.Status)
	}
	if sl.Qualified {
		t.Fatal("stub seal must be marked non-qualified")
	}
	if sl.Provider != "stub" {
		t.Fatalf("provider = %q", sl.Provider)
	}
	if !strings.HasPrefix(sl.ID, "seal_") {
		t.Fatalf("unexpected seal id %q", sl.ID)
	}

	parsed, err := jwt.ParseWithClaims(string(sl.Token), &stubClaims{}, func(tk *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := parsed.Claims.(*stubClaims)
	if claims.Hash != hash {
		t.Fatalf("token hash = %q, want %q", claims.Hash, hash)
	}
	if claims.Qualified {
		t.Fatal("token claims qualified=true")
	}
}

func TestStubSealerRequiresSecret(t *testing.T) {
	if _, err := NewStub(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

// fakeAuthority simulates the QTSP token + evidence endpoints. Statuses are
// served in order for successive polls of the same evidence.
type fakeAuthority struct {
	t          *testing.T
	statuses   []string
	tokenHits  atomic.Int64
	submitHits atomic.Int64
	pollHits   atomic.Int64
	expiresIn  int64
	rejectAuth bool
}

func (f *fakeAuthority) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		if f.rejectAuth {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		if r.FormValue("grant_type") != "client_credentials" {
			f.t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		expires := f.expiresIn
		if expires == 0 {
			expires = 3600
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-bearer",
			"expires_in":   expires,
		})
	})
	mux.HandleFunc("/v1/evidence-groups/grp/evidences", func(w http.ResponseWriter, r *http.Request) {
		f.submitHits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer fake-bearer" {
			f.t.Errorf("authorization = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ev-1", "status": "PENDING"})
	})
	mux.HandleFunc("/v1/evidence-groups/grp/evidences/ev-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.pollHits.Add(1)
		idx := int(n) - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		resp := map[string]any{"id": "ev-1", "status": f.statuses[idx]}
		if f.statuses[idx] == "COMPLETED" {
			resp["token"] = []byte("tst-token-bytes")
		}
		if f.statuses[idx] == "ERROR" {
			resp["detail"] = "imprint mismatch"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newQTSPAgainst(t *testing.T, srv *httptest.Server) *QTSPSealer {
	t.Helper()
	q, err := NewQTSP(QTSPConfig{
		BaseURL:         srv.URL,
		TokenURL:        srv.URL + "/oauth/token",
		ClientID:        "cid",
		ClientSecret:    "cs",
		EvidenceGroup:   "grp",
		PollInterval:    5 * time.Millisecond,
		MaxPollAttempts: 5,
		Timeout:         2 * time.Second,
		HTTPClient:      srv.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestQTSPSealCompletes(t *testing.T) {
	auth := &fakeAuthority{t: t, statuses: []string{"PENDING", "PENDING", "COMPLETED"}}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	sl, err := q.Seal(context.Background(), strings.Repeat("cd", 32))
	if err != nil {
		t.Fatal(err)
	}
	if sl.Status != StatusIssued || !sl.Qualified {
		t.Fatalf("unexpected seal: %+v", sl)
	}
	if string(sl.Token) != "tst-token-bytes" {
		t.Fatalf("token = %q", sl.Token)
	}
	if got := auth.pollHits.Load(); got != 3 {
		t.Fatalf("poll hits = %d, want 3", got)
	}
}

func TestQTSPTokenCacheReused(t *testing.T) {
	auth := &fakeAuthority{t: t, statuses: []string{"COMPLETED"}}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	for i := 0; i < 3; i++ {
		if _, err := q.Seal(context.Background(), strings.Repeat("ef", 32)); err != nil {
			t.Fatal(err)
		}
	}
	if got := auth.tokenHits.Load(); got != 1 {
		t.Fatalf("token endpoint hit %d times, want 1 (cache)", got)
	}
}

func TestQTSPTokenRefreshNearExpiry(t *testing.T) {
	// expires_in of 30s is within the 60s refresh slack, so every exchange
	// re-authenticates.
	auth := &fakeAuthority{t: t, statuses: []string{"COMPLETED"}, expiresIn: 30}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	if _, err := q.Seal(context.Background(), strings.Repeat("01", 32)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Seal(context.Background(), strings.Repeat("02", 32)); err != nil {
		t.Fatal(err)
	}
	if got := auth.tokenHits.Load(); got < 2 {
		t.Fatalf("token endpoint hit %d times, want refresh on each use", got)
	}
}

func TestQTSPAuthFailure(t *testing.T) {
	auth := &fakeAuthority{t: t, rejectAuth: true}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	_, err := q.Seal(context.Background(), strings.Repeat("aa", 32))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", authErr.StatusCode)
	}
}

func TestQTSPSubmissionFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fake-bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/evidence-groups/grp/evidences", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "group closed", http.StatusConflict)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	_, err := q.Seal(context.Background(), strings.Repeat("bb", 32))
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
}

func TestQTSPEvidenceRejected(t *testing.T) {
	auth := &fakeAuthority{t: t, statuses: []string{"PENDING", "ERROR"}}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	_, err := q.Seal(context.Background(), strings.Repeat("cc", 32))
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Detail != "imprint mismatch" {
		t.Fatalf("detail = %q", rej.Detail)
	}
}

func TestQTSPTimeoutAfterBudget(t *testing.T) {
	auth := &fakeAuthority{t: t, statuses: []string{"PENDING"}}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	_, err := q.Seal(context.Background(), strings.Repeat("dd", 32))
	if !errors.Is(err, ErrSealTimeout) {
		t.Fatalf("expected ErrSealTimeout, got %v", err)
	}
	if got := auth.pollHits.Load(); got != 5 {
		t.Fatalf("poll hits = %d, want full budget of 5", got)
	}
}

func TestQTSPHonorsCancellation(t *testing.T) {
	auth := &fakeAuthority{t: t, statuses: []string{"PENDING"}}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	q := newQTSPAgainst(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Seal(ctx, strings.Repeat("ee", 32)); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
