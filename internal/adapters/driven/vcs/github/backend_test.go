package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

// newTestBackend points a backend at a stub API server.
func newTestBackend(t *testing.T, handler http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return &Backend{
		gh:          client,
		owner:       "compass-labs",
		repo:        "roadmap",
		baseBranch:  "main",
		rateLimiter: NewRateLimiter(),
	}
}

func TestBackend_CreateBranch(t *testing.T) {
	t.Run("posts the ref payload", func(t *testing.T) {
		var got struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/compass-labs/roadmap/git/refs", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ref":"refs/heads/roadsync/x","object":{"sha":"abc123"}}`))
		})

		b := newTestBackend(t, mux)
		err := b.CreateBranch(context.Background(), "roadsync/x", "abc123")

		require.NoError(t, err)
		assert.Equal(t, "refs/heads/roadsync/x", got.Ref)
		assert.Equal(t, "abc123", got.SHA)
	})

	t.Run("existing branch at the base revision is a no-op", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/compass-labs/roadmap/git/refs", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"Reference already exists"}`))
		})
		mux.HandleFunc("GET /repos/compass-labs/roadmap/git/ref/heads/roadsync/x", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ref":"refs/heads/roadsync/x","object":{"sha":"abc123"}}`))
		})

		b := newTestBackend(t, mux)
		assert.NoError(t, b.CreateBranch(context.Background(), "roadsync/x", "abc123"))
	})

	t.Run("existing branch at another revision is not ours", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /repos/compass-labs/roadmap/git/refs", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"Reference already exists"}`))
		})
		mux.HandleFunc("GET /repos/compass-labs/roadmap/git/ref/heads/roadsync/x", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ref":"refs/heads/roadsync/x","object":{"sha":"someone-else"}}`))
		})

		b := newTestBackend(t, mux)
		err := b.CreateBranch(context.Background(), "roadsync/x", "abc123")
		assert.ErrorIs(t, err, domain.ErrBranchNotOurs)
	})
}

func TestBackend_UpdateFile_StaleBase(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/compass-labs/roadmap/contents/roadmap/auth.md", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"roadmap/auth.md does not match"}`))
	})

	b := newTestBackend(t, mux)
	err := b.UpdateFile(context.Background(), "roadmap/auth.md", "content", "stale-sha", "roadsync/x", "msg")
	assert.ErrorIs(t, err, domain.ErrBaseRevisionStale)
}

func TestBackend_GetProposalState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/compass-labs/roadmap/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number":7,"state":"closed","merged":true}`))
	})

	b := newTestBackend(t, mux)
	state, err := b.GetProposalState(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStateMerged, state)
}

func TestReviewState(t *testing.T) {
	now := gh.Timestamp{Time: time.Now()}

	tests := []struct {
		name string
		pr   *gh.PullRequest
		want string
	}{
		{"open", &gh.PullRequest{State: gh.Ptr("open")}, "open"},
		{"merged flag", &gh.PullRequest{State: gh.Ptr("closed"), Merged: gh.Ptr(true)}, "merged"},
		{"merged at set", &gh.PullRequest{State: gh.Ptr("closed"), MergedAt: &now}, "merged"},
		{"closed unmerged", &gh.PullRequest{State: gh.Ptr("closed")}, "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(reviewState(tt.pr)))
		})
	}
}

func TestAPIError_Helpers(t *testing.T) {
	notFound := &APIError{StatusCode: 404, Message: "Not Found"}
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsConflict(notFound))

	conflict := &APIError{StatusCode: 409, Message: "merge conflict"}
	assert.True(t, IsConflict(conflict))

	unprocessable := &APIError{StatusCode: 422, Message: "Reference already exists"}
	assert.True(t, IsConflict(unprocessable))

	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsRateLimited(errors.New("plain")))
	assert.True(t, IsRateLimited(&RateLimitError{ResetAt: time.Now()}))
}

func TestRateLimiter_UpdateFromResponse(t *testing.T) {
	r := NewRateLimiter()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(headerRateRemaining, "42")
	resp.Header.Set(headerRateLimit, "5000")
	resp.Header.Set(headerRateReset, "1700000000")

	r.UpdateFromResponse(resp)

	assert.Equal(t, 42, r.Remaining())
	assert.Equal(t, 5000, r.Limit())
	assert.Equal(t, time.Unix(1700000000, 0), r.ResetTime())

	// Nil response is ignored.
	r.UpdateFromResponse(nil)
	assert.Equal(t, 42, r.Remaining())
}
