package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

var fixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler, mutate ...func(*Options)) *GitHubGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := Options{
		BaseURL:        server.URL + "/",
		GraphQLURL:     server.URL + "/graphql",
		RequestTimeout: 5 * time.Second,
		Bounds:         DefaultBounds(),
		Now:            func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	gateway, err := NewGitHubGateway(opts, logger)
	require.NoError(t, err)
	return gateway
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func pullJSON(number int, created time.Time, extra map[string]any) map[string]any {
	pr := map[string]any{
		"number":     number,
		"title":      fmt.Sprintf("PR #%d", number),
		"state":      "open",
		"created_at": created.Format(time.RFC3339),
		"user":       map[string]any{"login": "alice", "avatar_url": "https://avatars.example/alice"},
		"base":       map[string]any{"ref": "main", "repo": map[string]any{"full_name": "octo/hello"}},
		"labels":     []map[string]any{},
	}
	for k, v := range extra {
		pr[k] = v
	}
	return pr
}

func TestGitHubGateway_FetchPullRequests(t *testing.T) {
	start := domain.FilterTwoWeeks.StartDate(fixedNow)
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octo/hello/pulls", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "all", q.Get("state"))
		assert.Equal(t, "main", q.Get("base"))
		assert.Equal(t, "created", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("direction"))
		assert.Equal(t, "100", q.Get("per_page"))
		assert.Equal(t, "1", q.Get("page"))

		writeJSON(t, w, []map[string]any{
			pullJSON(3, time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC), map[string]any{
				"state":     "closed",
				"merged_at": "2024-06-11T10:00:00Z",
				"closed_at": "2024-06-11T10:00:00Z",
				"labels":    []map[string]any{{"name": "bug"}, {"name": "Bug"}},
			}),
			pullJSON(2, time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC), nil),
			pullJSON(1, time.Date(2024, time.May, 30, 9, 0, 0, 0, time.UTC), nil),
		})
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))

	prs, err := gateway.FetchPullRequests(context.Background(), "octo", "hello", "main", start)

	require.NoError(t, err)
	require.Len(t, prs, 2, "the PR created 2024-05-30 is outside the 2w window")
	assert.Equal(t, 3, prs[0].Number)
	assert.True(t, prs[0].Merged)
	assert.Equal(t, domain.StateClosed, prs[0].State)
	require.NotNil(t, prs[0].MergedAt)
	assert.Equal(t, []string{"bug", "Bug"}, prs[0].Labels)
	assert.Equal(t, "octo/hello", prs[0].Repository)
	assert.Equal(t, "alice", prs[0].Author)
	assert.Equal(t, 2, prs[1].Number)
	assert.False(t, prs[1].Merged)
}

func TestGitHubGateway_FetchPullRequests_PageCap(t *testing.T) {
	var requests atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page := make([]map[string]any, PageSize)
		for i := range page {
			page[i] = pullJSON(i+1, fixedNow.Add(-time.Hour), nil)
		}
		writeJSON(t, w, page)
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler), func(o *Options) {
		o.Bounds.PullPageCap = 3
		o.Bounds.PullItemCap = 10_000
	})

	prs, err := gateway.FetchPullRequests(context.Background(), "octo", "hello", "", domain.FilterAll.StartDate(fixedNow))

	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load())
	assert.Len(t, prs, 3*PageSize)
}

func TestGitHubGateway_ErrorClassification(t *testing.T) {
	reset := time.Date(2024, time.June, 15, 13, 0, 0, 0, time.UTC)
	testCases := []struct {
		name        string
		status      int
		headers     map[string]string
		expectedErr error
		expectReset bool
	}{
		{name: "not found", status: http.StatusNotFound, expectedErr: domain.ErrNotFound},
		{name: "bad credentials", status: http.StatusUnauthorized, expectedErr: domain.ErrUnauthorized},
		{name: "forbidden without quota headers", status: http.StatusForbidden, expectedErr: domain.ErrUnauthorized},
		{
			name:   "primary rate limit",
			status: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "60",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     fmt.Sprint(reset.Unix()),
			},
			expectedErr: domain.ErrRateLimited,
			expectReset: true,
		},
		{name: "server error", status: http.StatusBadGateway, expectedErr: domain.ErrUpstream},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"message": "nope"}`)
			}
			gateway := setupTestGateway(t, http.HandlerFunc(handler))

			_, err := gateway.FetchPullRequests(context.Background(), "octo", "missing", "", domain.FilterTwoWeeks.StartDate(fixedNow))

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Contains(t, err.Error(), "failed to list pull requests")
			assert.Contains(t, err.Error(), "octo/missing")
			var apiErr *domain.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			if tc.expectReset {
				got, ok := domain.ResetTime(err)
				require.True(t, ok)
				assert.True(t, reset.Equal(got))
			}
		})
	}
}

func TestClassifyResponse(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		header        http.Header
		expectedKind  error
		expectedReset time.Time
	}{
		{"429 with retry-after seconds", 429, http.Header{"Retry-After": {"30"}}, domain.ErrRateLimited, fixedNow.Add(30 * time.Second)},
		{"429 without headers", 429, nil, domain.ErrRateLimited, time.Time{}},
		{"403 exhausted quota", 403, http.Header{"X-Ratelimit-Remaining": {"0"}, "X-Ratelimit-Reset": {"1718456400"}}, domain.ErrRateLimited, time.Unix(1718456400, 0).UTC()},
		{"403 with http-date retry-after", 403, http.Header{"Retry-After": {"Sat, 15 Jun 2024 12:05:00 GMT"}}, domain.ErrRateLimited, time.Date(2024, 6, 15, 12, 5, 0, 0, time.UTC)},
		{"403 with remaining quota", 403, http.Header{"X-Ratelimit-Remaining": {"12"}}, domain.ErrUnauthorized, time.Time{}},
		{"401", 401, nil, domain.ErrUnauthorized, time.Time{}},
		{"404", 404, nil, domain.ErrNotFound, time.Time{}},
		{"422", 422, nil, domain.ErrUpstream, time.Time{}},
		{"503", 503, nil, domain.ErrUpstream, time.Time{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kind, reset := ClassifyResponse(tc.status, tc.header, fixedNow)
			assert.Equal(t, tc.expectedKind, kind)
			assert.True(t, tc.expectedReset.Equal(reset), "expected %s, got %s", tc.expectedReset, reset)
		})
	}
}

func TestGitHubGateway_TimeoutIsUpstreamError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler), func(o *Options) {
		o.RequestTimeout = 50 * time.Millisecond
	})

	_, err := gateway.FetchBranches(context.Background(), "octo", "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGitHubGateway_SearchUserPullRequests(t *testing.T) {
	start := domain.FilterTwoWeeks.StartDate(fixedNow)
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		assert.Equal(t, "author:alice is:pr created:>=2024-06-01", r.URL.Query().Get("q"))
		assert.Equal(t, "created", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		writeJSON(t, w, map[string]any{
			"total_count": 2,
			"items": []map[string]any{
				{
					"number":         7,
					"title":          "Add search",
					"state":          "closed",
					"created_at":     "2024-06-05T10:00:00Z",
					"closed_at":      "2024-06-06T10:00:00Z",
					"user":           map[string]any{"login": "alice"},
					"repository_url": "https://api.github.com/repos/octo/hello",
					"pull_request":   map[string]any{"url": "https://api.github.com/repos/octo/hello/pulls/7", "merged_at": "2024-06-06T10:00:00Z"},
				},
				{
					"number":         9,
					"title":          "Refactor",
					"state":          "closed",
					"created_at":     "2024-06-03T10:00:00Z",
					"closed_at":      "2024-06-04T10:00:00Z",
					"user":           map[string]any{"login": "alice"},
					"repository_url": "https://api.github.com/repos/other/tool",
					"pull_request":   map[string]any{"url": "https://api.github.com/repos/other/tool/pulls/9"},
				},
			},
		})
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))

	prs, err := gateway.SearchUserPullRequests(context.Background(), "alice", start)

	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, "octo/hello", prs[0].Repository)
	assert.True(t, prs[0].Merged)
	assert.Equal(t, "other/tool", prs[1].Repository)
	assert.False(t, prs[1].Merged)
	assert.Equal(t, domain.OutcomeClosed, prs[1].Outcome())
}

func TestGitHubGateway_FetchMaintainers(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octo/hello/collaborators", r.URL.Path)
		writeJSON(t, w, []map[string]any{
			{"login": "admin-user", "permissions": map[string]bool{"admin": true, "push": true, "pull": true}},
			{"login": "writer", "permissions": map[string]bool{"push": true, "pull": true}},
			{"login": "reader", "permissions": map[string]bool{"pull": true}},
		})
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))

	maintainers, err := gateway.FetchMaintainers(context.Background(), "octo", "hello")

	require.NoError(t, err)
	assert.Equal(t, []string{"admin-user", "writer"}, maintainers)
}

func TestGitHubGateway_FetchBranches(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octo/hello/branches", r.URL.Path)
		writeJSON(t, w, []map[string]any{{"name": "main"}, {"name": "release/v1"}})
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))

	branches, err := gateway.FetchBranches(context.Background(), "octo", "hello")

	require.NoError(t, err)
	assert.Equal(t, []string{"main", "release/v1"}, branches)
}

func TestGitHubGateway_FetchUser(t *testing.T) {
	testCases := []struct {
		name        string
		handlerFunc func(w http.ResponseWriter, r *http.Request)
		expected    domain.UserProfile
		expectedErr error
	}{
		{
			name: "happy path",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/users/alice", r.URL.Path)
				fmt.Fprint(w, `{"login":"alice","name":"Alice","avatar_url":"https://a/1","bio":"hi","location":"Tokyo","followers":3,"following":4}`)
			},
			expected: domain.UserProfile{Login: "alice", Name: "Alice", AvatarURL: "https://a/1", Bio: "hi", Location: "Tokyo", Followers: 3, Following: 4},
		},
		{
			name: "unknown user",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"Not Found"}`)
			},
			expectedErr: domain.ErrNotFound,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))

			profile, err := gateway.FetchUser(context.Background(), "alice")

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Contains(t, err.Error(), "alice")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, profile)
		})
	}
}

func TestGitHubGateway_SetAuthToken(t *testing.T) {
	var seen []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"remaining":4999,"reset":1718456400}}}`)
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))

	status, err := gateway.RateLimitStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, status.Limit)
	assert.Equal(t, 4999, status.Remaining)
	assert.True(t, time.Unix(1718456400, 0).Equal(status.ResetAt))

	gateway.SetAuthToken("s3cret")
	_, err = gateway.RateLimitStatus(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0], "no credential configured yet")
	assert.Equal(t, "Bearer s3cret", seen[1])
}

func TestGitHubGateway_FetchReviews(t *testing.T) {
	testCases := []struct {
		name           string
		responseBody   string
		expected       []PRReviewData
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path",
			responseBody: `{"data":{"search":{"pageInfo":{"hasNextPage":false},"edges":[` +
				`{"node":{"__typename":"PullRequest","number":5,"createdAt":"2024-06-10T00:00:00Z","reviews":{"nodes":[` +
				`{"author":{"login":"bob"},"state":"APPROVED","submittedAt":"2024-06-10T06:00:00Z"}]}}},` +
				`{"node":{"__typename":"Issue"}}]}}}`,
			expected: []PRReviewData{{
				Number:    5,
				CreatedAt: time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC),
				Reviews:   []Review{{Author: "bob", State: ReviewApproved, SubmittedAt: time.Date(2024, time.June, 10, 6, 0, 0, 0, time.UTC)}},
			}},
		},
		{
			name:           "error case",
			responseBody:   `{"errors":[{"message":"Something went wrong"}]}`,
			expectError:    true,
			expectedErrMsg: "failed to execute GraphQL query for reviews",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				// ">" is escaped in the JSON body, so match around it.
				assert.Contains(t, string(body), "repo:octo/hello is:pr created:")
				assert.Contains(t, string(body), "2024-06-01")
				assert.Contains(t, string(body), "base:main")
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, tc.responseBody)
			}
			gateway := setupTestGateway(t, http.HandlerFunc(handler))

			data, err := gateway.FetchReviews(context.Background(), "octo", "hello", "main", domain.FilterTwoWeeks.StartDate(fixedNow))

			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
				return
			}
			require.NoError(t, err)
			require.Len(t, data, len(tc.expected))
			assert.Equal(t, tc.expected[0].Number, data[0].Number)
			assert.True(t, tc.expected[0].CreatedAt.Equal(data[0].CreatedAt))
			require.Len(t, data[0].Reviews, 1)
			assert.Equal(t, "bob", data[0].Reviews[0].Author)
			assert.Equal(t, ReviewApproved, data[0].Reviews[0].State)
		})
	}
}
