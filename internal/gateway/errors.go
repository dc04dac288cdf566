package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
)

// ClassifyResponse maps an HTTP status and its rate-limit headers to an error kind.
// It never looks at the response body. resetAt is zero unless kind is domain.ErrRateLimited
// and the headers carry a reset hint.
func ClassifyResponse(status int, header http.Header, now time.Time) (kind error, resetAt time.Time) {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && isRateLimitHeader(header):
		return domain.ErrRateLimited, resetFromHeader(header, now)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.ErrUnauthorized, time.Time{}
	case status == http.StatusNotFound:
		return domain.ErrNotFound, time.Time{}
	default:
		return domain.ErrUpstream, time.Time{}
	}
}

func isRateLimitHeader(header http.Header) bool {
	if header == nil {
		return false
	}
	return header.Get(headerRateRemaining) == "0" || header.Get(headerRetryAfter) != ""
}

// resetFromHeader prefers Retry-After (seconds or HTTP date) over X-RateLimit-Reset (epoch seconds).
func resetFromHeader(header http.Header, now time.Time) time.Time {
	if header == nil {
		return time.Time{}
	}
	if v := header.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(v); err == nil {
			return t
		}
	}
	if v := header.Get(headerRateReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0).UTC()
		}
	}
	return time.Time{}
}

// classify wraps a raw client error into a *domain.APIError naming the resource involved.
func (g *GitHubGateway) classify(err error, resource string) error {
	if err == nil {
		return nil
	}
	var already *domain.APIError
	if errors.As(err, &already) {
		return err
	}
	apiErr := &domain.APIError{Kind: domain.ErrUpstream, Resource: resource, Err: err}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	switch {
	case errors.As(err, &rateErr):
		apiErr.Kind = domain.ErrRateLimited
		apiErr.ResetAt = rateErr.Rate.Reset.Time
		if rateErr.Response != nil {
			apiErr.StatusCode = rateErr.Response.StatusCode
		}
	case errors.As(err, &abuseErr):
		apiErr.Kind = domain.ErrRateLimited
		if abuseErr.Response != nil {
			apiErr.StatusCode = abuseErr.Response.StatusCode
			apiErr.ResetAt = resetFromHeader(abuseErr.Response.Header, g.now())
		}
		if abuseErr.RetryAfter != nil {
			apiErr.ResetAt = g.now().Add(*abuseErr.RetryAfter)
		}
	case errors.As(err, &respErr) && respErr.Response != nil:
		apiErr.StatusCode = respErr.Response.StatusCode
		apiErr.Kind, apiErr.ResetAt = ClassifyResponse(respErr.Response.StatusCode, respErr.Response.Header, g.now())
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.WithField("resource", resource).Warn("GitHub request timed out")
	}

	g.logger.WithFields(logrus.Fields{
		"resource": resource,
		"kind":     apiErr.Kind.Error(),
		"status":   apiErr.StatusCode,
	}).Debugf("GitHub request failed: %v", err)
	return apiErr
}
