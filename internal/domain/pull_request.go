// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"strings"
	"time"
)

// PR states as reported by GitHub.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// PullRequest is an immutable snapshot of a single pull request as fetched from GitHub.
// A merged pull request is always closed and carries a MergedAt timestamp.
// Line and file counts are only reported by the single pull request endpoint, so they stay
// zero for pull requests read from list or search pages.
type PullRequest struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	State          string     `json:"state"`
	Merged         bool       `json:"merged"`
	CreatedAt      time.Time  `json:"created_at"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Author         string     `json:"author"`
	AuthorAvatar   string     `json:"author_avatar,omitempty"`
	Repository     string     `json:"repository"`
	BaseBranch     string     `json:"base_branch,omitempty"`
	Labels         []string   `json:"labels"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	ChangedFiles   int        `json:"changed_files"`
	ReviewComments int        `json:"review_comments"`
}

// Outcome is the single bucket a pull request counts towards in contributor rollups.
type Outcome int

const (
	OutcomeOpen Outcome = iota
	OutcomeMerged
	OutcomeClosed
)

// Outcome resolves the PR bucket with the precedence merged > open > closed.
func (p PullRequest) Outcome() Outcome {
	switch {
	case p.Merged:
		return OutcomeMerged
	case p.State == StateOpen:
		return OutcomeOpen
	default:
		return OutcomeClosed
	}
}

// Owner returns the owner part of the "owner/name" repository identifier.
func (p PullRequest) Owner() string {
	owner, _, _ := strings.Cut(p.Repository, "/")
	return owner
}
