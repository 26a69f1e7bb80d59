// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Kind identifies which handler consumes a Task.
type Kind string

// Task kinds, in the order the crawl discovers them.
const (
	KindListing     Kind = "listing"
	KindPostDetail  Kind = "post"
	KindCommentPage Kind = "comments"
)

// Task is one unit of crawl work. Tasks are values; handlers create new ones
// rather than mutating what they received.
type Task struct {
	Kind Kind
	URL  string
	// PostTitle and OriginalPoster travel with comment page tasks because a
	// comment page alone does not identify the post it belongs to.
	PostTitle      string
	OriginalPoster string
}

// PostRecord is one row of the posts export.
type PostRecord struct {
	Title         string
	PostedAt      string
	PostedBy      string
	NumComments   string
	KarmaPoints   string
	UpvotePercent string
}

// PostKey is the identity of a post: two records with the same key are the
// same post seen from different listings.
type PostKey struct {
	Title    string
	PostedAt string
	PostedBy string
}

// Key projects the record onto its dedup key.
func (p PostRecord) Key() PostKey {
	return PostKey{Title: p.Title, PostedAt: p.PostedAt, PostedBy: p.PostedBy}
}

// Row renders the record in export column order.
func (p PostRecord) Row() []string {
	return []string{p.Title, p.PostedAt, p.PostedBy, p.NumComments, p.KarmaPoints, p.UpvotePercent}
}

// CommentRecord is one row of the comments export.
type CommentRecord struct {
	PostTitle      string
	OriginalPoster string
	Commenter      string
	CommentedAt    string
	NumReplies     string
	KarmaPoints    string
}

// CommentKey is the identity of a comment.
type CommentKey struct {
	PostTitle      string
	OriginalPoster string
	Commenter      string
	CommentedAt    string
}

// Key projects the record onto its dedup key.
func (c CommentRecord) Key() CommentKey {
	return CommentKey{
		PostTitle:      c.PostTitle,
		OriginalPoster: c.OriginalPoster,
		Commenter:      c.Commenter,
		CommentedAt:    c.CommentedAt,
	}
}

// Row renders the record in export column order.
func (c CommentRecord) Row() []string {
	return []string{c.PostTitle, c.OriginalPoster, c.Commenter, c.CommentedAt, c.NumReplies, c.KarmaPoints}
}

// Header rows for the two exports.
var (
	PostHeaders    = []string{"Post Title", "Post Date/Time", "Posted By", "# Comments", "Karma Points", "Upvote %"}
	CommentHeaders = []string{"Post Title", "Original Poster", "Commenter", "Comment Date/Time", "# Replies", "Karma Points"}
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Summary describes a finished crawl run. It is published to the configured
// event topic after the exports are written.
type Summary struct {
	RunID          string    `json:"run_id"`
	Subreddit      string    `json:"subreddit"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Posts          int       `json:"posts"`
	Comments       int       `json:"comments"`
	FailedTasks    int64     `json:"failed_tasks"`
	PostsFile      string    `json:"posts_file"`
	CommentsFile   string    `json:"comments_file"`
	PostsSHA256    string    `json:"posts_sha256,omitempty"`
	CommentsSHA256 string    `json:"comments_sha256,omitempty"`
	Uploaded       []string  `json:"uploaded,omitempty"`
}
