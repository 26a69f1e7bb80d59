package scrape

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
	"github.com/SkippTopp/reddit-scripts/internal/extract"
)

// XPath selectors for old-style forum markup.
const (
	selListingPostLinks = `//div[@class="entry unvoted"]/ul/li[@class="first"]/a[contains(@class,"comments")]`
	selNextPage         = `//a[@rel="nofollow next"]`

	selPostTitle       = `//a[@class="title may-blank "]`
	selPostedAt        = `//div[@id="siteTable"]/div/div/p[@class="tagline"]/time`
	selPostedBy        = `//p[@class="tagline"]/a[contains(@class, "author")]`
	selNumComments     = `//a[@class="bylink comments may-blank"]`
	selPostKarma       = `//div[@class="score unvoted"]`
	selPostScore       = `//div[@class="score"]`
	selAllCommentsLink = `//div[@class="commentarea"]/div/a`
	selNoComments      = `//p[@id="noresults"]`

	selCommentBlocks  = `//div[@data-type="comment"]`
	selCommentTime    = `./div/p[@class="tagline"]/time`
	selCommentReplies = `./div/p[@class="tagline"]/a[@class="numchildren"]`
	selCommentScore   = `./div/p[@class="tagline"]/span[@class="score unvoted"]`

	attrAuthor = "data-author"
	attrTitle  = "title"
	attrHref   = "href"

	defaultNumComments  = "0"
	defaultCommentKarma = "1"
)

// listingTasks returns one post task per entry on a listing page, followed by
// a listing task for the next page when the page links to one.
func listingTasks(doc *extract.Document) ([]crawler.Task, error) {
	links, err := doc.All(selListingPostLinks)
	if err != nil {
		return nil, fmt.Errorf("post links: %w", err)
	}
	tasks := make([]crawler.Task, 0, len(links)+1)
	for _, link := range links {
		href, err := link.AttrValue(attrHref)
		if err != nil {
			continue
		}
		abs, err := crawler.ResolveURL(doc.URL, href)
		if err != nil {
			continue
		}
		tasks = append(tasks, crawler.Task{Kind: crawler.KindPostDetail, URL: abs})
	}

	// A missing or unusable next link is the end of the listing.
	if href, err := doc.Attr(selNextPage, attrHref); err == nil {
		if next, err := crawler.ResolveURL(doc.URL, href); err == nil {
			tasks = append(tasks, crawler.Task{Kind: crawler.KindListing, URL: next})
		}
	}
	return tasks, nil
}

// parsePost extracts a post record. Title, date, author, karma and the score
// display are required; a missing comment count means zero comments.
func parsePost(doc *extract.Document) (crawler.PostRecord, error) {
	title, err := doc.Text(selPostTitle)
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("title: %w", err)
	}
	stamp, err := doc.Attr(selPostedAt, attrTitle)
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("posted at: %w", err)
	}
	author, err := doc.Text(selPostedBy)
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("posted by: %w", err)
	}
	numComments := defaultNumComments
	if text, err := doc.Text(selNumComments); err == nil {
		numComments = digits(text)
	}
	karma, err := doc.Text(selPostKarma)
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("karma: %w", err)
	}
	score, err := doc.Text(selPostScore)
	if err != nil {
		return crawler.PostRecord{}, fmt.Errorf("upvote: %w", err)
	}

	return crawler.PostRecord{
		Title:         title,
		PostedAt:      dropFirstToken(stamp),
		PostedBy:      author,
		NumComments:   numComments,
		KarmaPoints:   karma,
		UpvotePercent: upvotePercent(score),
	}, nil
}

// commentTask returns the comment page task for a post, or false when the
// page says the post has no comments.
func commentTask(doc *extract.Document, post crawler.PostRecord, postURL string) (crawler.Task, bool) {
	if doc.Exists(selNoComments) {
		return crawler.Task{}, false
	}
	link := postURL
	if href, err := doc.Attr(selAllCommentsLink, attrHref); err == nil {
		if abs, err := crawler.ResolveURL(doc.URL, href); err == nil {
			link = abs
		}
	}
	return crawler.Task{
		Kind:           crawler.KindCommentPage,
		URL:            link,
		PostTitle:      post.Title,
		OriginalPoster: post.PostedBy,
	}, true
}

// skippedComment describes a comment block that lacked a required field.
type skippedComment struct {
	index int
	err   error
}

// parseComments extracts every comment on a comment page. A block missing
// its author, timestamp or reply count is skipped without affecting the
// others.
func parseComments(doc *extract.Document, task crawler.Task) ([]crawler.CommentRecord, []skippedComment, error) {
	blocks, err := doc.All(selCommentBlocks)
	if err != nil {
		return nil, nil, fmt.Errorf("comment blocks: %w", err)
	}
	var (
		records []crawler.CommentRecord
		skipped []skippedComment
	)
	for i, block := range blocks {
		rec, err := parseComment(block, task)
		if err != nil {
			skipped = append(skipped, skippedComment{index: i, err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseComment(block extract.Element, task crawler.Task) (crawler.CommentRecord, error) {
	commenter, err := block.AttrValue(attrAuthor)
	if err != nil {
		return crawler.CommentRecord{}, fmt.Errorf("commenter: %w", err)
	}
	stamp, err := block.Attr(selCommentTime, attrTitle)
	if err != nil {
		return crawler.CommentRecord{}, fmt.Errorf("commented at: %w", err)
	}
	repliesText, err := block.Text(selCommentReplies)
	if err != nil {
		return crawler.CommentRecord{}, fmt.Errorf("replies: %w", err)
	}
	replies, ok := firstToken(repliesText)
	if !ok {
		return crawler.CommentRecord{}, errors.New("replies: empty label")
	}
	karma := defaultCommentKarma
	if text, err := block.Text(selCommentScore); err == nil {
		if tok, ok := firstToken(text); ok {
			karma = tok
		}
	}

	return crawler.CommentRecord{
		PostTitle:      task.PostTitle,
		OriginalPoster: task.OriginalPoster,
		Commenter:      commenter,
		CommentedAt:    dropFirstToken(stamp),
		NumReplies:     digits(replies),
		KarmaPoints:    karma,
	}, nil
}

// dropFirstToken removes the leading weekday or relative-time word from a
// timestamp tooltip, e.g. "Tue Mar 1 12:00:00 2016 UTC" becomes
// "Mar 1 12:00:00 2016 UTC".
func dropFirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

func firstToken(s string) (string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// upvotePercent turns a score display like "1234 (87% upvoted)" into "87%".
func upvotePercent(score string) string {
	if i := strings.LastIndex(score, "("); i >= 0 {
		score = score[i+1:]
	}
	return digits(score) + "%"
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
