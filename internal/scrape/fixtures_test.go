package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

const fixtureBase = "https://forum.test"

type fixtureComment struct {
	author  string
	stamp   string
	replies string
	score   string // empty renders no score element
}

type fixturePost struct {
	title       string
	stamp       string
	author      string
	karma       string
	score       string
	numComments string // empty renders no comment count link
	commentsURL string // empty renders no comment area link
	noResults   bool
}

func listingPage(links []string, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="siteTable">`)
	for _, l := range links {
		fmt.Fprintf(&b, `<div class="thing link"><div class="entry unvoted">`+
			`<p class="title"><a class="title may-blank " href="%s">listed</a></p>`+
			`<ul class="flat-list buttons"><li class="first">`+
			`<a class="bylink comments may-blank" href="%s">7 comments</a></li>`+
			`<li class="share"><a href="#">share</a></li></ul></div></div>`, l, l)
	}
	b.WriteString(`</div>`)
	if next != "" {
		fmt.Fprintf(&b, `<div class="nav-buttons"><span class="next-button"><a href="%s" rel="nofollow next">next</a></span></div>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func postPage(p fixturePost) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="siteTable"><div class="thing link">`)
	fmt.Fprintf(&b, `<div class="midcol"><div class="score unvoted">%s</div></div>`, p.karma)
	b.WriteString(`<div class="entry unvoted">`)
	fmt.Fprintf(&b, `<p class="title"><a class="title may-blank " href="/x">%s</a></p>`, p.title)
	fmt.Fprintf(&b, `<p class="tagline">submitted <time title="%s">3 hours ago</time> by <a class="author may-blank id-t2_1">%s</a></p>`, p.stamp, p.author)
	b.WriteString(`<ul class="flat-list buttons"><li class="first">`)
	if p.numComments != "" {
		fmt.Fprintf(&b, `<a class="bylink comments may-blank" href="/x">%s</a>`, p.numComments)
	}
	b.WriteString(`</li></ul></div></div></div>`)
	fmt.Fprintf(&b, `<div class="side"><div class="linkinfo"><div class="score">%s</div></div></div>`, p.score)
	b.WriteString(`<div class="commentarea">`)
	if p.commentsURL != "" {
		fmt.Fprintf(&b, `<div class="panestack-title"><a href="%s">all comments</a></div>`, p.commentsURL)
	}
	if p.noResults {
		b.WriteString(`<p id="noresults" class="error">there doesn't seem to be anything here</p>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func commentPage(comments []fixtureComment) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="commentarea"><div class="sitetable nestedlisting">`)
	for _, c := range comments {
		if c.author == "" {
			b.WriteString(`<div class="thing comment deleted" data-type="comment">`)
		} else {
			fmt.Fprintf(&b, `<div class="thing comment" data-type="comment" data-author="%s">`, c.author)
		}
		b.WriteString(`<div class="entry unvoted"><p class="tagline">`)
		fmt.Fprintf(&b, `<a class="author may-blank">%s</a> `, c.author)
		if c.score != "" {
			fmt.Fprintf(&b, `<span class="score unvoted">%s</span> `, c.score)
		}
		if c.stamp != "" {
			fmt.Fprintf(&b, `<time title="%s">2 hours ago</time> `, c.stamp)
		}
		if c.replies != "" {
			fmt.Fprintf(&b, `<a class="numchildren">%s</a>`, c.replies)
		}
		b.WriteString(`</p></div></div>`)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

// site maps a request URI (path plus query) to a page body.
type site map[string]string

// fakeFetcher serves a site without touching the network.
type fakeFetcher struct {
	pages site
	calls atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls.Add(1)
	u, err := url.Parse(req.URL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	body, ok := f.pages[u.RequestURI()]
	if !ok {
		return crawler.FetchResponse{}, fmt.Errorf("status %d", http.StatusNotFound)
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
	}, nil
}

func (s site) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := s[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})
}

// twoPostSite is a listing with two posts, each with one comment scored 5.
func twoPostSite() site {
	return site{
		"/r/test/new/": listingPage([]string{"/r/test/comments/a/", "/r/test/comments/b/"}, ""),
		"/r/test/comments/a/": postPage(fixturePost{
			title: "First post", stamp: "Tue Mar 1 12:00:00 2016 UTC", author: "alice",
			karma: "10", score: "10 points (90% upvoted)", numComments: "1 comment",
			commentsURL: "/r/test/comments/a/?limit=500",
		}),
		"/r/test/comments/b/": postPage(fixturePost{
			title: "Second post", stamp: "Wed Mar 2 08:30:00 2016 UTC", author: "bob",
			karma: "3", score: "3 points (75% upvoted)", numComments: "1 comment",
			commentsURL: "/r/test/comments/b/?limit=500",
		}),
		"/r/test/comments/a/?limit=500": commentPage([]fixtureComment{
			{author: "carol", stamp: "Tue Mar 1 13:00:00 2016 UTC", replies: "(0 children)", score: "5 points"},
		}),
		"/r/test/comments/b/?limit=500": commentPage([]fixtureComment{
			{author: "dave", stamp: "Wed Mar 2 09:00:00 2016 UTC", replies: "(1 child)", score: "5 points"},
		}),
	}
}

// overlapSite has two paginated listings sharing posts, a post reachable
// under two URLs, a post without comments and a comment page with malformed
// and scoreless comments.
func overlapSite() site {
	s := site{}
	post := func(i int) fixturePost {
		return fixturePost{
			title:       fmt.Sprintf("Post %d", i),
			stamp:       fmt.Sprintf("Mon Jan %d 10:00:00 2024 UTC", i+1),
			author:      fmt.Sprintf("user%d", i%3),
			karma:       fmt.Sprintf("%d", i*11),
			score:       fmt.Sprintf("%d points (%d%% upvoted)", i*11, 50+i),
			numComments: "2 comments",
			commentsURL: fmt.Sprintf("/r/test/comments/%d/?limit=500", i),
		}
	}
	var links []string
	for i := range 10 {
		p := post(i)
		if i == 9 {
			p.noResults = true
			p.numComments = ""
		}
		s[fmt.Sprintf("/r/test/comments/%d/", i)] = postPage(p)
		s[fmt.Sprintf("/r/test/comments/%d/?limit=500", i)] = commentPage([]fixtureComment{
			{author: "x", stamp: fmt.Sprintf("Mon Jan %d 11:00:00 2024 UTC", i+1), replies: "(0 children)", score: "2 points"},
			{author: "y", stamp: fmt.Sprintf("Mon Jan %d 12:00:00 2024 UTC", i+1), replies: "(3 children)"},
			{author: "", stamp: "Mon Jan 1 00:00:00 2024 UTC", replies: "(0 children)"},
			{author: "z", replies: "(0 children)"},
		})
		links = append(links, fmt.Sprintf("/r/test/comments/%d/", i))
	}
	// The same post under a tracking query string.
	s["/r/test/comments/4/?ref=top"] = s["/r/test/comments/4/"]

	s["/r/test/new/"] = listingPage(links[:4], "/r/test/new/?after=4")
	s["/r/test/new/?after=4"] = listingPage(links[4:8], "/r/test/new/?after=8")
	s["/r/test/new/?after=8"] = listingPage(links[8:], "")
	s["/r/test/top/"] = listingPage([]string{links[6], "/r/test/comments/4/?ref=top", links[1]}, "/r/test/top/?after=1")
	s["/r/test/top/?after=1"] = listingPage([]string{links[9], links[2], "/r/test/comments/missing/"}, "")
	return s
}
