package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the forum host the seeds are built from.
const DefaultBaseURL = "https://www.reddit.com"

// listingSuffixes are appended to /r/<subreddit> to seed the crawl: newest
// posts plus three windows each of top and controversial.
var listingSuffixes = []string{
	"/new/",
	"/top/",
	"/top/?sort=top&t=year",
	"/top/?sort=top&t=month",
	"/top/?sort=top&t=week",
	"/controversial/",
	"/controversial/?sort=controversial&t=year",
	"/controversial/?sort=controversial&t=month",
	"/controversial/?sort=controversial&t=week",
}

// SeedURLs returns the listing pages a crawl of subreddit starts from.
func SeedURLs(baseURL, subreddit string) ([]string, error) {
	subreddit = strings.Trim(strings.TrimSpace(subreddit), "/")
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	root := base.String() + "/r/" + subreddit
	seeds := make([]string, 0, len(listingSuffixes))
	for _, suffix := range listingSuffixes {
		seeds = append(seeds, root+suffix)
	}
	return seeds, nil
}

// ResolveURL makes ref absolute against the page it was found on.
func ResolveURL(pageURL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty link")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	resolved := base.ResolveReference(target)
	resolved.Fragment = ""
	return resolved.String(), nil
}
