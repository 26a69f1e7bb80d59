// Package scrape is the crawl state machine. Listing pages fan out to post
// pages, post pages fan out to their comment page, and every record lands in
// a deduplicating store on the shared State.
//
// Task kinds only move forward (listing to listing or post, post to
// comments, comments to nothing), so a crawl terminates once listings stop
// advertising a next page.
package scrape
