// Package crawler defines the task, record, and collaborator types shared by
// the subreddit scraper: the queue and handler contracts used by the worker
// pool, the fetcher contract used by the scrape handlers, and the sink
// contracts used once a crawl has drained.
package crawler
