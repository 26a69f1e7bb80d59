// The main package for the subreddit-scraper executable.
package main

import (
	"github.com/SkippTopp/reddit-scripts/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
