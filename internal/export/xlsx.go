// Package export writes crawl results as spreadsheets.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet every export writes to.
const SheetName = "Sheet1"

// PostsFilename returns the posts workbook name for a subreddit.
func PostsFilename(subreddit string) string {
	return subreddit + "_posts.xlsx"
}

// CommentsFilename returns the comments workbook name for a subreddit.
func CommentsFilename(subreddit string) string {
	return subreddit + "_comments.xlsx"
}

// Exporter writes xlsx workbooks into a directory.
type Exporter struct {
	dir string
}

// New returns an Exporter rooted at dir. An empty dir means the working
// directory.
func New(dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{dir: dir}
}

// Export writes headers followed by rows to dir/filename and returns the
// path. An existing file is replaced.
func (e *Exporter) Export(ctx context.Context, filename string, headers []string, rows [][]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("export %s: %w", filename, err)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(e.dir, filename)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return "", fmt.Errorf("stream writer: %w", err)
	}
	if err := writeRow(sw, 1, headers); err != nil {
		return "", err
	}
	for i, row := range rows {
		if err := writeRow(sw, i+2, row); err != nil {
			return "", err
		}
	}
	if err := sw.Flush(); err != nil {
		return "", fmt.Errorf("flush %s: %w", filename, err)
	}
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func writeRow(sw *excelize.StreamWriter, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("row %d: %w", n, err)
	}
	// Values are kept as text so counts like "007" or "87%" survive as scraped.
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := sw.SetRow(cell, row); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

// ReadRows returns every row of the exported sheet, header included.
func ReadRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
