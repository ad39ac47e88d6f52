// Package query loads the ordered list of search queries for a run.
package query

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrConfiguration reports an input file that cannot be read. It is fatal
// for a run.
var ErrConfiguration = errors.New("configuration error")

const maxLineBytes = 1 << 20

// Load reads queries from the file at path. See Parse.
func Load(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open input %s: %w", ErrConfiguration, path, err)
	}
	defer f.Close()

	queries, err := Parse(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: read input %s: %w", ErrConfiguration, path, err)
	}
	return queries, nil
}

// Parse reads one query per line. The first line is a header and is always
// dropped, whatever it contains. Remaining lines are trimmed and blank ones
// skipped. A positive limit keeps only the first limit queries.
func Parse(r io.Reader, limit int) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var queries []string
	for line := 0; sc.Scan(); line++ {
		if line == 0 {
			continue
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if limit > 0 && len(queries) == limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return queries, nil
}
