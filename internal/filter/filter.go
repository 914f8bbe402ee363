// Package filter narrows a file listing with a caller-supplied regular expression.
package filter

import (
	"fmt"
	"regexp"
)

// Apply keeps the files whose path contains a match for pattern.
//
// An empty pattern keeps everything. An invalid pattern also keeps everything
// and returns the compile error so the caller can log it; filtering is never
// fatal to a request.
func Apply(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return files, fmt.Errorf("invalid file filter %q: %w", pattern, err)
	}

	kept := make([]string, 0, len(files))
	for _, f := range files {
		if re.MatchString(f) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}
