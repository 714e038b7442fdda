// Package patch computes aggregate diffstats for raw unified-diff text, as
// produced by `hg export` or hgweb's raw-rev view.
package patch

import (
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Stat holds the line/file accounting for one patch. The JSON field names
// match the telemetry ping schema.
type Stat struct {
	FilesChanged int `json:"changedFiles"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

// DiffStat scans raw patch text and counts changed files, added lines and
// removed lines.
//
// Each file header counts as one changed file whether or not it has content
// hunks, so binary changes and pure renames count too. Inside hunk bodies
// only the first character of each line matters: lines whose body text merely
// starts with '+' or '-' still carry the diff marker as their leading
// character and are counted exactly once.
//
// Diffstat is best-effort enrichment. Malformed or empty input yields the
// zero Stat, never an error.
func DiffStat(raw string) Stat {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(stripPreamble(raw)))
	if err != nil {
		return Stat{}
	}

	var st Stat
	for _, fd := range fileDiffs {
		st.FilesChanged++
		for _, h := range fd.Hunks {
			for _, line := range strings.Split(string(h.Body), "\n") {
				if line == "" {
					continue
				}
				switch line[0] {
				case '+':
					st.Additions++
				case '-':
					st.Deletions++
				}
			}
		}
	}
	return st
}

// stripPreamble drops everything ahead of the first file header, such as the
// "# HG changeset patch" block emitted by hg export. Returns the empty string
// when the text contains no file header at all.
func stripPreamble(raw string) string {
	offset := 0
	for offset < len(raw) {
		rest := raw[offset:]
		if strings.HasPrefix(rest, "diff --git ") || strings.HasPrefix(rest, "--- ") {
			return rest
		}
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		offset += nl + 1
	}
	return ""
}
