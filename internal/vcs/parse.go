package vcs

import (
	"strconv"
	"strings"
	"time"

	"github.com/sergeknystautas/githistory/internal/history"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// logFormat is the --format used for log and show. Fields are separated by
// the ASCII unit separator and records end with the record separator, so
// subjects and bodies may contain anything except those two bytes.
const logFormat = "--format=%H%x1f%h%x1f%an%x1f%ae%x1f%aI%x1f%cn%x1f%ce%x1f%cI%x1f%P%x1f%D%x1f%s%x1f%b%x1e"

const logFields = 12

// ParseLogOutput parses log output produced with logFormat. Malformed
// records and repeated hashes are skipped.
func ParseLogOutput(output string) []history.LogEntry {
	entries := []history.LogEntry{}
	seen := make(map[string]bool)
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSep, logFields)
		if len(parts) < logFields {
			continue
		}
		hash := parts[0]
		if seen[hash] {
			continue
		}
		seen[hash] = true

		entries = append(entries, history.LogEntry{
			Hash:      hash,
			ShortHash: parts[1],
			Author:    history.Signature{Name: parts[2], Email: parts[3], When: parseTime(parts[4])},
			Committer: history.Signature{Name: parts[5], Email: parts[6], When: parseTime(parts[7])},
			Parents:   nonNil(strings.Fields(parts[8])),
			Refs:      parseDecorations(parts[9]),
			Subject:   strings.TrimSpace(parts[10]),
			Body:      strings.TrimSpace(parts[11]),
		})
	}
	return entries
}

// parseDecorations splits %D output ("HEAD -> main, origin/main, tag: v1").
func parseDecorations(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var refs []string
	for _, part := range strings.Split(s, ", ") {
		if head, branch, ok := strings.Cut(part, " -> "); ok {
			refs = append(refs, head, branch)
			continue
		}
		refs = append(refs, part)
	}
	sortRefs(refs)
	return refs
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseBranchOutput parses for-each-ref output in the form
// "%(HEAD) %(objectname) %(refname)". Symbolic remote HEADs are skipped.
func ParseBranchOutput(output string) []history.Branch {
	var local, remote []history.Branch
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		current := strings.HasPrefix(line, "*")
		fields := strings.Fields(strings.TrimPrefix(line, "*"))
		if len(fields) != 2 {
			continue
		}
		hash, ref := fields[0], fields[1]
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			local = append(local, history.Branch{
				Name:    strings.TrimPrefix(ref, "refs/heads/"),
				Hash:    hash,
				Current: current,
			})
		case strings.HasPrefix(ref, "refs/remotes/"):
			if strings.HasSuffix(ref, "/HEAD") {
				continue
			}
			remote = append(remote, history.Branch{
				Name:   strings.TrimPrefix(ref, "refs/remotes/"),
				Hash:   hash,
				Remote: true,
			})
		}
	}
	sortBranches(local)
	sortBranches(remote)
	return append(local, remote...)
}

// ParseNameStatus parses NUL-separated diff-tree --name-status output.
func ParseNameStatus(output string) []history.CommittedFile {
	tokens := strings.Split(strings.TrimRight(output, "\x00"), "\x00")
	var files []history.CommittedFile
	for i := 0; i < len(tokens); i++ {
		status := strings.TrimSpace(tokens[i])
		if status == "" {
			continue
		}
		switch status[0] {
		case 'R', 'C':
			if i+2 >= len(tokens) {
				return files
			}
			f := history.CommittedFile{OriginalPath: tokens[i+1], Path: tokens[i+2], Status: history.FileRenamed}
			if status[0] == 'C' {
				f = history.CommittedFile{Path: tokens[i+2], Status: history.FileAdded}
			}
			files = append(files, f)
			i += 2
		default:
			if i+1 >= len(tokens) {
				return files
			}
			files = append(files, history.CommittedFile{Path: tokens[i+1], Status: fileStatus(status[0])})
			i++
		}
	}
	return files
}

func fileStatus(c byte) history.FileStatus {
	switch c {
	case 'A':
		return history.FileAdded
	case 'D':
		return history.FileDeleted
	default:
		return history.FileModified
	}
}

// numStat is the line count of one file; binary files count as zero.
type numStat struct {
	additions, deletions int
}

// ParseNumStat parses NUL-separated diff-tree --numstat output, keyed by
// the new path of each file.
func ParseNumStat(output string) map[string]numStat {
	tokens := strings.Split(strings.TrimRight(output, "\x00"), "\x00")
	stats := make(map[string]numStat)
	for i := 0; i < len(tokens); i++ {
		parts := strings.SplitN(tokens[i], "\t", 3)
		if len(parts) != 3 {
			continue
		}
		st := numStat{additions: atoi(parts[0]), deletions: atoi(parts[1])}
		path := parts[2]
		if path == "" {
			// Renames carry the old and new paths as the next two tokens.
			if i+2 >= len(tokens) {
				break
			}
			path = tokens[i+2]
			i += 2
		}
		stats[path] = st
	}
	return stats
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
