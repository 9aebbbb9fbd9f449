// Package policy holds the process-wide SQL safety rules: the blocked-command
// set consulted before open-ended statements execute, and the statement-kind
// prefix check for single-verb operations.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrBlocked is matched by every *BlockedError.
var ErrBlocked = errors.New("blocked command")

// BlockedError reports which configured keyword a statement contained.
type BlockedError struct {
	Keyword string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("statement contains blocked command: %s", e.Keyword)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Policy is immutable once built and safe for concurrent use.
type Policy struct {
	keywords []string
	patterns []*regexp.Regexp
}

// ParseBlockedCommands splits a comma-separated list into trimmed, uppercased,
// de-duplicated keywords. Empty entries are dropped.
func ParseBlockedCommands(list string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(list, ",") {
		kw := strings.ToUpper(strings.Join(strings.Fields(part), " "))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// New builds a Policy blocking the given keywords.
func New(keywords []string) *Policy {
	p := &Policy{}
	for _, kw := range ParseBlockedCommands(strings.Join(keywords, ",")) {
		p.keywords = append(p.keywords, kw)
		p.patterns = append(p.patterns, keywordPattern(kw))
	}
	return p
}

// keywordPattern matches kw as a standalone token; multi-word keywords accept
// any whitespace between words.
func keywordPattern(kw string) *regexp.Regexp {
	words := strings.Fields(kw)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|[^a-zA-Z0-9_])` + strings.Join(words, `\s+`) + `(?:[^a-zA-Z0-9_]|$)`)
}

// Blocked returns the configured keywords in sorted order.
func (p *Policy) Blocked() []string {
	return append([]string(nil), p.keywords...)
}

// Check returns a *BlockedError if any blocked keyword appears in the raw
// statement text as a standalone token. String literals and comments are
// matched too.
func (p *Policy) Check(sql string) error {
	if p == nil || len(p.patterns) == 0 {
		return nil
	}
	for i, re := range p.patterns {
		if re.MatchString(sql) {
			return &BlockedError{Keyword: p.keywords[i]}
		}
	}
	return nil
}

// HasStatementPrefix reports whether the trimmed statement starts with verb,
// ignoring case.
func HasStatementPrefix(sql, verb string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), strings.ToLower(verb))
}
