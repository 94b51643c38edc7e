package scholar

import (
	"fmt"
	"net/url"
	"strings"
)

const profileHost = "semanticscholar.org"

// ParseAuthorRef turns loosely-typed client input into an AuthorRef.
// Digit-only strings become numeric ids, profile URLs carry the embedded
// author id when one is present (falling back to the name slug otherwise),
// and anything else is treated as a free-text name.
func ParseAuthorRef(input string) (AuthorRef, error) {
	candidate := strings.TrimSpace(input)
	if candidate == "" {
		return AuthorRef{}, fmt.Errorf("author reference is empty")
	}

	if isDigits(candidate) {
		return AuthorRef{Kind: RefNumericID, Value: candidate, Raw: input}, nil
	}

	if strings.Contains(candidate, profileHost+"/author/") {
		ref, ok := parseProfileURL(candidate)
		if ok {
			ref.Raw = input
			return ref, nil
		}
	}

	return AuthorRef{Kind: RefName, Value: candidate, Raw: input}, nil
}

// parseProfileURL extracts the author id or name slug from a profile URL of
// the form https://www.semanticscholar.org/author/{Name}/{ID}.
func parseProfileURL(raw string) (AuthorRef, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return AuthorRef{}, false
	}
	var segments []string
	seen := false
	for _, seg := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if seg == "" {
			continue
		}
		if !seen {
			if seg == "author" {
				seen = true
			}
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return AuthorRef{}, false
	}
	last := segments[len(segments)-1]
	if isDigits(last) {
		return AuthorRef{Kind: RefProfileURL, Value: last}, true
	}
	// No trailing id; fall back to the name slug so the resolver can
	// search for it.
	slug, err := url.PathUnescape(last)
	if err != nil {
		slug = last
	}
	replacer := strings.NewReplacer("-", " ", "_", " ", ".", " ")
	name := strings.TrimSpace(replacer.Replace(slug))
	if name == "" {
		return AuthorRef{}, false
	}
	return AuthorRef{Kind: RefName, Value: name}, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
