package vault

import (
	"fmt"
	"regexp"
	"strings"
)

var wikilinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
var tagPattern = regexp.MustCompile(`#([a-zA-Z][\w/-]*)`)

// ExtractWikilinks finds every [[target]] reference in body, stripping
// any #header or #^block suffix, and dedupes while preserving
// first-appearance order. Embeds (![[target]]) are also matched since
// the leading "!" sits outside the capture group (spec.md §4.10 step 2,
// invariant 4).
func ExtractWikilinks(body string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(body, -1)

	seen := make(map[string]bool)
	unique := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.SplitN(m[1], "#", 2)[0]
		if name != "" && !seen[name] {
			seen[name] = true
			unique = append(unique, name)
		}
	}
	return unique
}

// ExtractTags finds inline #tags, excluding any "#" immediately
// preceded by "[" (so wikilink targets beginning with # are not
// mistaken for tags). Order is not preserved (matches the Python
// reference's set-based return), only uniqueness.
func ExtractTags(body string) []string {
	tags := make(map[string]bool)
	for _, line := range strings.Split(body, "\n") {
		idx := 0
		for {
			loc := tagPattern.FindStringSubmatchIndex(line[idx:])
			if loc == nil {
				break
			}
			start := idx + loc[0]
			if start > 0 && line[start-1] == '[' {
				idx += loc[1]
				continue
			}
			tags[line[idx+loc[2]:idx+loc[3]]] = true
			idx += loc[1]
		}
	}
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	return out
}

// WikilinkTarget formats a basic wikilink, with an optional alias.
func WikilinkTarget(target, alias string) string {
	if alias != "" {
		return fmt.Sprintf("[[%s|%s]]", target, alias)
	}
	return fmt.Sprintf("[[%s]]", target)
}

// Embed formats a transclusion link.
func Embed(target string) string {
	return fmt.Sprintf("![[%s]]", target)
}
