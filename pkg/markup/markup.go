// Package markup converts Jira wiki markup to Markdown and rewrites issue-key
// references. Both operations are pure functions over strings; all mapping
// decisions stay with the caller.
package markup

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^h([1-6])\.\s+`)
	boldRe    = regexp.MustCompile(`(^|[\s(])\*([^*\n]+)\*`)
	italicRe  = regexp.MustCompile(`(^|[\s(])_([^_\n]+)_`)
	monoRe    = regexp.MustCompile(`\{\{([^}\n]+)\}\}`)
	strikeRe  = regexp.MustCompile(`(^|\s)-([^-\n]+)-(\s|$)`)
	linkRe    = regexp.MustCompile(`\[([^|\]\n]+)\|([^\]\n]+)\]`)
	bareLink  = regexp.MustCompile(`\[(https?://[^\]\n]+)\]`)
	imageRe   = regexp.MustCompile(`!([^!\s|]+)(?:\|[^!]*)?!`)
	bulletRe  = regexp.MustCompile(`^(\*+)\s+`)
	numberRe  = regexp.MustCompile(`^(#+)\s+`)
	codeOpen  = regexp.MustCompile(`^\{code(?::([A-Za-z0-9]+))?[^}]*\}`)

	issueKeyRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]*-\d+)\b`)
)

// ToMarkdown converts Jira wiki markup to Markdown. Unknown constructs pass
// through unchanged.
func ToMarkdown(src string) string {
	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))

	inCode := false
	inQuote := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inCode {
			if trimmed == "{code}" || trimmed == "{noformat}" {
				out = append(out, "```")
				inCode = false
			} else {
				out = append(out, line)
			}
			continue
		}

		if m := codeOpen.FindStringSubmatch(trimmed); m != nil {
			out = append(out, "```"+m[1])
			inCode = true
			rest := codeOpen.ReplaceAllString(trimmed, "")
			if rest != "" {
				out = append(out, rest)
			}
			continue
		}
		if trimmed == "{noformat}" {
			out = append(out, "```")
			inCode = true
			continue
		}

		if trimmed == "{quote}" {
			inQuote = !inQuote
			continue
		}

		converted := convertLine(line)
		if inQuote {
			converted = "> " + converted
		}
		out = append(out, converted)
	}

	return strings.Join(out, "\n")
}

func convertLine(line string) string {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		level := int(m[1][0] - '0')
		return strings.Repeat("#", level) + " " + headingRe.ReplaceAllString(line, "")
	}
	if strings.HasPrefix(line, "bq. ") {
		return "> " + convertInline(strings.TrimPrefix(line, "bq. "))
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		depth := len(m[1])
		return strings.Repeat("  ", depth-1) + "- " + convertInline(bulletRe.ReplaceAllString(line, ""))
	}
	if m := numberRe.FindStringSubmatch(line); m != nil {
		depth := len(m[1])
		return strings.Repeat("   ", depth-1) + "1. " + convertInline(numberRe.ReplaceAllString(line, ""))
	}
	return convertInline(line)
}

func convertInline(s string) string {
	s = monoRe.ReplaceAllString(s, "`$1`")
	s = boldRe.ReplaceAllString(s, "$1**$2**")
	s = italicRe.ReplaceAllString(s, "$1*$2*")
	s = strikeRe.ReplaceAllString(s, "$1~~$2~~$3")
	s = linkRe.ReplaceAllString(s, "[$1]($2)")
	s = bareLink.ReplaceAllString(s, "$1")
	s = imageRe.ReplaceAllString(s, "![]($1)")
	return s
}

// Resolver resolves a Jira issue key to a work-package id.
type Resolver func(key string) (int, bool)

// RewriteIssueKeys replaces every resolvable Jira key reference in text with
// the work-package form (WP#<id>). Keys with no mapping are left untouched so
// nothing is silently dropped.
func RewriteIssueKeys(text string, resolve Resolver) string {
	return issueKeyRe.ReplaceAllStringFunc(text, func(key string) string {
		if id, ok := resolve(key); ok {
			return fmt.Sprintf("WP#%d", id)
		}
		return key
	})
}
