package promptreg

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// These patterns mirror original_source/.../prompt_security_manager.py's
// _normalize_prompt_for_hashing regex set exactly, in the same order.
var (
	securityTokenPattern = regexp.MustCompile(`SEC_TOKEN_[A-Za-z0-9]{32}`)
	isoTimestampPattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`)
	uuidPattern          = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	jobCountPhrase       = regexp.MustCompile(`(?i)Analyze these \d+ job postings?`)
	descriptionBlock     = regexp.MustCompile(`(?is)DESCRIPTION:\s*.*?(?:\n\s*(?:TITLE:|DESCRIPTION:|COMPANY:)|\z)`)
	titleBlock           = regexp.MustCompile(`(?is)TITLE:\s*.*?(?:\n\s*(?:DESCRIPTION:|TITLE:|COMPANY:)|\z)`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// Normalize strips everything that varies run-to-run from a prompt so that
// structurally identical templates hash identically. Order matters: tokens
// and timestamps must be collapsed before whitespace collapsing, since their
// replacements are themselves whitespace-free placeholders.
func Normalize(text string) string {
	out := text
	out = securityTokenPattern.ReplaceAllString(out, "SEC_TOKEN_PLACEHOLDER")
	out = isoTimestampPattern.ReplaceAllString(out, "TIMESTAMP_PLACEHOLDER")
	out = uuidPattern.ReplaceAllString(out, "UUID_PLACEHOLDER")
	out = jobCountPhrase.ReplaceAllString(out, "Analyze these N job postings")

	// Collapse per-job DESCRIPTION:/TITLE: blocks to a fixed placeholder.
	// Repeated application handles multiple job blocks in a batch prompt.
	for {
		next := descriptionBlock.ReplaceAllString(out, "DESCRIPTION: PLACEHOLDER\n")
		if next == out {
			break
		}
		out = next
	}
	for {
		next := titleBlock.ReplaceAllString(out, "TITLE: PLACEHOLDER\n")
		if next == out {
			break
		}
		out = next
	}

	out = whitespaceRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Hash returns the hex SHA-256 digest of the normalized UTF-8 bytes of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
