package relations

import (
	"regexp"
	"strings"
)

// IdentifierKind classifies an extracted identifier.
type IdentifierKind string

const (
	IdentifierPaper IdentifierKind = "paper-id"
	IdentifierDOI   IdentifierKind = "doi"
	IdentifierRepo  IdentifierKind = "repo-path"
)

// Identifier is one source-native id found in artifact text.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

var (
	// paperIDRe matches YYMM.NNNNN style preprint ids, optionally
	// prefixed ("arXiv:2403.12345") or embedded in an abs/pdf URL.
	paperIDRe = regexp.MustCompile(`(?i)(?:arxiv[:\s/]*|abs/|pdf/)?\b(\d{4}\.\d{4,5})(?:v\d+)?\b`)

	// doiRe matches DOIs. Trailing sentence punctuation is trimmed
	// afterwards since the DOI grammar permits it.
	doiRe = regexp.MustCompile(`\b(10\.\d{4,9}/[^\s"'<>\)\]]+)`)

	// repoRe matches owner/repo paths on known code hosts.
	repoRe = regexp.MustCompile(`(?i)\b(github\.com|gitlab\.com|huggingface\.co|codeberg\.org)/([A-Za-z0-9_.\-]+)/([A-Za-z0-9_.\-]+)`)
)

// ExtractIdentifiers scans text for paper ids, DOIs, and repository
// paths. Results are deduplicated, order of first appearance.
func ExtractIdentifiers(text string) []Identifier {
	var out []Identifier
	seen := make(map[string]bool)

	add := func(kind IdentifierKind, value string) {
		key := string(kind) + "\x00" + value
		if value == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Identifier{Kind: kind, Value: value})
	}

	for _, m := range paperIDRe.FindAllStringSubmatch(text, -1) {
		add(IdentifierPaper, m[1])
	}
	for _, m := range doiRe.FindAllStringSubmatch(text, -1) {
		add(IdentifierDOI, strings.TrimRight(m[1], ".,;:"))
	}
	for _, m := range repoRe.FindAllStringSubmatch(text, -1) {
		host := strings.ToLower(m[1])
		repo := strings.TrimSuffix(m[3], ".git")
		add(IdentifierRepo, host+"/"+m[2]+"/"+repo)
	}
	return out
}
