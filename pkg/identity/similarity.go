package identity

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/lodestar-hq/lodestar/internal/util"
	"github.com/lodestar-hq/lodestar/pkg/common"
	"github.com/lodestar-hq/lodestar/pkg/embed"
)

// affiliationRe captures "at <Org>" / "@ <Org>" phrases from free-text
// descriptions.
var affiliationRe = regexp.MustCompile(`(?:\bat|@)\s+([A-Z][A-Za-z0-9&.\- ]{1,60})`)

// genericOrgWords are dropped when normalizing affiliations so that
// "Stanford AI Lab" and "Stanford University" compare on the
// distinctive part.
var genericOrgWords = map[string]bool{
	"university": true, "institute": true, "institution": true,
	"laboratory": true, "lab": true, "labs": true,
	"department": true, "dept": true, "school": true,
	"college": true, "center": true, "centre": true,
	"research": true, "group": true, "team": true,
	"of": true, "the": true, "for": true, "and": true,
	"ai": true, "ml": true, "cs": true,
}

// Similarity computes the weighted multi-field similarity of two
// entities in [0,1]. Symmetric in its arguments. Weight mass of fields
// absent on both sides is redistributed to the present non-name fields:
// a name match alone must never clear the merge thresholds, which is
// the same reasoning behind the conservative-linking override.
func (e *Engine) Similarity(ctx context.Context, a, b common.Entity, w Weights) float64 {
	w = w.Normalized()

	affA := extractAffiliation(a)
	affB := extractAffiliation(b)

	affAvailable := affA != "" || affB != ""
	domainAvailable := a.Homepage != "" && b.Homepage != ""
	accountsAvailable := len(a.Accounts) > 0 && len(b.Accounts) > 0

	var missing float64
	available := 0.0
	if affAvailable {
		available += w.Affiliation
	} else {
		missing += w.Affiliation
	}
	if domainAvailable {
		available += w.Domain
	} else {
		missing += w.Domain
	}
	if accountsAvailable {
		available += w.Accounts
	} else {
		missing += w.Accounts
	}

	wAff, wDomain, wAccounts := w.Affiliation, w.Domain, w.Accounts
	if missing > 0 && available > 0 {
		scale := (available + missing) / available
		if affAvailable {
			wAff *= scale
		}
		if domainAvailable {
			wDomain *= scale
		}
		if accountsAvailable {
			wAccounts *= scale
		}
	}

	s := w.Name * e.simName(ctx, a.Name, b.Name)
	if affAvailable {
		s += wAff * e.simAffiliation(ctx, affA, affB)
	}
	if domainAvailable {
		s += wDomain * simDomain(a.Homepage, b.Homepage)
	}
	if accountsAvailable {
		s += wAccounts * simAccounts(a.Accounts, b.Accounts)
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// simName takes the max embedding cosine over name-format variants of
// both sides, with an exact shortcut for identical variants.
func (e *Engine) simName(ctx context.Context, a, b string) float64 {
	variantsA := nameVariants(a)
	variantsB := nameVariants(b)
	if len(variantsA) == 0 || len(variantsB) == 0 {
		return 0
	}

	for _, va := range variantsA {
		for _, vb := range variantsB {
			if va == vb {
				return 1.0
			}
		}
	}

	best := 0.0
	for _, va := range variantsA {
		ea := e.embedder.Embed(ctx, va, "entity-name")
		for _, vb := range variantsB {
			eb := e.embedder.Embed(ctx, vb, "entity-name")
			if cos := embed.Cosine(ea, eb); cos > best {
				best = cos
			}
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// nameVariants generates normalized formats of a personal name:
// "first last", "last, first", and initialized forms. Handles inputs
// already in "Last, First" order.
func nameVariants(name string) []string {
	name = strings.ToLower(util.NormalizeWhitespace(name))
	if name == "" {
		return nil
	}

	first, last := "", ""
	if idx := strings.Index(name, ","); idx >= 0 {
		last = strings.TrimSpace(name[:idx])
		first = strings.TrimSpace(name[idx+1:])
	} else {
		fields := strings.Fields(name)
		if len(fields) == 1 {
			return []string{stripPeriods(name)}
		}
		first = strings.Join(fields[:len(fields)-1], " ")
		last = fields[len(fields)-1]
	}
	if first == "" || last == "" {
		return []string{stripPeriods(name)}
	}

	initial := string([]rune(first)[0])
	variants := []string{
		first + " " + last,
		last + ", " + first,
		initial + " " + last,
		last + ", " + initial,
	}

	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = stripPeriods(v)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func stripPeriods(s string) string {
	return util.NormalizeWhitespace(strings.ReplaceAll(s, ".", ""))
}

// extractAffiliation pulls an affiliation string from the entity
// description or from linked account profiles.
func extractAffiliation(entity common.Entity) string {
	if m := affiliationRe.FindStringSubmatch(entity.Description); m != nil {
		return normalizeAffiliation(m[1])
	}
	for _, account := range entity.Accounts {
		for _, key := range []string{"affiliation", "company", "organization"} {
			if v, ok := account.Profile[key].(string); ok && v != "" {
				return normalizeAffiliation(v)
			}
		}
	}
	return ""
}

// normalizeAffiliation lowercases and drops generic org vocabulary so
// different renderings of the same institution compare equal.
func normalizeAffiliation(aff string) string {
	tokens := util.Tokenize(aff)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if genericOrgWords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		// Entirely generic ("The University") still beats empty.
		return strings.Join(tokens, " ")
	}
	return strings.Join(kept, " ")
}

// simAffiliation compares two normalized affiliations. One-sided
// affiliations earn 0.2 partial credit.
func (e *Engine) simAffiliation(ctx context.Context, affA, affB string) float64 {
	if affA == "" && affB == "" {
		return 0
	}
	if affA == "" || affB == "" {
		return 0.2
	}
	if affA == affB {
		return 1.0
	}
	if tokenOverlap(affA, affB) >= 0.5 {
		return 0.9
	}
	cos := embed.Cosine(
		e.embedder.Embed(ctx, affA, "affiliation"),
		e.embedder.Embed(ctx, affB, "affiliation"),
	)
	if cos < 0 {
		return 0
	}
	return cos
}

// tokenOverlap is the overlap coefficient of the two token sets.
func tokenOverlap(a, b string) float64 {
	setA := util.UniqueTokens(a)
	setB := util.UniqueTokens(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inA := make(map[string]bool, len(setA))
	for _, tok := range setA {
		inA[tok] = true
	}
	shared := 0
	for _, tok := range setB {
		if inA[tok] {
			shared++
		}
	}
	minLen := len(setA)
	if len(setB) < minLen {
		minLen = len(setB)
	}
	return float64(shared) / float64(minLen)
}

// simDomain compares homepage URLs: exact URL 1.0, same host 0.9,
// overlapping domain 0.8, else 0.
func simDomain(urlA, urlB string) float64 {
	normA := normalizeURL(urlA)
	normB := normalizeURL(urlB)
	if normA == "" || normB == "" {
		return 0
	}
	if normA == normB {
		return 1.0
	}
	hostA := urlHost(urlA)
	hostB := urlHost(urlB)
	if hostA == "" || hostB == "" {
		return 0
	}
	if hostA == hostB {
		return 0.9
	}
	if registeredDomain(hostA) == registeredDomain(hostB) {
		return 0.8
	}
	return 0
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	raw = strings.TrimSuffix(raw, "/")
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	return strings.TrimPrefix(raw, "www.")
}

func urlHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(strings.TrimSpace(strings.ToLower(raw)))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// registeredDomain keeps the last two labels of a host.
func registeredDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// simAccounts checks for platform+handle overlap: exact pair 1.0,
// platform-only 0.1, else 0.
func simAccounts(a, b []common.Account) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	pairs := make(map[string]bool, len(a))
	platforms := make(map[string]bool, len(a))
	for _, account := range a {
		platform := strings.ToLower(account.Platform)
		pairs[platform+"\x00"+strings.ToLower(account.Handle)] = true
		platforms[platform] = true
	}
	platformOverlap := false
	for _, account := range b {
		platform := strings.ToLower(account.Platform)
		if pairs[platform+"\x00"+strings.ToLower(account.Handle)] {
			return 1.0
		}
		if platforms[platform] {
			platformOverlap = true
		}
	}
	if platformOverlap {
		return 0.1
	}
	return 0
}
