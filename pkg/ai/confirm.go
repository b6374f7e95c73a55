package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConfirmPrompt asks the model to decide whether two profiles describe
// the same real-world identity. The weighted similarity score computed
// by the resolver is included as context, not as an instruction.
const ConfirmPrompt = `You are resolving researcher and organization identities across platforms.

Decide whether the following two profiles refer to the same real-world person or organization.

Profile A:
%s
Profile B:
%s

A weighted field-similarity score of %.2f (0..1) was computed from names, affiliations, homepages and linked accounts.

Answer strictly as JSON with is_same, confidence and reasoning.`

// FormatClient is implemented by chat providers that can return
// schema-constrained JSON.
type FormatClient interface {
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}

// Confirmer implements ConfirmClient on top of a structured-output chat
// provider. Calls run under an explicit timeout; any failure is returned
// to the caller, which treats it as "unconfirmed".
type Confirmer struct {
	client  FormatClient
	timeout time.Duration
}

// NewConfirmer wraps a chat provider as a confirmation capability.
// A non-positive timeout defaults to 60s.
func NewConfirmer(client FormatClient, timeout time.Duration) *Confirmer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Confirmer{client: client, timeout: timeout}
}

// ConfirmMatch asks the model for a same-identity verdict on two
// profiles.
func (c *Confirmer) ConfirmMatch(ctx context.Context, a, b EntityProfile, similarity float64) (MatchDecision, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(ConfirmPrompt, renderProfile(a), renderProfile(b), similarity)

	var decision MatchDecision
	err := c.client.GenerateCompletionWithFormat(
		rCtx, "confirm_entity_match", "Decide whether two entity profiles are the same identity.", prompt, &decision,
	)
	if err != nil {
		return MatchDecision{}, err
	}
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	return decision, nil
}

func renderProfile(p EntityProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Name: %s\n  Type: %s\n", p.Name, p.Type)
	if p.Description != "" {
		fmt.Fprintf(&b, "  Description: %s\n", p.Description)
	}
	if p.Homepage != "" {
		fmt.Fprintf(&b, "  Homepage: %s\n", p.Homepage)
	}
	if len(p.Accounts) > 0 {
		fmt.Fprintf(&b, "  Accounts: %s\n", strings.Join(p.Accounts, ", "))
	}
	return b.String()
}
