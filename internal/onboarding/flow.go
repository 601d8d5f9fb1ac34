package onboarding

import (
	"strings"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
)

// Only these replies pause onboarding. Anything else, including text we do
// not understand, moves it forward.
var negativeReplies = map[string]bool{
	"no":      true,
	"later":   true,
	"not now": true,
	"nope":    true,
	"nah":     true,
	"not yet": true,
}

// IntentDecision is the outcome of reading a reply during onboarding.
type IntentDecision int

const (
	IntentAdvance IntentDecision = iota
	IntentPause
)

// DetectOnboardingIntent pauses only on an explicit negative.
func DetectOnboardingIntent(text string) IntentDecision {
	t := strings.ToLower(strings.Join(strings.Fields(text), " "))
	t = strings.TrimRight(t, ".!")
	if negativeReplies[t] {
		return IntentPause
	}
	return IntentAdvance
}

// Plan is what HandleInbound wants done for one reply.
type Plan struct {
	NextToken string
	Messages  []string
	// StartBurst means the explanation was accepted; the burst is scheduled,
	// not sent inline.
	StartBurst bool
	// Handoff means onboarding is over and the interview begins at NextToken.
	Handoff bool
}

// HandleInbound is the onboarding transition function. Tokens outside the
// conversational steps, including the burst tokens, are left unchanged.
func HandleInbound(token, text string) Plan {
	pause := DetectOnboardingIntent(text) == IntentPause

	switch token {
	case conversation.TokenOnboardingOpening:
		if pause {
			return Plan{NextToken: token, Messages: []string{msgLater}}
		}
		return Plan{NextToken: conversation.TokenOnboardingExplanation, Messages: []string{msgExplanation}}
	case conversation.TokenOnboardingExplanation:
		if pause {
			return Plan{NextToken: conversation.TokenOnboardingOpening, Messages: []string{msgLater}}
		}
		return Plan{NextToken: conversation.TokenOnboardingBurst, StartBurst: true}
	case conversation.TokenOnboardingInterviewStart:
		if pause {
			return Plan{NextToken: conversation.TokenOnboardingOpening, Messages: []string{msgLater}}
		}
		return Plan{NextToken: conversation.TokenInterviewEntry, Messages: []string{msgInterviewOpen}, Handoff: true}
	default:
		return Plan{NextToken: token}
	}
}
