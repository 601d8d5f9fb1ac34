// Package intent classifies inbound message text with deterministic keyword and
// pattern rules.
package intent

import (
	"context"
	"regexp"
	"strings"
)

// Intent is the classifier's output label.
type Intent string

const (
	ContactInviteResponse      Intent = "CONTACT_INVITE_RESPONSE"
	SystemCommand              Intent = "SYSTEM_COMMAND"
	PlanSocialChoice           Intent = "PLAN_SOCIAL_CHOICE"
	InterviewAnswer            Intent = "INTERVIEW_ANSWER"
	InterviewAnswerAbbreviated Intent = "INTERVIEW_ANSWER_ABBREVIATED"
	PostActivityCheckin        Intent = "POST_ACTIVITY_CHECKIN"
	NamedPlanRequest           Intent = "NAMED_PLAN_REQUEST"
	OpenIntent                 Intent = "OPEN_INTENT"
)

// Classifier modes that fully determine the intent.
const (
	ModeAwaitingSocialChoice    = "awaiting_social_choice"
	ModeInterviewing            = "interviewing"
	ModeInterviewingAbbreviated = "interviewing_abbreviated"
	ModePostActivityCheckin     = "post_activity_checkin"
)

const (
	ConfidenceCertain  = 1.0
	ConfidencePattern  = 0.9
	ConfidenceDisambig = 0.7
	ConfidenceFallback = 0.35
)

var modeIntents = map[string]Intent{
	ModeAwaitingSocialChoice:    PlanSocialChoice,
	ModeInterviewing:            InterviewAnswer,
	ModeInterviewingAbbreviated: InterviewAnswerAbbreviated,
	ModePostActivityCheckin:     PostActivityCheckin,
}

var systemKeywords = map[string]bool{
	"STOP":        true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
	"HELP":        true,
	"INFO":        true,
}

var (
	namedPlanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy\s+(friends?|buddy|buddies|roommates?|coworkers?|partner|sister|brother|crew|group)\b`),
		regexp.MustCompile(`\b[Ww]ith\s+[A-Z][a-z]+`),
		regexp.MustCompile(`\b(?:[Ii]nvite|[Bb]ring)\s+[A-Z][a-z]+`),
	}
	openIntentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(something|anything)\b`),
		regexp.MustCompile(`(?i)\b(this weekend|tonight|tomorrow)\b`),
		regexp.MustCompile(`(?i)\b(get out|hang out|meet people|plans?)\b`),
	}
)

// Input is everything the classifier looks at.
type Input struct {
	Text                    string
	Mode                    string
	IsUnknownSender         bool
	HasPendingContactInvite bool
}

// Result is an intent with a confidence in [0,1].
type Result struct {
	Intent     Intent
	Confidence float64
}

// Disambiguator resolves free text the patterns could not. ok=false declines.
type Disambiguator interface {
	Disambiguate(ctx context.Context, text string) (Intent, bool, error)
}

// Classifier applies the rules in priority order; the first match wins.
type Classifier struct {
	disambiguator Disambiguator
}

// New returns a classifier. d may be nil.
func New(d Disambiguator) *Classifier {
	return &Classifier{disambiguator: d}
}

// Classify never fails: a disambiguator error counts as a decline.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	if in.IsUnknownSender && in.HasPendingContactInvite {
		return result(ContactInviteResponse, ConfidenceCertain)
	}
	if IsSystemKeyword(in.Text) {
		return result(SystemCommand, ConfidenceCertain)
	}
	if it, ok := modeIntents[in.Mode]; ok {
		return result(it, ConfidenceCertain)
	}

	if matchesAny(namedPlanPatterns, in.Text) {
		return result(NamedPlanRequest, ConfidencePattern)
	}
	if matchesAny(openIntentPatterns, in.Text) {
		return result(OpenIntent, ConfidencePattern)
	}

	if c != nil && c.disambiguator != nil {
		it, ok, err := c.disambiguator.Disambiguate(ctx, in.Text)
		if err == nil && ok && (it == OpenIntent || it == NamedPlanRequest) {
			return result(it, ConfidenceDisambig)
		}
	}
	return result(OpenIntent, ConfidenceFallback)
}

// NormalizeKeyword collapses whitespace and upper-cases text.
func NormalizeKeyword(text string) string {
	return strings.ToUpper(strings.Join(strings.Fields(text), " "))
}

// IsSystemKeyword reports whether text is exactly one of the global keywords.
func IsSystemKeyword(text string) bool {
	return systemKeywords[NormalizeKeyword(text)]
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func result(it Intent, confidence float64) Result {
	return Result{Intent: it, Confidence: clamp(confidence)}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
