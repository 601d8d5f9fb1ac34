package conversation

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode is the coarse conversational state of a session.
type Mode string

const (
	ModeIdle                Mode = "idle"
	ModeInterviewing        Mode = "interviewing"
	ModeLinkupForming       Mode = "linkup_forming"
	ModeAwaitingInviteReply Mode = "awaiting_invite_reply"
	ModePostEvent           Mode = "post_event"
	ModeSafetyHold          Mode = "safety_hold"
)

// Idle tokens.
const (
	TokenIdle                     = "idle"
	TokenIdleAwaitingSocialChoice = "idle:awaiting_social_choice"
)

// Onboarding tokens, in order.
const (
	TokenOnboardingOpening        = "onboarding:awaiting_opening_response"
	TokenOnboardingExplanation    = "onboarding:awaiting_explanation_response"
	TokenOnboardingBurst          = "onboarding:awaiting_burst"
	TokenOnboardingBurstMessage2  = "onboarding:awaiting_burst_message_2"
	TokenOnboardingBurstMessage3  = "onboarding:awaiting_burst_message_3"
	TokenOnboardingBurstMessage4  = "onboarding:awaiting_burst_message_4"
	TokenOnboardingInterviewStart = "onboarding:awaiting_interview_start"
)

// Interview tokens. TokenInterviewEntry is where onboarding hands off.
const (
	TokenInterviewEntry        = "interview:awaiting_next_input"
	TokenInterviewInterests    = "interview:awaiting_interests"
	TokenInterviewAvailability = "interview:awaiting_availability"
)

// Post-event tokens.
const (
	TokenPostEventAttendance = "post_event:attendance"
	TokenPostEventFeedback   = "post_event:feedback"
	TokenPostEventComplete   = "post_event:complete"
)

const (
	onboardingPrefix = "onboarding:"
	interviewPrefix  = "interview:"
)

var onboardingTokens = map[string]bool{
	TokenOnboardingOpening:        true,
	TokenOnboardingExplanation:    true,
	TokenOnboardingBurst:          true,
	TokenOnboardingBurstMessage2:  true,
	TokenOnboardingBurstMessage3:  true,
	TokenOnboardingBurstMessage4:  true,
	TokenOnboardingInterviewStart: true,
}

var interviewTokens = map[string]bool{
	TokenInterviewEntry:        true,
	TokenInterviewInterests:    true,
	TokenInterviewAvailability: true,
}

var postEventTokens = map[string]bool{
	TokenPostEventAttendance: true,
	TokenPostEventFeedback:   true,
	TokenPostEventComplete:   true,
}

// State is a session's mode and token.
type State struct {
	Mode  Mode
	Token string
}

func (s State) String() string {
	return string(s.Mode) + "/" + s.Token
}

type modeSpec struct {
	validToken   func(token string) bool
	defaultRoute func(token string) Route
	// the transition an engine makes when it does not name one
	defaultNext Mode
	legalNext   []Mode
}

func pattern(expr string) func(string) bool {
	return regexp.MustCompile(expr).MatchString
}

func closed(set map[string]bool) func(string) bool {
	return func(token string) bool { return set[token] }
}

func fixed(r Route) func(string) Route {
	return func(string) Route { return r }
}

var modes = map[Mode]modeSpec{
	ModeIdle: {
		validToken:   pattern(`^idle(:awaiting_social_choice)?$`),
		defaultRoute: fixed(RouteDefault),
		defaultNext:  ModeIdle,
		legalNext:    []Mode{ModeIdle, ModeInterviewing, ModeLinkupForming, ModeAwaitingInviteReply, ModeSafetyHold},
	},
	ModeInterviewing: {
		validToken: func(token string) bool {
			return onboardingTokens[token] || interviewTokens[token]
		},
		defaultRoute: func(token string) Route {
			if strings.HasPrefix(token, interviewPrefix) {
				return RouteProfileInterview
			}
			return RouteOnboarding
		},
		defaultNext: ModeInterviewing,
		legalNext:   []Mode{ModeInterviewing, ModeIdle, ModeSafetyHold},
	},
	ModeLinkupForming: {
		validToken:   pattern(`^linkup_forming(:[a-z_]+)?$`),
		defaultRoute: fixed(RouteLinkupForming),
		defaultNext:  ModeLinkupForming,
		legalNext:    []Mode{ModeLinkupForming, ModeIdle, ModePostEvent, ModeSafetyHold},
	},
	ModeAwaitingInviteReply: {
		validToken:   pattern(`^awaiting_invite_reply(:[a-z0-9-]+)?$`),
		defaultRoute: fixed(RouteInviteReply),
		defaultNext:  ModeAwaitingInviteReply,
		legalNext:    []Mode{ModeAwaitingInviteReply, ModeIdle, ModeLinkupForming, ModeSafetyHold},
	},
	ModePostEvent: {
		validToken:   closed(postEventTokens),
		defaultRoute: fixed(RoutePostEvent),
		defaultNext:  ModePostEvent,
		legalNext:    []Mode{ModePostEvent, ModeIdle, ModeSafetyHold},
	},
	ModeSafetyHold: {
		validToken:   pattern(`^safety_hold(:[a-z_]+)?$`),
		defaultRoute: fixed(RouteSafetyHold),
		defaultNext:  ModeSafetyHold,
		legalNext:    []Mode{ModeSafetyHold, ModeIdle},
	},
}

// ValidateState checks that the token belongs to the mode. Unknown modes and
// unrecognised sub-tokens are INVALID_STATE.
func ValidateState(s State) error {
	spec, ok := modes[s.Mode]
	if !ok {
		return newError(ErrorInvalidState, fmt.Sprintf("unknown mode %q", s.Mode), nil)
	}
	if !spec.validToken(s.Token) {
		return newError(ErrorInvalidState, fmt.Sprintf("token %q is not valid for mode %s", s.Token, s.Mode), nil)
	}
	return nil
}

// ResolveRouteForState returns the default route for a valid state.
func ResolveRouteForState(s State) (Route, error) {
	if err := ValidateState(s); err != nil {
		return "", err
	}
	return modes[s.Mode].defaultRoute(s.Token), nil
}

// DefaultNextTransition is the mode an engine stays in unless it moves.
func DefaultNextTransition(m Mode) (Mode, bool) {
	spec, ok := modes[m]
	return spec.defaultNext, ok
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Mode) bool {
	spec, ok := modes[from]
	if !ok {
		return false
	}
	for _, m := range spec.legalNext {
		if m == to {
			return true
		}
	}
	return false
}

// DeterminesIntent reports whether the mode alone decides the route, so the
// classifier is not consulted.
func DeterminesIntent(m Mode) bool {
	return m != ModeIdle
}

// IsBurstToken reports whether an onboarding burst is in flight.
func IsBurstToken(token string) bool {
	switch token {
	case TokenOnboardingBurst, TokenOnboardingBurstMessage2, TokenOnboardingBurstMessage3, TokenOnboardingBurstMessage4:
		return true
	}
	return false
}

// IsOnboardingToken reports whether token is in the onboarding family.
func IsOnboardingToken(token string) bool {
	return onboardingTokens[token]
}
