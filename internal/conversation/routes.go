package conversation

import "github.com/Ananth-NQI/linkup-backend/internal/intent"

// Route names the engine a message is dispatched to. The set is closed.
type Route string

const (
	RouteSystemCommand         Route = "system_command_handler"
	RouteContactInviteResponse Route = "contact_invite_response_handler"
	RouteDefault               Route = "default_engine"
	RouteOpenIntent            Route = "open_intent_engine"
	RouteNamedPlanRequest      Route = "named_plan_request_engine"
	RoutePlanSocialChoice      Route = "plan_social_choice_engine"
	RouteOnboarding            Route = "onboarding_engine"
	RouteProfileInterview      Route = "profile_interview_engine"
	RouteLinkupForming         Route = "linkup_forming_engine"
	RouteInviteReply           Route = "invite_reply_engine"
	RoutePostEvent             Route = "post_event_engine"
	RouteSafetyHold            Route = "safety_hold_engine"
)

// AllRoutes lists every route in a stable order.
var AllRoutes = []Route{
	RouteSystemCommand,
	RouteContactInviteResponse,
	RouteDefault,
	RouteOpenIntent,
	RouteNamedPlanRequest,
	RoutePlanSocialChoice,
	RouteOnboarding,
	RouteProfileInterview,
	RouteLinkupForming,
	RouteInviteReply,
	RoutePostEvent,
	RouteSafetyHold,
}

// Valid reports whether r is one of the known routes.
func (r Route) Valid() bool {
	for _, known := range AllRoutes {
		if r == known {
			return true
		}
	}
	return false
}

// IntentDerived reports whether r is only ever chosen from message content.
// Dispatch does not correct these back to the state's default route.
func (r Route) IntentDerived() bool {
	switch r {
	case RouteSystemCommand, RouteContactInviteResponse, RouteOpenIntent,
		RouteNamedPlanRequest, RoutePlanSocialChoice:
		return true
	}
	return false
}

// RouteForIntent maps a classifier intent onto its handler.
func RouteForIntent(it intent.Intent) Route {
	switch it {
	case intent.ContactInviteResponse:
		return RouteContactInviteResponse
	case intent.SystemCommand:
		return RouteSystemCommand
	case intent.PlanSocialChoice:
		return RoutePlanSocialChoice
	case intent.InterviewAnswer, intent.InterviewAnswerAbbreviated:
		return RouteProfileInterview
	case intent.PostActivityCheckin:
		return RoutePostEvent
	case intent.NamedPlanRequest:
		return RouteNamedPlanRequest
	default:
		return RouteOpenIntent
	}
}
