package app

import (
	"strings"

	"matchpoint/internal/domain"
)

// Route paths the gate knows about.
const (
	RouteLanding      = "/"
	RouteOnboarding   = "/onboarding"
	RouteDashboard    = "/dashboard"
	RouteSubscription = "/subscription"
)

// RouteClass groups routes by who may reach them.
type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteOnboardingOnly
	RouteProtected
)

// Decision is the gate's verdict for one navigation.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// StateOf derives the gate state from a freshly loaded account; nil means signed out.
func StateOf(acct *domain.Account) domain.AuthState {
	switch {
	case acct == nil:
		return domain.StateAnonymous
	case !acct.OnboardingCompleted:
		return domain.StateNeedsOnboarding
	default:
		return domain.StateOnboarded
	}
}

// Classify maps a path to its route class. Unknown paths are protected.
func Classify(path string) RouteClass {
	path = "/" + strings.Trim(path, "/")
	switch {
	case path == RouteLanding:
		return RoutePublic
	case path == RouteOnboarding:
		return RouteOnboardingOnly
	case strings.HasPrefix(path, "/quiz/"), strings.HasPrefix(path, "/result/"):
		return RoutePublic
	default:
		return RouteProtected
	}
}

// Decide applies the route-access policy for state on path.
func Decide(state domain.AuthState, path string) Decision {
	return DecideClass(state, Classify(path))
}

// DecideClass is Decide for an already classified route.
func DecideClass(state domain.AuthState, class RouteClass) Decision {
	if class == RoutePublic {
		return allow()
	}
	switch state {
	case domain.StateNeedsOnboarding:
		if class == RouteOnboardingOnly {
			return allow()
		}
		return redirect(RouteOnboarding)
	case domain.StateOnboarded:
		if class == RouteOnboardingOnly {
			return redirect(RouteDashboard)
		}
		return allow()
	default:
		return redirect(RouteLanding)
	}
}
