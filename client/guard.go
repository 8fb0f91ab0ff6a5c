package client

import "net/url"

// Decision is what the route guard tells the UI to render.
type Decision int

const (
	// RenderContent shows the protected content.
	RenderContent Decision = iota
	// RenderFallback shows a loading placeholder; when RedirectTo is
	// set the UI should also navigate there.
	RenderFallback
	// RenderAccessDenied shows an access-denied view offering to
	// navigate back, without redirecting.
	RenderAccessDenied
)

// GuardResult is the route guard's verdict for one render cycle.
type GuardResult struct {
	Decision   Decision
	RedirectTo string // non-empty only for unauthenticated redirects
}

// Guard gates rendering of protected content from the current auth
// state. requiredRole is optional; currentPath is carried as the return
// target on redirect.
func Guard(state AuthState, requiredRole, currentPath string) GuardResult {
	if state.IsLoading {
		// Indeterminate: hold the placeholder, never redirect early.
		return GuardResult{Decision: RenderFallback}
	}

	if !state.IsAuthenticated || state.User == nil {
		return GuardResult{
			Decision:   RenderFallback,
			RedirectTo: "/login?redirect=" + url.QueryEscape(currentPath),
		}
	}

	if requiredRole != "" && state.User.Role != requiredRole {
		return GuardResult{Decision: RenderAccessDenied}
	}

	return GuardResult{Decision: RenderContent}
}
