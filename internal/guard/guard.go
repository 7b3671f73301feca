// Package guard decides whether navigation to a route may proceed
package guard

import (
	"context"
	"net/url"
)

// Decision is the outcome of a guard: allow, or deny and go to Redirect
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(to string) Decision {
	return Decision{Allow: false, Redirect: to}
}

// Routes the guards redirect to
type Routes struct {
	Login string

	// Query parameter of the login route holding the requested route
	ReturnParam string

	// Landing route by role. Roles missing here land on Default
	Landing map[string]string
	Default string
}

func DefaultRoutes() Routes {
	return Routes{
		Login:       "/auth/login",
		ReturnParam: "returnUrl",
		Landing: map[string]string{
			"admin":   "/admin/manage-appointments",
			"doctor":  "/doctor/dashboard",
			"patient": "/patient/dashboard",
		},
		Default: "/dashboard",
	}
}

func (r Routes) LandingFor(role string) string {
	if route, ok := r.Landing[role]; ok {
		return route
	}
	return r.Default
}

// LoginFor returns login route that brings the user back to requested afterwards
func (r Routes) LoginFor(requested string) string {
	if requested == "" {
		return r.Login
	}
	return r.Login + "?" + url.Values{r.ReturnParam: []string{requested}}.Encode()
}

type authState interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentRole(ctx context.Context) (string, bool)
}

type Guard struct {
	state  authState
	routes Routes
}

func New(state authState, routes Routes) *Guard {
	return &Guard{state: state, routes: routes}
}

// PublicEntry guards pages only anonymous users need, like login and register
// Authenticated users are sent to the landing route of their role
func (g *Guard) PublicEntry(ctx context.Context) Decision {
	if !g.state.IsAuthenticated(ctx) {
		return allow()
	}

	role, _ := g.state.CurrentRole(ctx)
	return redirect(g.routes.LandingFor(role))
}

// Protected guards pages that need a session
func (g *Guard) Protected(ctx context.Context, requested string) Decision {
	if g.state.IsAuthenticated(ctx) {
		return allow()
	}
	return redirect(g.routes.LoginFor(requested))
}
