package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nkiryanov/authsession/internal/guard"
	"github.com/nkiryanov/authsession/internal/models"
	"github.com/nkiryanov/authsession/internal/tokenmanager"
)

type command func(ctx context.Context, a *App, out io.Writer, args []string) error

var commands = map[string]command{
	"login":    cmdLogin,
	"register": cmdRegister,
	"me":       cmdMe,
	"status":   cmdStatus,
	"route":    cmdRoute,
	"token":    cmdToken,
	"sync":     cmdSync,
	"logout":   cmdLogout,
}

var errNotLoggedIn = errors.New("not logged in")

// Routes guarded by the public entry guard, everything else is protected
var publicEntryRoutes = []string{"/auth/login", "/auth/register"}

func cmdLogin(ctx context.Context, a *App, out io.Writer, _ []string) error {
	user, err := a.Auth.Login(ctx, models.Credentials{Email: a.config.Email, Password: a.config.Password})
	if err != nil {
		return err
	}

	return welcome(ctx, a, out, user)
}

func cmdRegister(ctx context.Context, a *App, out io.Writer, _ []string) error {
	user, err := a.Auth.Register(ctx, models.RegisterRequest{
		DNI:       a.config.DNI,
		Name:      a.config.Name,
		Surname:   a.config.Surname,
		BirthDate: a.config.BirthDate,
		Phone:     a.config.Phone,
		Email:     a.config.Email,
		Password:  a.config.Password,
	})
	if err != nil {
		return err
	}

	return welcome(ctx, a, out, user)
}

func welcome(ctx context.Context, a *App, out io.Writer, user models.UserProfile) error {
	_, err := fmt.Fprintf(out, "Logged in as %s <%s>, role %s\nLanding: %s\n",
		user.Name, user.Email, user.Role, a.Guard.PublicEntry(ctx).Redirect)
	return err
}

func cmdMe(ctx context.Context, a *App, out io.Writer, _ []string) error {
	user, err := a.Auth.Me(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(user)
}

func cmdStatus(ctx context.Context, a *App, out io.Writer, _ []string) error {
	authenticated := a.State.IsAuthenticated(ctx)
	snapshot := a.Store.Session(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "authenticated: %t\n", authenticated)

	access, refresh := "none", "none"
	if snapshot.Tokens != nil {
		if t := snapshot.Tokens.AccessToken; t != "" {
			access = "present"
			if exp, err := tokenmanager.ExpiresAt(t); err == nil {
				access = "expires " + exp.Format(time.RFC3339)
			}
			if a.State.IsExpired(t) {
				access += " (expired)"
			}
		}
		if snapshot.Tokens.RefreshToken != "" {
			refresh = "present"
		}
	}
	fmt.Fprintf(&b, "access token: %s\nrefresh token: %s\n", access, refresh)

	if role, ok := a.State.CurrentRole(ctx); ok {
		fmt.Fprintf(&b, "role: %s\n", role)
	} else {
		b.WriteString("role: unknown\n")
	}

	_, err := io.WriteString(out, b.String())
	return err
}

func cmdRoute(ctx context.Context, a *App, out io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("route needs exactly one path")
	}
	path := args[0]

	// Landing depends on the role, which is not persisted across runs
	if _, ok := a.Store.UserProfile(ctx); !ok && a.State.IsAuthenticated(ctx) {
		_, _ = a.Profile.RefreshNow(ctx)
	}

	var d guard.Decision
	if isPublicEntry(path) {
		d = a.Guard.PublicEntry(ctx)
	} else {
		d = a.Guard.Protected(ctx, path)
	}

	if d.Allow {
		_, err := fmt.Fprintf(out, "allow %s\n", path)
		return err
	}
	_, err := fmt.Fprintf(out, "redirect %s\n", d.Redirect)
	return err
}

func isPublicEntry(path string) bool {
	for _, r := range publicEntryRoutes {
		if path == r || strings.HasPrefix(path, r+"?") || strings.HasPrefix(path, r+"/") {
			return true
		}
	}
	return false
}

func cmdToken(ctx context.Context, a *App, out io.Writer, _ []string) error {
	t, err := a.Coordinator.TokenSource(ctx).Token()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, t.AccessToken)
	return err
}

func cmdSync(ctx context.Context, a *App, out io.Writer, _ []string) error {
	if !a.State.IsAuthenticated(ctx) {
		return errNotLoggedIn
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := a.Profile.Subscribe(func(p *models.UserProfile) {
		if p == nil {
			fmt.Fprintln(out, "profile: none")
			return
		}
		fmt.Fprintf(out, "profile: %s <%s>, role %s\n", p.Name, p.Email, p.Role)
	})
	defer unsubscribe()

	// Errors are logged, periodic sync retries anyway
	_, _ = a.Profile.RefreshNow(ctx)

	stopped := a.Profile.StartPeriodicSync(ctx, a.config.SyncInterval)

	served := make(chan error, 1)
	go func() {
		served <- a.ServeMetrics(ctx)
	}()

	select {
	case <-stopped:
		return <-served
	case err := <-served:
		cancel()
		<-stopped
		return err
	}
}

func cmdLogout(ctx context.Context, a *App, out io.Writer, _ []string) error {
	a.Auth.Logout(ctx)

	_, err := fmt.Fprintln(out, "Logged out")
	return err
}
