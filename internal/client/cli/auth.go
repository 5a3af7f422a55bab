package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) status() string {
	a.mu.Lock()
	mode := a.Mode
	a.mu.Unlock()

	s := a.email
	if mode != "" {
		if s != "" {
			s += " "
		}
		s += string(mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// forget drops the local notion of being logged in once the server no
// longer honours the session.
func (a *App) forget(err error) error {
	if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, client.ErrNotLoggedIn) {
		a.email = ""
	}
	return err
}

func (a *App) ask(prompts ...string) ([]string, error) {
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		v, err := getSimpleText(a.reader, p, a.out)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *App) Register(ctx context.Context) error {
	in, err := a.ask("Enter name", "Enter email")
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	msg, err := a.api.Register(ctx, in[0], in[1], password)
	if err != nil {
		return err
	}
	printlnFn(msg)
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	in, err := a.ask("Enter email", "Enter the code from the email")
	if err != nil {
		return err
	}

	msg, err := a.api.VerifyOTP(ctx, in[0], in[1])
	if err != nil {
		return err
	}
	printlnFn(msg)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	in, err := a.ask("Enter email")
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	t, err := a.api.Login(ctx, in[0], password)
	if err != nil {
		return err
	}
	a.email = t.Email
	printlnFn("Logged in as", t.Email)
	return nil
}

func (a *App) Me(ctx context.Context) error {
	u, err := a.api.Me(ctx)
	if err != nil {
		return a.forget(err)
	}
	printlnFn(fmt.Sprintf("%s <%s>\n  id: %s\n  member since: %s", u.Name, u.Email, u.ID, u.CreatedAt.Format(time.RFC1123)))
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	t, err := a.api.Refresh(ctx)
	if err != nil {
		return a.forget(err)
	}
	printlnFn("Session refreshed, valid until", t.RefreshExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)
	a.email = ""
	if err != nil {
		return err
	}
	printlnFn("Logged out.")
	return nil
}

func (a *App) Forgot(ctx context.Context) error {
	in, err := a.ask("Enter email")
	if err != nil {
		return err
	}

	msg, err := a.api.ForgotPassword(ctx, in[0])
	if err != nil {
		return err
	}
	printlnFn(msg)
	return nil
}

func (a *App) Reset(ctx context.Context) error {
	in, err := a.ask("Enter email", "Enter the code from the email")
	if err != nil {
		return err
	}
	password, err := getPassword("Enter new password", a.out)
	if err != nil {
		return err
	}

	msg, err := a.api.ResetPassword(ctx, in[0], in[1], password)
	if err != nil {
		return err
	}
	printlnFn(msg)
	return nil
}
