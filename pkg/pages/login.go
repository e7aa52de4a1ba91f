package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/browser"
)

const (
	loginUserID   = "login-user-id"
	loginPassword = "login-password"
	loginSubmit   = "login-submit"

	announcementSelector = `[id="0"]`
	welcomeText          = "Welcome to AQX Trader!"

	welcomeTimeout = 15 * time.Second
)

// Credentials log a user in. DisplayName is optional; when set it must be
// shown once the login completes.
type Credentials struct {
	Username    string
	Password    string
	DisplayName string
}

// LoginPage drives the sign-in form.
type LoginPage struct {
	*Base
}

// NewLoginPage wraps b.
func NewLoginPage(b *Base) *LoginPage {
	return &LoginPage{Base: b}
}

// Open navigates to the base URL, which serves the login form.
func (p *LoginPage) Open() error {
	return p.Navigate("")
}

// EnterUsername fills the user id field.
func (p *LoginPage) EnterUsername(username string) error {
	return p.Fill("user id", p.ByTestID(loginUserID), username)
}

// EnterPassword fills the password field.
func (p *LoginPage) EnterPassword(password string) error {
	return p.Fill("password", p.ByTestID(loginPassword), password)
}

// Submit clicks sign in once the button is enabled.
func (p *LoginPage) Submit() error {
	return p.ClickWhenEnabled("sign in", p.ByTestID(loginSubmit))
}

// VerifyLoggedIn waits for the welcome announcement and, if displayName is
// set, for the user's name in the header.
func (p *LoginPage) VerifyLoggedIn(displayName string) error {
	announcement := p.Page.Locator(announcementSelector)
	if err := p.WaitTextContains("welcome announcement", announcement, welcomeText, welcomeTimeout); err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	if displayName == "" {
		return nil
	}
	if err := p.WaitVisible("user name", p.Page.GetByText(displayName)); err != nil {
		return fmt.Errorf("user %q not shown after login: %w", displayName, err)
	}
	return nil
}

// Login runs the whole flow. ctx is checked between steps so an abandoned
// login stops touching the page.
func (p *LoginPage) Login(ctx context.Context, creds Credentials) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"open login page", p.Open},
		{"enter user id", func() error { return p.EnterUsername(creds.Username) }},
		{"enter password", func() error { return p.EnterPassword(creds.Password) }},
		{"submit", p.Submit},
		{"verify login", func() error { return p.VerifyLoggedIn(creds.DisplayName) }},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	p.Log.Infof("logged in to %s as %s", p.BaseURL, creds.Username)
	return nil
}

// Authenticator adapts the login flow to browser.SessionManager.
func Authenticator(deps Deps, creds Credentials) browser.Authenticator {
	return func(ctx context.Context, s *browser.Session) error {
		return NewLoginPage(deps.New(s.Page)).Login(ctx, creds)
	}
}
