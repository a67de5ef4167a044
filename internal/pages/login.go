package pages

import (
	"context"
	"fmt"
)

// Login page selectors. The username and password pickers are react-select
// widgets: clicking the container focuses a generated input that accepts typing.
const (
	SignInLink      = "#signin"
	UsernameSelect  = "#username"
	UsernameInput   = "#react-select-2-input"
	PasswordSelect  = "#password"
	PasswordInput   = "#react-select-3-input"
	LoginButton     = "#login-btn"
	LoggedInUser    = ".username"
	ProductCard     = ".shelf-item"
	ProductTitle    = ".shelf-item__title"
	FavouritesLink  = "#favourites"
	FavouritesRoute = "**/favourites*"
)

// LoginPage signs a demo user into the shop.
type LoginPage struct {
	d       Driver
	baseURL string
}

// NewLoginPage returns a login page object for the shop at baseURL.
func NewLoginPage(d Driver, baseURL string) *LoginPage {
	return &LoginPage{d: d, baseURL: baseURL}
}

// Open navigates to the shop landing page.
func (p *LoginPage) Open(ctx context.Context) error {
	if err := step(ctx, "open shop"); err != nil {
		return err
	}
	if err := p.d.Navigate(p.baseURL); err != nil {
		return fmt.Errorf("open %s: %w", p.baseURL, err)
	}
	return nil
}

// Login opens the shop, signs in with the given demo account and waits for the
// product shelf to render.
func (p *LoginPage) Login(ctx context.Context, username, password string) error {
	if err := p.Open(ctx); err != nil {
		return err
	}
	if err := step(ctx, "sign in"); err != nil {
		return err
	}
	if err := p.d.Click(SignInLink); err != nil {
		return fmt.Errorf("click sign in: %w", err)
	}
	if err := p.pick(ctx, UsernameSelect, UsernameInput, username); err != nil {
		return fmt.Errorf("select username: %w", err)
	}
	if err := p.pick(ctx, PasswordSelect, PasswordInput, password); err != nil {
		return fmt.Errorf("select password: %w", err)
	}
	if err := p.d.Click(LoginButton); err != nil {
		return fmt.Errorf("click log in: %w", err)
	}
	if err := p.d.WaitVisible(ProductCard); err != nil {
		return fmt.Errorf("wait for products after login: %w", err)
	}
	return nil
}

// CurrentUser returns the signed-in user name shown in the header.
func (p *LoginPage) CurrentUser(ctx context.Context) (string, error) {
	if err := step(ctx, "read user"); err != nil {
		return "", err
	}
	names, err := p.d.Texts(LoggedInUser)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (p *LoginPage) pick(ctx context.Context, container, input, value string) error {
	if err := step(ctx, "pick "+container); err != nil {
		return err
	}
	if err := p.d.Click(container); err != nil {
		return err
	}
	if err := p.d.Type(input, value); err != nil {
		return err
	}
	return p.d.Press(input, "Enter")
}
