// Package pages wraps the bstackdemo.com shop behind page objects.
//
// Page objects only know selectors and the order of user actions. They talk to
// the browser through Driver, which the session package implements on top of
// playwright-go; every wait is bounded by the driver's element timeout and a
// single unmet precondition fails the action. Nothing here retries.
package pages

import (
	"context"

	"github.com/kuitang/favorites-e2e/internal/errs"
)

// Driver is the subset of browser operations the page objects need.
// Implementations return errs.ElementNotFound when an element is not ready in time.
type Driver interface {
	Navigate(url string) error
	Click(selector string) error
	Type(selector, text string) error
	Press(selector, key string) error
	WaitVisible(selector string) error
	WaitURL(pattern string) error
	Texts(selector string) ([]string, error)
}

// step checks for cancellation before touching the browser.
func step(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Canceled, name+" aborted", err)
	}
	return nil
}
