package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/favorites-e2e/internal/errs"
)

// FavoritesPage is the signed-in user's favourites list.
type FavoritesPage struct {
	d Driver
}

// NewFavoritesPage returns a favourites page object.
func NewFavoritesPage(d Driver) *FavoritesPage {
	return &FavoritesPage{d: d}
}

// FavoriteEntry selects a favourites entry by its exact title.
func FavoriteEntry(name string) string {
	return fmt.Sprintf("xpath=//p[text()=%s]", xpathLiteral(name))
}

// Open follows the favourites link and waits for the route to change.
func (p *FavoritesPage) Open(ctx context.Context) error {
	if err := step(ctx, "open favourites"); err != nil {
		return err
	}
	if err := p.d.Click(FavouritesLink); err != nil {
		return fmt.Errorf("click favourites: %w", err)
	}
	if err := p.d.WaitURL(FavouritesRoute); err != nil {
		return fmt.Errorf("wait for favourites page: %w", err)
	}
	return nil
}

// Verify asserts that exactly one favourites entry is titled productName.
func (p *FavoritesPage) Verify(ctx context.Context, productName string) error {
	if err := step(ctx, "verify favourites"); err != nil {
		return err
	}
	if err := p.d.WaitVisible(FavoriteEntry(productName)); err != nil {
		if errs.CodeOf(err) == errs.ElementNotFound {
			titles, _ := p.d.Texts(ProductTitle)
			return errs.Wrap(errs.AssertionFailed,
				fmt.Sprintf("%q not in favourites (found %s)", productName, describe(titles)), err)
		}
		return fmt.Errorf("wait for favourite %q: %w", productName, err)
	}
	titles, err := p.d.Texts(ProductTitle)
	if err != nil {
		return fmt.Errorf("read favourites: %w", err)
	}
	matches := 0
	for _, t := range titles {
		if strings.TrimSpace(t) == productName {
			matches++
		}
	}
	if matches != 1 {
		return errs.New(errs.AssertionFailed,
			fmt.Sprintf("expected exactly one %q in favourites, found %d (%s)", productName, matches, describe(titles)))
	}
	return nil
}

func describe(titles []string) string {
	if len(titles) == 0 {
		return "none"
	}
	return strings.Join(titles, ", ")
}
