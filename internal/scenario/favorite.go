// Package scenario composes the page objects into the favorite-product workflow.
package scenario

import (
	"context"
	"time"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/obs"
	"github.com/kuitang/favorites-e2e/internal/pages"
	"github.com/kuitang/favorites-e2e/internal/session"
)

// Name is the scenario's test name in reports.
const Name = "FavoriteProduct"

// Target is the shop account and product the scenario works with.
type Target struct {
	BaseURL     string
	Username    string
	Password    string
	Brand       string
	ProductName string
	ProductID   string
}

// Favorite logs in, filters by brand, favorites the target product and checks
// it is the single matching entry on the favourites page.
type Favorite struct {
	Target Target
}

// annotator is implemented by sessions that can mark steps on a dashboard.
type annotator interface {
	Annotate(ctx context.Context, text string)
}

func annotate(ctx context.Context, sess session.Session, text string) {
	if a, ok := sess.(annotator); ok {
		a.Annotate(ctx, text)
	}
}

// Run executes the steps in order and stops at the first failure. The verdict
// is reported to the session; closing it is the caller's job.
func (f Favorite) Run(ctx context.Context, sess session.Session) error {
	log := obs.From(ctx)
	start := time.Now()

	annotate(ctx, sess, "started")
	err := f.steps(ctx, sess)

	status, reason := session.StatusPassed, "Product successfully added to favorites"
	if err != nil {
		status, reason = session.StatusFailed, errs.MessageOf(err)
	}
	if markErr := sess.MarkStatus(ctx, status, reason); markErr != nil {
		log.Warn("scenario_status_not_reported", "error", markErr)
	}

	if err != nil {
		log.Warn("scenario_failed", "code", errs.CodeOf(err), "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
	log.Info("scenario_passed", "product", f.Target.ProductName,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (f Favorite) steps(ctx context.Context, sess session.Session) error {
	t := f.Target
	login := pages.NewLoginPage(sess, t.BaseURL)
	products := pages.NewProductPage(sess)
	favorites := pages.NewFavoritesPage(sess)

	steps := []struct {
		name string
		run  func() error
	}{
		{"login", func() error { return login.Login(ctx, t.Username, t.Password) }},
		{"filter", func() error { return products.FilterByBrand(ctx, t.Brand, t.ProductID) }},
		{"favorite", func() error { return products.Favorite(ctx, t.ProductID) }},
		{"open_favourites", func() error { return favorites.Open(ctx) }},
		{"verify", func() error { return favorites.Verify(ctx, t.ProductName) }},
	}
	for _, s := range steps {
		annotate(ctx, sess, s.name)
		stepStart := time.Now()
		if err := s.run(); err != nil {
			return err
		}
		obs.From(ctx).Debug("scenario_step", "step", s.name, "duration_ms", time.Since(stepStart).Milliseconds())
	}
	return nil
}
