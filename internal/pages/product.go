package pages

import (
	"context"
	"fmt"
)

// ProductPage is the product shelf with vendor filters.
type ProductPage struct {
	d Driver
}

// NewProductPage returns a product shelf page object.
func NewProductPage(d Driver) *ProductPage {
	return &ProductPage{d: d}
}

// BrandFilter is the clickable label for a vendor checkbox.
func BrandFilter(brand string) string {
	return fmt.Sprintf("xpath=//div[@class='filters-available-size']//input[@value=%s]/parent::label", xpathLiteral(brand))
}

// ProductByID selects the shelf card for a product id.
func ProductByID(id string) string {
	return fmt.Sprintf("[id='%s']", cssEscape(id))
}

// FavoriteButton selects the heart button of a product card.
func FavoriteButton(id string) string {
	return ProductByID(id) + " .shelf-stopper button"
}

// FilterByBrand ticks the vendor filter and waits until productID is on the shelf.
func (p *ProductPage) FilterByBrand(ctx context.Context, brand, productID string) error {
	if err := step(ctx, "filter by brand"); err != nil {
		return err
	}
	if err := p.d.Click(BrandFilter(brand)); err != nil {
		return fmt.Errorf("click %s filter: %w", brand, err)
	}
	if err := p.d.WaitVisible(ProductByID(productID)); err != nil {
		return fmt.Errorf("wait for product %s after %s filter: %w", productID, brand, err)
	}
	return nil
}

// Favorite clicks the product's favorite button exactly once.
func (p *ProductPage) Favorite(ctx context.Context, productID string) error {
	if err := step(ctx, "favorite product"); err != nil {
		return err
	}
	if err := p.d.Click(FavoriteButton(productID)); err != nil {
		return fmt.Errorf("favorite product %s: %w", productID, err)
	}
	return nil
}

// Titles lists the product titles currently on the shelf.
func (p *ProductPage) Titles(ctx context.Context) ([]string, error) {
	if err := step(ctx, "read titles"); err != nil {
		return nil, err
	}
	return p.d.Texts(ProductTitle)
}
