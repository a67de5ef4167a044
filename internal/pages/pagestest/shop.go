// Package pagestest provides an in-memory bstackdemo.com shop that implements
// pages.Driver, for exercising page objects without a browser.
package pagestest

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kuitang/favorites-e2e/internal/errs"
	"github.com/kuitang/favorites-e2e/internal/pages"
)

// Product is one catalog entry.
type Product struct {
	ID    string
	Name  string
	Brand string
}

// Catalog is a slice of the real shop's inventory.
func Catalog() []Product {
	return []Product{
		{ID: "1", Name: "iPhone 12", Brand: "Apple"},
		{ID: "2", Name: "iPhone 12 Mini", Brand: "Apple"},
		{ID: "10", Name: "Galaxy S20", Brand: "Samsung"},
		{ID: "11", Name: "Galaxy S20+", Brand: "Samsung"},
		{ID: "12", Name: "Galaxy S20 Ultra", Brand: "Samsung"},
		{ID: "17", Name: "Pixel 4", Brand: "Google"},
		{ID: "22", Name: "One Plus 8", Brand: "OnePlus"},
	}
}

// Shop simulates the shop UI state behind pages.Driver.
type Shop struct {
	mu sync.Mutex

	Username string
	Password string
	Products []Product

	// Broken selectors fail every operation with element_not_found.
	Broken map[string]bool
	// DropFavorites makes favorite clicks no-ops.
	DropFavorites bool
	// Preexisting favourites, by product id.
	Preexisting []string

	url       string
	page      string
	signingIn bool
	focused   string
	pending   string
	user      string
	pass      string
	loggedIn  string
	brands    []string
	favorites []string
	clicks    map[string]int
	seeded    bool
}

// NewShop returns a shop with the demo account and default catalog.
func NewShop() *Shop {
	return &Shop{
		Username: "demouser",
		Password: "testingisfun99",
		Products: Catalog(),
		Broken:   map[string]bool{},
	}
}

// Clicks reports how often selector was clicked.
func (s *Shop) Clicks(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks[selector]
}

// Favorites returns the favourited product names in insertion order.
func (s *Shop) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.favorites))
	for _, id := range s.favorites {
		names = append(names, s.product(id).Name)
	}
	return names
}

// LoggedInAs returns the signed-in user name, if any.
func (s *Shop) LoggedInAs() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// URL returns the current location.
func (s *Shop) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Shop) Navigate(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		s.favorites = append(s.favorites, s.Preexisting...)
		s.seeded = true
	}
	s.url = url
	s.page = "home"
	s.signingIn = false
	return nil
}

func (s *Shop) Click(selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(selector); err != nil {
		return err
	}
	if s.clicks == nil {
		s.clicks = map[string]int{}
	}

	switch {
	case selector == pages.SignInLink && s.page == "home":
		s.signingIn = true
	case (selector == pages.UsernameSelect || selector == pages.PasswordSelect) && s.signingIn:
		s.focused = selector
	case selector == pages.LoginButton && s.signingIn:
		if s.user == s.Username && s.pass == s.Password {
			s.loggedIn = s.user
			s.signingIn = false
		}
	case selector == pages.FavouritesLink && s.page != "":
		s.page = "favourites"
		s.url = strings.TrimRight(s.base(), "/") + "/favourites"
	default:
		if brand, ok := s.brandFor(selector); ok && s.shelfVisible() {
			if i := slices.Index(s.brands, brand); i >= 0 {
				s.brands = slices.Delete(s.brands, i, i+1)
			} else {
				s.brands = append(s.brands, brand)
			}
			break
		}
		if p, ok := s.favoriteButtonFor(selector); ok && s.visible(p) {
			if s.loggedIn == "" {
				s.signingIn = true
				break
			}
			if s.DropFavorites {
				break
			}
			if i := slices.Index(s.favorites, p.ID); i >= 0 {
				s.favorites = slices.Delete(s.favorites, i, i+1)
			} else {
				s.favorites = append(s.favorites, p.ID)
			}
			break
		}
		return s.missing(selector)
	}
	s.clicks[selector]++
	return nil
}

func (s *Shop) Type(selector, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(selector); err != nil {
		return err
	}
	if s.inputFor(s.focused) != selector {
		return s.missing(selector)
	}
	s.pending = text
	return nil
}

func (s *Shop) Press(selector, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(selector); err != nil {
		return err
	}
	if s.inputFor(s.focused) != selector {
		return s.missing(selector)
	}
	if key == "Enter" {
		switch s.focused {
		case pages.UsernameSelect:
			s.user = s.pending
		case pages.PasswordSelect:
			s.pass = s.pending
		}
		s.pending = ""
		s.focused = ""
	}
	return nil
}

func (s *Shop) WaitVisible(selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(selector); err != nil {
		return err
	}
	switch {
	case selector == pages.ProductCard:
		if s.shelfVisible() && len(s.shelf()) > 0 {
			return nil
		}
	default:
		for _, p := range s.Products {
			if selector == pages.ProductByID(p.ID) && s.visible(p) {
				return nil
			}
			if selector == pages.FavoriteEntry(p.Name) && s.page == "favourites" && slices.Contains(s.favorites, p.ID) {
				return nil
			}
		}
	}
	return s.missing(selector)
}

func (s *Shop) WaitURL(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern == pages.FavouritesRoute && s.page == "favourites" {
		return nil
	}
	return errs.New(errs.ElementNotFound, fmt.Sprintf("url %s never matched %s", s.url, pattern))
}

func (s *Shop) Texts(selector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(selector); err != nil {
		return nil, err
	}
	switch selector {
	case pages.ProductTitle:
		var out []string
		if s.page == "favourites" {
			for _, id := range s.favorites {
				out = append(out, s.product(id).Name)
			}
			return out, nil
		}
		for _, p := range s.shelf() {
			out = append(out, p.Name)
		}
		return out, nil
	case pages.LoggedInUser:
		if s.loggedIn == "" {
			return nil, nil
		}
		return []string{s.loggedIn}, nil
	}
	return nil, nil
}

func (s *Shop) check(selector string) error {
	if s.page == "" {
		return errs.New(errs.ElementNotFound, "no page loaded")
	}
	if s.Broken[selector] {
		return s.missing(selector)
	}
	return nil
}

func (s *Shop) missing(selector string) error {
	return errs.New(errs.ElementNotFound, fmt.Sprintf("timed out waiting for %s", selector))
}

func (s *Shop) base() string {
	if i := strings.Index(s.url, "/favourites"); i >= 0 {
		return s.url[:i]
	}
	return s.url
}

func (s *Shop) shelfVisible() bool {
	return s.page == "home" && !s.signingIn
}

func (s *Shop) shelf() []Product {
	var out []Product
	for _, p := range s.Products {
		if len(s.brands) == 0 || slices.Contains(s.brands, p.Brand) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Shop) visible(p Product) bool {
	return s.shelfVisible() && slices.ContainsFunc(s.shelf(), func(q Product) bool { return q.ID == p.ID })
}

func (s *Shop) product(id string) Product {
	for _, p := range s.Products {
		if p.ID == id {
			return p
		}
	}
	return Product{ID: id, Name: "unknown " + id}
}

func (s *Shop) brandFor(selector string) (string, bool) {
	for _, p := range s.Products {
		if selector == pages.BrandFilter(p.Brand) {
			return p.Brand, true
		}
	}
	return "", false
}

func (s *Shop) favoriteButtonFor(selector string) (Product, bool) {
	for _, p := range s.Products {
		if selector == pages.FavoriteButton(p.ID) {
			return p, true
		}
	}
	return Product{}, false
}

func (s *Shop) inputFor(container string) string {
	switch container {
	case pages.UsernameSelect:
		return pages.UsernameInput
	case pages.PasswordSelect:
		return pages.PasswordInput
	}
	return ""
}
