// Package browser runs the favourites scenario in real browsers against an
// in-process replica of the bstackdemo shop.
package browser

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kuitang/favorites-e2e/internal/pages/pagestest"
)

const (
	// Browser tests never wait longer than this for an element.
	browserMaxTimeout = 5 * time.Second

	demoUser     = "demouser"
	demoPassword = "testingisfun99"
)

// ShopServer serves a single-page shop with the same DOM contract as
// bstackdemo.com: react-select style sign-in pickers, vendor filters, product
// cards with heart buttons and a /favourites route.
type ShopServer struct {
	*httptest.Server
	BaseURL string
}

// NewShopServer starts a shop for the test. It stops when the test ends.
func NewShopServer(t *testing.T) *ShopServer {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := shopTemplate.Execute(w, shopData{
			Products: pagestest.Catalog(),
			Username: demoUser,
			Password: demoPassword,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &ShopServer{Server: ts, BaseURL: ts.URL}
}

type shopData struct {
	Products []pagestest.Product
	Username string
	Password string
}

var shopTemplate = template.Must(template.New("shop").Parse(shopHTML))

// State lives in sessionStorage so it survives the full-page navigations
// between /, /signin and /favourites.
const shopHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>StackDemo</title>
<style>
  body { font-family: sans-serif; margin: 0; }
  nav { display: flex; gap: 16px; padding: 12px; background: #222; color: #fff; }
  nav a, nav span { color: #fff; }
  .filters { float: left; width: 160px; padding: 12px; }
  .shelf-container { margin-left: 180px; display: flex; flex-wrap: wrap; gap: 12px; padding: 12px; }
  .shelf-item { width: 180px; border: 1px solid #ccc; padding: 8px; }
  .select { border: 1px solid #888; padding: 6px; margin: 8px; width: 240px; }
  .select input { border: 0; width: 100%; }
</style>
</head>
<body>
<nav>
  <a href="/">StackDemo</a>
  <span id="nav-user"></span>
</nav>
<main id="app"></main>
<script>
const PRODUCTS = [{{range $i, $p := .Products}}{{if $i}},{{end}}{ id: {{$p.ID}}, name: {{$p.Name}}, brand: {{$p.Brand}} }{{end}}];
const ACCOUNT = { user: {{.Username}}, pass: {{.Password}} };
const picks = {};

function load(key, fallback) {
  const raw = sessionStorage.getItem(key);
  return raw === null ? fallback : JSON.parse(raw);
}

function save(key, value) {
  sessionStorage.setItem(key, JSON.stringify(value));
}

function el(tag, attrs, children) {
  const node = document.createElement(tag);
  for (const [k, v] of Object.entries(attrs || {})) {
    if (k === "text") node.textContent = v;
    else if (k.startsWith("on")) node.addEventListener(k.slice(2), v);
    else node.setAttribute(k, v);
  }
  for (const c of children || []) node.appendChild(c);
  return node;
}

function renderNav() {
  const nav = document.getElementById("nav-user");
  nav.innerHTML = "";
  const user = load("user", null);
  if (user) {
    nav.appendChild(el("a", { id: "favourites", href: "/favourites", text: "Favourites" }));
    nav.appendChild(el("span", { class: "username", text: user }));
  } else {
    nav.appendChild(el("a", { id: "signin", href: "/signin", text: "Sign In" }));
  }
}

function card(p) {
  const hearted = () => load("favourites", []).includes(p.id);
  const button = el("button", {
    "aria-label": "favourite",
    text: hearted() ? "♥" : "♡",
    onclick: () => {
      const current = load("favourites", []);
      const next = current.includes(p.id) ? current.filter((id) => id !== p.id) : current.concat([p.id]);
      save("favourites", next);
      button.textContent = hearted() ? "♥" : "♡";
    },
  });
  return el("div", { class: "shelf-item", id: p.id }, [
    el("div", { class: "shelf-stopper" }, [button]),
    el("p", { class: "shelf-item__title", text: p.name }),
  ]);
}

function renderShelf(app) {
  const brands = [...new Set(PRODUCTS.map((p) => p.brand))];
  const selected = load("brands", []);
  const filters = el("div", { class: "filters" }, brands.map((b) =>
    el("div", { class: "filters-available-size" }, [
      el("label", {}, [
        el("input", {
          type: "checkbox",
          value: b,
          onchange: (e) => {
            const cur = load("brands", []);
            save("brands", e.target.checked ? cur.concat([b]) : cur.filter((x) => x !== b));
            render();
          },
        }),
        el("span", { class: "checkmark", text: b }),
      ]),
    ])));
  for (const input of filters.querySelectorAll("input")) {
    input.checked = selected.includes(input.value);
  }
  const visible = PRODUCTS.filter((p) => selected.length === 0 || selected.includes(p.brand));
  app.appendChild(filters);
  app.appendChild(el("div", { class: "shelf-container" }, visible.map(card)));
}

function picker(id, inputID, key) {
  const input = el("input", { id: inputID, type: "text", autocomplete: "off" });
  const chosen = el("span", { class: "chosen" });
  input.addEventListener("keydown", (e) => {
    if (e.key === "Enter") {
      picks[key] = input.value;
      chosen.textContent = input.value;
      input.value = "";
    }
  });
  return el("div", { id: id, class: "select", onclick: () => input.focus() }, [chosen, input]);
}

function renderSignIn(app) {
  const error = el("h3", { class: "api-error" });
  app.appendChild(el("form", { onsubmit: (e) => e.preventDefault() }, [
    picker("username", "react-select-2-input", "user"),
    picker("password", "react-select-3-input", "pass"),
    error,
    el("button", {
      id: "login-btn",
      type: "button",
      text: "Log In",
      onclick: () => {
        if (picks.user === ACCOUNT.user && picks.pass === ACCOUNT.pass) {
          save("user", picks.user);
          window.location.assign("/?signin=true");
        } else {
          error.textContent = "Invalid Username";
        }
      },
    }),
  ]));
}

function renderFavourites(app) {
  const favs = load("favourites", []);
  app.appendChild(el("div", { class: "shelf-container" }, PRODUCTS.filter((p) => favs.includes(p.id)).map(card)));
}

function render() {
  renderNav();
  const app = document.getElementById("app");
  app.innerHTML = "";
  switch (window.location.pathname) {
  case "/signin":
    renderSignIn(app);
    break;
  case "/favourites":
    renderFavourites(app);
    break;
  default:
    renderShelf(app);
  }
}

render();
</script>
</body>
</html>
`
