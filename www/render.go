package www

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"storedesk/store"
)

type pageTemplate struct {
	tmpl *template.Template
	root string
}

// Pages rendered inside the navigation shell. The login page stands alone.
var shellPages = []string{
	"dashboard.html",
	"orders.html",
	"order_detail.html",
	"products.html",
	"customers.html",
	"analytics.html",
	"inventory.html",
	"settings.html",
}

var templateFuncs = template.FuncMap{
	"money": formatMoney,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Jan 2, 2006")
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Jan 2, 2006 15:04")
	},
	"shortID": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"pct":          percent,
	"maxRevenue":   maxRevenue,
	"segmentTotal": segmentTotal,
}

func mustParsePages() map[string]*pageTemplate {
	pages := make(map[string]*pageTemplate, len(shellPages)+1)
	for _, name := range shellPages {
		t := template.Must(template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
		pages[name] = &pageTemplate{tmpl: t, root: "layout"}
	}
	login := template.Must(template.New("login.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/login.html"))
	pages["login.html"] = &pageTemplate{tmpl: login, root: "login.html"}
	return pages
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	h.renderStatus(w, r, http.StatusOK, name, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	p, ok := h.pages[name]
	if !ok {
		log.Printf("www: unknown template %s", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, ok := data["User"]; !ok {
		data["User"] = h.getUsername(r)
	}
	data["Authenticated"] = data["User"] != ""
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, p.root, data); err != nil {
		log.Printf("www: render %s: %v", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Page states. A page is rendered once its read has finished, so it is
// either loaded or failed; the loading state only exists on live streams.
const (
	stateSuccess = "success"
	stateError   = "error"
)

// renderPage renders a data page. A non-nil loadErr is logged and replaced by
// failMsg so storage details never reach the browser.
func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, name string, data map[string]any, loadErr error, failMsg string) {
	if loadErr != nil {
		log.Printf("www: %s: %v", strings.TrimSuffix(name, ".html"), loadErr)
		data["State"] = stateError
		data["ErrorMessage"] = failMsg
	} else {
		data["State"] = stateSuccess
	}
	if flash := r.URL.Query().Get("error"); flash != "" {
		data["Flash"] = flash
	}
	h.render(w, r, name, data)
}

func formatMoney(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	s := fmt.Sprintf("$%s.%02d", b.String(), cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// percent returns v as a whole-number share of max, clamped to 0..100.
func percent(v, max any) int {
	fv, fm := toFloat(v), toFloat(max)
	if fm <= 0 {
		return 0
	}
	p := int(math.Round(fv / fm * 100))
	if p > 100 {
		return 100
	}
	return p
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func maxRevenue(days []store.DaySales) float64 {
	var m float64
	for _, d := range days {
		if d.Revenue > m {
			m = d.Revenue
		}
	}
	return m
}

func segmentTotal(segs []store.CustomerSegment) float64 {
	var n int64
	for _, s := range segs {
		n += s.CustomerCount
	}
	return float64(n)
}
