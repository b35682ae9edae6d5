package www

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"storedesk/fulfillment"
	"storedesk/store"
)

func (h *Handlers) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.DB().ListProducts()
	data := map[string]any{
		"Page":      "products",
		"Products":  products,
		"Threshold": h.engine.LowStockThreshold(),
	}
	h.renderPage(w, r, "products.html", data, err, "Failed to load products")
}

func (h *Handlers) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, msg := productFromForm(r)
	if msg != "" {
		redirectWithError(w, r, "/products", msg)
		return
	}
	if stock := strings.TrimSpace(r.FormValue("stock")); stock != "" {
		n, err := strconv.Atoi(stock)
		if err != nil || n < 0 {
			redirectWithError(w, r, "/products", "Stock must be a whole number of zero or more")
			return
		}
		p.Stock = n
	}
	h.saveProduct(w, r, p)
}

func (h *Handlers) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, msg := productFromForm(r)
	if msg != "" {
		redirectWithError(w, r, "/products", msg)
		return
	}
	p.ID = chi.URLParam(r, "id")
	h.saveProduct(w, r, p)
}

func (h *Handlers) saveProduct(w http.ResponseWriter, r *http.Request, p *store.Product) {
	err := h.engine.Fulfillment().SaveProduct(r.Context(), p, h.getUsername(r))
	switch {
	case err == nil:
		http.Redirect(w, r, "/products", http.StatusSeeOther)
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, fulfillment.ErrInvalidProduct):
		redirectWithError(w, r, "/products", "Products need a name and a price of zero or more")
	default:
		log.Printf("www: save product %s: %v", p.ID, err)
		redirectWithError(w, r, "/products", "Failed to save product")
	}
}

func (h *Handlers) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.engine.Fulfillment().DeleteProduct(r.Context(), id, h.getUsername(r))
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		http.Redirect(w, r, "/products", http.StatusSeeOther)
	default:
		log.Printf("www: delete product %s: %v", id, err)
		redirectWithError(w, r, "/products", "Failed to delete product")
	}
}

// productFromForm reads the catalogue fields. A non-empty message means the form was invalid.
func productFromForm(r *http.Request) (*store.Product, string) {
	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		return nil, "Price must be a number"
	}
	return &store.Product{
		Name:        r.FormValue("name"),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		Price:       price,
	}, ""
}
