package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

// productPatch holds the fields present in a product request body.
type productPatch struct {
	Name     *string
	Price    *money.Amount
	Category *string
	IsActive *bool
}

func (p productPatch) apply(dst *product.Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.IsActive != nil {
		dst.IsActive = *p.IsActive
	}
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (productPatch, error) {
	var p productPatch
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			s, err := d.Str()
			p.Name = &s
			return err
		case "price":
			v, err := decodeInteger(d, "price")
			a := money.Amount(v)
			p.Price = &a
			return err
		case "category":
			s, err := d.Str()
			p.Category = &s
			return err
		case "isActive":
			b, err := d.Bool()
			p.IsActive = &b
			return err
		default:
			return d.Skip()
		}
	})
	return p, err
}

// ListProducts returns the catalogue, optionally filtered by category and
// active flag.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f := product.ListFilter{Category: r.URL.Query().Get("category")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, badRequestf("invalid active %q", raw))
			return
		}
		f.ActiveOnly = active
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	page, err := h.products.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range page.Items {
				encodeProduct(e, p)
			}
			e.ArrEnd()
		})
		e.Field("total", func(e *jx.Encoder) { e.Int(page.Total) })
		e.ObjEnd()
	})
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

// CreateProduct adds a product. Products are active unless the body says
// otherwise.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeProduct(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Price == nil {
		writeError(w, r, badRequestf("price is required"))
		return
	}
	p := product.Product{IsActive: true}
	patch.apply(&p)
	if err := product.Validate(&p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// UpdateProduct changes the given fields of a product. Items already on
// orders keep the name and price they were added with.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := decodeProduct(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch.apply(p)
	if err := product.Validate(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Update(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}
