package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/phongit-kha/pos-lmwn/internal/domain/report"
)

// reportRange reads from/to; plain dates are taken in the report time zone.
func (h *Handler) reportRange(r *http.Request) (report.Range, error) {
	loc := h.reports.Location()
	from, err := queryTime(r, "from", loc)
	if err != nil {
		return report.Range{}, err
	}
	to, err := queryTime(r, "to", loc)
	if err != nil {
		return report.Range{}, err
	}
	return report.Range{From: from, To: to}, nil
}

// writeRows encodes a report as {"items": [...]}.
func writeRows[T any](w http.ResponseWriter, rows []T, enc func(*jx.Encoder, T)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, row := range rows {
				enc(e, row)
			}
			e.ArrEnd()
		})
		e.ObjEnd()
	})
}

// SalesByDate reports revenue per day.
func (h *Handler) SalesByDate(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.reports.SalesByDate(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRows(w, rows, func(e *jx.Encoder, d report.DailySales) {
		e.ObjStart()
		e.Field("date", func(e *jx.Encoder) { e.Str(d.Date.Format("2006-01-02")) })
		e.Field("orders", func(e *jx.Encoder) { e.Int(d.Orders) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeAmount(e, d.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { encodeAmount(e, d.Discount) })
		e.Field("grandTotal", func(e *jx.Encoder) { encodeAmount(e, d.GrandTotal) })
		e.ObjEnd()
	})
}

// SalesByCategory reports revenue per product category.
func (h *Handler) SalesByCategory(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.reports.SalesByCategory(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRows(w, rows, func(e *jx.Encoder, c report.CategorySales) {
		e.ObjStart()
		e.Field("category", func(e *jx.Encoder) { e.Str(c.Category) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(c.Quantity) })
		e.Field("revenue", func(e *jx.Encoder) { encodeAmount(e, c.Revenue) })
		e.ObjEnd()
	})
}

// SalesByProduct reports the best selling products.
func (h *Handler) SalesByProduct(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.reports.SalesByProduct(r.Context(), rng, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRows(w, rows, encodeProductSales)
}

// SalesByHour reports revenue per hour of day.
func (h *Handler) SalesByHour(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.reports.SalesByHour(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRows(w, rows, func(e *jx.Encoder, s report.HourlySales) {
		e.ObjStart()
		e.Field("hour", func(e *jx.Encoder) { e.Int(s.Hour) })
		e.Field("orders", func(e *jx.Encoder) { e.Int(s.Orders) })
		e.Field("grandTotal", func(e *jx.Encoder) { encodeAmount(e, s.GrandTotal) })
		e.ObjEnd()
	})
}

// SalesByTable reports revenue per table.
func (h *Handler) SalesByTable(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.reports.SalesByTable(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRows(w, rows, func(e *jx.Encoder, t report.TableSales) {
		e.ObjStart()
		e.Field("tableNumber", func(e *jx.Encoder) { e.Int(t.TableNumber) })
		e.Field("orders", func(e *jx.Encoder) { e.Int(t.Orders) })
		e.Field("grandTotal", func(e *jx.Encoder) { encodeAmount(e, t.GrandTotal) })
		e.Field("averageTicket", func(e *jx.Encoder) { encodeAmount(e, t.AverageTicket) })
		e.ObjEnd()
	})
}

// VoidAnalysis reports voided items by reason and product.
func (h *Handler) VoidAnalysis(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	va, err := h.reports.VoidAnalysis(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("items", func(e *jx.Encoder) { e.Int(va.Items) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(va.Quantity) })
		e.Field("amount", func(e *jx.Encoder) { encodeAmount(e, va.Amount) })
		e.Field("byReason", func(e *jx.Encoder) {
			e.ArrStart()
			for _, v := range va.ByReason {
				e.ObjStart()
				e.Field("reason", func(e *jx.Encoder) { e.Str(v.Reason) })
				e.Field("items", func(e *jx.Encoder) { e.Int(v.Items) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(v.Quantity) })
				e.Field("amount", func(e *jx.Encoder) { encodeAmount(e, v.Amount) })
				e.ObjEnd()
			}
			e.ArrEnd()
		})
		e.Field("byProduct", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range va.ByProduct {
				encodeProductSales(e, p)
			}
			e.ArrEnd()
		})
		e.ObjEnd()
	})
}

// Summary reports headline figures.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.reports.Summary(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("paidOrders", func(e *jx.Encoder) { e.Int(s.PaidOrders) })
		e.Field("cancelledOrders", func(e *jx.Encoder) { e.Int(s.CancelledOrders) })
		e.Field("itemsSold", func(e *jx.Encoder) { e.Int(s.ItemsSold) })
		e.Field("grossSales", func(e *jx.Encoder) { encodeAmount(e, s.GrossSales) })
		e.Field("discounts", func(e *jx.Encoder) { encodeAmount(e, s.Discounts) })
		e.Field("netSales", func(e *jx.Encoder) { encodeAmount(e, s.NetSales) })
		e.Field("averageTicket", func(e *jx.Encoder) { encodeAmount(e, s.AverageTicket) })
		e.ObjEnd()
	})
}

func encodeProductSales(e *jx.Encoder, p report.ProductSales) {
	e.ObjStart()
	e.Field("productId", func(e *jx.Encoder) { e.Int64(p.ProductID) })
	e.Field("productName", func(e *jx.Encoder) { e.Str(p.ProductName) })
	e.Field("quantity", func(e *jx.Encoder) { e.Int(p.Quantity) })
	e.Field("revenue", func(e *jx.Encoder) { encodeAmount(e, p.Revenue) })
	e.ObjEnd()
}
