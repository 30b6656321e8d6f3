package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

// CreateOrder opens an order for a table with its first batch of items.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "tableNumber":
			req.TableNumber, err = decodeInt(d, "tableNumber")
		case "items":
			req.Items, err = decodeLines(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	agg, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusCreated, agg)
}

// GetOrder returns an order with its items and audit trail.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	agg, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// ListOrders returns a page of orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r, h.reports.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, o := range page.Items {
				encodeOrder(e, o)
			}
			e.ArrEnd()
		})
		e.Field("total", func(e *jx.Encoder) { e.Int(page.Total) })
		e.ObjEnd()
	})
}

// AddItems appends a new batch to an order.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var lines []order.LineInput
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		var err error
		lines, err = decodeLines(d)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	agg, err := h.orders.AddItems(r.Context(), id, lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// ConfirmOrder sends an OPEN order to the kitchen.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	agg, err := h.orders.Confirm(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// VoidItem voids one active item with a mandatory reason.
func (h *Handler) VoidItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var reason string
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "reason" {
			return d.Skip()
		}
		var err error
		reason, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	agg, err := h.orders.VoidItem(r.Context(), orderID, itemID, reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// UpdateItemQuantity sets the quantity of an item on an OPEN order.
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity := -1
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = decodeInt(d, "quantity")
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if quantity < 0 {
		writeError(w, r, badRequestf("quantity is required"))
		return
	}

	agg, err := h.orders.UpdateItemQuantity(r.Context(), orderID, itemID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// Checkout takes payment for a CONFIRMED order. The body is optional; without
// it no discount applies.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req order.CheckoutRequest
	if data != nil {
		err = decodeBytes(data, func(d *jx.Decoder, key string) error {
			switch key {
			case "discountType":
				if d.Next() == jx.Null {
					return d.Null()
				}
				s, err := d.Str()
				req.DiscountType = money.DiscountType(strings.ToUpper(s))
				return err
			case "discountValue":
				if d.Next() == jx.Null {
					return d.Null()
				}
				v, err := decodeInteger(d, "discountValue")
				req.DiscountValue = &v
				return err
			default:
				return d.Skip()
			}
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	agg, err := h.orders.Checkout(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// CancelOrder cancels an OPEN or CONFIRMED order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	agg, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAggregate(w, http.StatusOK, agg)
}

// CancelOrders cancels several orders atomically: either all of them are
// cancelled or none is.
func (h *Handler) CancelOrders(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "orderIds" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			id, err := decodeInteger(d, "orderIds")
			ids = append(ids, id)
			return err
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	aggs, err := h.orders.CancelMany(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("orders", func(e *jx.Encoder) {
			e.ArrStart()
			for i := range aggs {
				encodeAggregate(e, &aggs[i])
			}
			e.ArrEnd()
		})
		e.ObjEnd()
	})
}

func writeAggregate(w http.ResponseWriter, status int, agg *order.Aggregate) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeAggregate(e, agg) })
}

func itemPath(r *http.Request) (orderID, itemID int64, err error) {
	if orderID, err = pathID(r, "orderID"); err != nil {
		return 0, 0, err
	}
	if itemID, err = pathID(r, "itemID"); err != nil {
		return 0, 0, err
	}
	return orderID, itemID, nil
}

func orderFilter(r *http.Request, loc *time.Location) (order.ListFilter, error) {
	var (
		f   order.ListFilter
		err error
	)
	q := r.URL.Query()
	f.Status = order.Status(strings.ToUpper(q.Get("status")))
	if f.TableNumber, err = queryInt(r, "tableNumber"); err != nil {
		return f, err
	}
	if f.From, err = queryTime(r, "from", loc); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to", loc); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}
