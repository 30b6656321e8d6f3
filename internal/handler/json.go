package handler

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, f func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	f(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody returns the request body, or nil when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequestf("read body: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// decodeObject decodes a required JSON object body, calling f per field.
func decodeObject(w http.ResponseWriter, r *http.Request, f func(d *jx.Decoder, key string) error) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if data == nil {
		return badRequestf("request body is required")
	}
	return decodeBytes(data, f)
}

func decodeBytes(data []byte, f func(d *jx.Decoder, key string) error) error {
	if err := jx.DecodeBytes(data).Obj(f); err != nil {
		if errors.Is(err, errBadRequest) {
			return err
		}
		return badRequestf("invalid JSON: %v", err)
	}
	return nil
}

// decodeInteger reads a whole number given either as a JSON number or as a
// decimal string. Money travels as strings, so both are accepted.
func decodeInteger(d *jx.Decoder, field string) (int64, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		raw = n.String()
	default:
		return 0, badRequestf("%s must be a number or a numeric string", field)
	}
	a, err := money.Parse(raw)
	if err != nil {
		return 0, badRequestf("%s: %v", field, err)
	}
	return int64(a), nil
}

func decodeInt(d *jx.Decoder, field string) (int, error) {
	v, err := decodeInteger(d, field)
	if err != nil {
		return 0, err
	}
	if v != int64(int(v)) {
		return 0, badRequestf("%s is out of range", field)
	}
	return int(v), nil
}

func decodeLines(d *jx.Decoder) ([]order.LineInput, error) {
	var lines []order.LineInput
	err := d.Arr(func(d *jx.Decoder) error {
		var l order.LineInput
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				l.ProductID, err = decodeInteger(d, "productId")
			case "quantity":
				l.Quantity, err = decodeInt(d, "quantity")
			default:
				return d.Skip()
			}
			return err
		})
		lines = append(lines, l)
		return err
	})
	return lines, err
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequestf("invalid %s %q", name, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequestf("invalid %s %q", name, raw)
	}
	return v, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates, the latter at
// midnight in loc.
func queryTime(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, badRequestf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", name, raw)
	}
	return t, nil
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeAmount(e *jx.Encoder, a money.Amount) {
	e.Str(a.String())
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
	e.Field("tableNumber", func(e *jx.Encoder) { e.Int(o.TableNumber) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("subtotal", func(e *jx.Encoder) { encodeAmount(e, o.Subtotal) })
	e.Field("discountType", func(e *jx.Encoder) {
		if o.Discount == nil {
			e.Null()
			return
		}
		e.Str(string(o.Discount.Type))
	})
	e.Field("discountValue", func(e *jx.Encoder) {
		if o.Discount == nil {
			e.Null()
			return
		}
		e.Str(strconv.FormatInt(o.Discount.Value, 10))
	})
	e.Field("discountAmount", func(e *jx.Encoder) {
		encodeAmount(e, money.DiscountAmount(o.Subtotal, o.Discount))
	})
	e.Field("grandTotal", func(e *jx.Encoder) { encodeAmount(e, o.GrandTotal) })
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it order.Item) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
	e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
	e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
	e.Field("pricePerUnit", func(e *jx.Encoder) { encodeAmount(e, it.PricePerUnit) })
	e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
	e.Field("total", func(e *jx.Encoder) { encodeAmount(e, it.Total()) })
	e.Field("batchSequence", func(e *jx.Encoder) { e.Int(it.BatchSequence) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(it.Status)) })
	if it.VoidReason != "" {
		e.Field("voidReason", func(e *jx.Encoder) { e.Str(it.VoidReason) })
	}
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, it.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, it.UpdatedAt) })
	e.ObjEnd()
}

func encodeLog(e *jx.Encoder, l order.LogEntry) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
	e.Field("action", func(e *jx.Encoder) { e.Str(string(l.Action)) })
	e.Field("details", func(e *jx.Encoder) { encodeValue(e, map[string]any(l.Details)) })
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, l.CreatedAt) })
	e.ObjEnd()
}

// encodeAggregate writes the order fields with its items and, when loaded,
// its audit trail.
func encodeAggregate(e *jx.Encoder, agg *order.Aggregate) {
	e.ObjStart()
	e.Field("order", func(e *jx.Encoder) { encodeOrder(e, agg.Order) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range agg.Items {
			encodeItem(e, it)
		}
		e.ArrEnd()
	})
	if agg.Logs != nil {
		e.Field("logs", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range agg.Logs {
				encodeLog(e, l)
			}
			e.ArrEnd()
		})
	}
	e.ObjEnd()
}

// encodeValue writes audit detail values as decoded from JSONB or built in
// memory.
func encodeValue(e *jx.Encoder, v any) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case string:
		e.Str(v)
	case bool:
		e.Bool(v)
	case int:
		e.Int(v)
	case int64:
		e.Int64(v)
	case float64:
		e.Float64(v)
	case money.Amount:
		encodeAmount(e, v)
	case map[string]any:
		e.ObjStart()
		for _, k := range slices.Sorted(maps.Keys(v)) {
			e.Field(k, func(e *jx.Encoder) { encodeValue(e, v[k]) })
		}
		e.ObjEnd()
	case []any:
		e.ArrStart()
		for _, x := range v {
			encodeValue(e, x)
		}
		e.ArrEnd()
	default:
		e.Str(fmt.Sprint(v))
	}
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	e.Field("price", func(e *jx.Encoder) { encodeAmount(e, p.Price) })
	e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
	e.Field("isActive", func(e *jx.Encoder) { e.Bool(p.IsActive) })
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	e.ObjEnd()
}
