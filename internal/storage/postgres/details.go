package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

// decodeDetails reads a JSONB audit payload. Whole numbers come back as
// int64 so ids and counts survive the round trip exactly.
func decodeDetails(raw []byte) (order.Details, error) {
	if len(raw) == 0 {
		return order.Details{}, nil
	}
	v, err := decodeJSONValue(jx.DecodeBytes(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decode details")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Errorf("details must be an object, got %T", v)
	}
	return order.Details(m), nil
}

func decodeJSONValue(d *jx.Decoder) (any, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Bool:
		return d.Bool()
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		if n.IsInt() {
			return n.Int64()
		}
		return n.Float64()
	case jx.Array:
		out := []any{}
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeJSONValue(d)
			out = append(out, v)
			return err
		})
		return out, err
	case jx.Object:
		out := map[string]any{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			v, err := decodeJSONValue(d)
			out[key] = v
			return err
		})
		return out, err
	default:
		return nil, errors.New("unexpected json token")
	}
}
