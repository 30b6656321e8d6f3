package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return decodeProducts(r)
}

// decodeProducts reads a JSON array of products. Prices are minor units,
// given as a number or a string; isActive defaults to true.
func decodeProducts(r io.Reader) ([]product.Product, error) {
	var out []product.Product
	d := jx.Decode(r, 4096)
	err := d.Arr(func(d *jx.Decoder) error {
		p := product.Product{IsActive: true}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				p.Name, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "isActive":
				p.IsActive, err = d.Bool()
			case "price":
				p.Price, err = decodePrice(d)
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "product #%d", len(out)+1)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

func decodePrice(d *jx.Decoder) (money.Amount, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return money.Parse(s)
	}
	n, err := d.Num()
	if err != nil {
		return 0, err
	}
	return money.Parse(n.String())
}
