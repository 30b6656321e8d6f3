package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
	"github.com/phongit-kha/pos-lmwn/pkg/httpmiddleware"
)

// errBadRequest marks malformed request syntax: bad JSON, path or query.
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

// statusOf maps an error to its HTTP status and public code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, product.ErrInvalid):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	}
	switch order.KindOf(err) {
	case order.KindValidation:
		return http.StatusBadRequest, "VALIDATION"
	case order.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case order.KindInvalidState:
		return http.StatusConflict, "INVALID_STATE"
	case order.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case order.KindTimeout:
		return http.StatusServiceUnavailable, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError renders err as the standard error envelope. Internal errors are
// logged and their message hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeErrorCode(w, r, status, code, publicMessage(msg))
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(code) })
					e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
					e.Field("requestId", func(e *jx.Encoder) {
						e.Str(httpmiddleware.RequestIDFromContext(r.Context()))
					})
				})
			})
		})
	})
}

// publicMessage strips the sentinel text that wrapping adds around the useful
// part: "validation failed: x" and "x: validation failed" both become "x".
func publicMessage(msg string) string {
	for _, sentinel := range []error{
		errBadRequest,
		order.ErrValidation,
		order.ErrInvalidState,
		order.ErrConflict,
		product.ErrInvalid,
	} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
		if rest, ok := strings.CutSuffix(msg, ": "+sentinel.Error()); ok {
			return rest
		}
	}
	return msg
}
