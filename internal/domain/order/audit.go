package order

import (
	"context"
	"fmt"
	"time"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
)

type auditWriter struct {
	now func() time.Time
}

func (w auditWriter) write(ctx context.Context, tx Tx, orderID int64, action Action, details Details) error {
	if _, err := tx.AppendLog(ctx, LogEntry{
		OrderID:   orderID,
		Action:    action,
		Details:   details,
		CreatedAt: w.now(),
	}); err != nil {
		return fmt.Errorf("append %s log: %w", action, err)
	}
	return nil
}

func createDetails(table, itemCount int, subtotal money.Amount) Details {
	return Details{
		"tableNumber": table,
		"itemCount":   itemCount,
		"subtotal":    subtotal.String(),
	}
}

func addItemsDetails(batch, itemCount int, subtotal money.Amount) Details {
	return Details{
		"batchSequence": batch,
		"itemCount":     itemCount,
		"subtotal":      subtotal.String(),
	}
}

func confirmDetails(activeItems int, subtotal money.Amount) Details {
	return Details{
		"activeItemCount": activeItems,
		"subtotal":        subtotal.String(),
	}
}

func voidDetails(it Item, subtotal money.Amount) Details {
	return Details{
		"itemId":      it.ID,
		"productName": it.ProductName,
		"quantity":    it.Quantity,
		"unitPrice":   it.PricePerUnit.String(),
		"reason":      it.VoidReason,
		"subtotal":    subtotal.String(),
	}
}

func quantityDetails(it Item, previous int, subtotal money.Amount) Details {
	return Details{
		"itemId":           it.ID,
		"productName":      it.ProductName,
		"previousQuantity": previous,
		"quantity":         it.Quantity,
		"subtotal":         subtotal.String(),
	}
}

func checkoutDetails(t money.Totals, d *money.Discount) Details {
	details := Details{
		"subtotal":       t.Subtotal.String(),
		"discountType":   nil,
		"discountValue":  nil,
		"discountAmount": t.Discount.String(),
		"grandTotal":     t.GrandTotal.String(),
	}
	if d != nil {
		details["discountType"] = string(d.Type)
		details["discountValue"] = money.Amount(d.Value).String()
	}
	return details
}

func cancelDetails(previous Status, grandTotal money.Amount, reason string) Details {
	details := Details{
		"previousStatus": string(previous),
		"grandTotal":     grandTotal.String(),
	}
	if reason != "" {
		details["reason"] = reason
	}
	return details
}
