package email

import (
	"fmt"
	"strings"
	"time"
)

// OrderItem represents a line item for email purposes
type OrderItem struct {
	SKU       string
	Quantity  int
	UnitPrice int
}

func itemsTableHTML(items []OrderItem) string {
	var itemsHTML strings.Builder
	for _, item := range items {
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; font-family: monospace;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			item.SKU,
			item.Quantity,
			formatNumber(item.UnitPrice),
			formatNumber(item.UnitPrice*item.Quantity),
		))
	}
	return itemsHTML.String()
}

func wrapBody(heading, inner string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		%s

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message from the supply chain reconciliation service.
		</p>
	</div>
</body>
</html>`, heading, inner)
}

// BuildDeliveryAlertBody builds the HTML body for a shipment delivered alert
func BuildDeliveryAlertBody(orderID, shipmentID, location string, items []OrderItem) string {
	inner := fmt.Sprintf(`<p style="margin-top: 0;">Shipment <strong style="font-family: monospace;">%s</strong> has been delivered to <strong>%s</strong>. Inventory has been credited and the payment is now due.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Delivered items</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">SKU</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Unit price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>`, shipmentID, location, orderID, itemsTableHTML(items))
	return wrapBody("Shipment delivered", inner)
}

// BuildOverdueAlertBody builds the HTML body for a payment overdue alert
func BuildOverdueAlertBody(orderID string, amount int, dueAt time.Time) string {
	inner := fmt.Sprintf(`<p style="margin-top: 0;">The payment for order <strong style="font-family: monospace;">%s</strong> was due on %s and has not been recorded.</p>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Outstanding amount</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">%s</span>
		</div>`, orderID, dueAt.Format("2006-01-02"), formatNumber(amount))
	return wrapBody("Payment overdue", inner)
}

// BuildReturnApprovedBody builds the HTML body for a return approved alert
func BuildReturnApprovedBody(returnID, orderID, sku string, quantity, refund int) string {
	inner := fmt.Sprintf(`<p style="margin-top: 0;">Return <strong style="font-family: monospace;">%s</strong> on order <strong style="font-family: monospace;">%s</strong> has been approved. Inventory has been debited and the payment adjusted.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Returned</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold;"><span style="font-family: monospace;">%s</span> &times; %d</p>
		</div>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Credited amount</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">%s</span>
		</div>`, returnID, orderID, sku, quantity, formatNumber(refund))
	return wrapBody("Return approved", inner)
}

// formatNumber formats a number with comma separators
func formatNumber(n int) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	remainder := len(str) % 3
	if remainder > 0 {
		result.WriteString(str[:remainder])
		if len(str) > remainder {
			result.WriteString(",")
		}
	}

	for i := remainder; i < len(str); i += 3 {
		result.WriteString(str[i : i+3])
		if i+3 < len(str) {
			result.WriteString(",")
		}
	}

	return result.String()
}
