package email

import (
	"fmt"
	"strings"
)

// BuildChargeExpiredBody builds the HTML body for the charge expiration alert
func BuildChargeExpiredBody(chargeID, externalKey, reason string, amountInCents int64, currency string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #c0392b; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Charge expired</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">A charge exhausted its processing retry window and was expired. Manual follow-up is required.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Charge</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; color: #666;">External key</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right; font-family: monospace;">%s</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; color: #666;">Amount</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s %s</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; color: #666;">Reason</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>
		</table>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically by the payment order service.
		</p>
	</div>
</body>
</html>`, chargeID, externalKey, formatAmount(amountInCents), currency, reason)
}

// BuildCreationRevokedBody builds the HTML body for the revoked-creation alert
func BuildCreationRevokedBody(applicationID, externalKey, reason string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #e67e22; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Client application creation revoked</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">A client application registration was rolled back. The caller may need to be informed.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Application</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; color: #666;">External key</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right; font-family: monospace;">%s</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee; color: #666;">Reason</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>
		</table>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically by the payment order service.
		</p>
	</div>
</body>
</html>`, applicationID, externalKey, reason)
}

// formatAmount renders cents as a decimal amount with comma separators
func formatAmount(amountInCents int64) string {
	units := amountInCents / 100
	cents := amountInCents % 100
	if cents < 0 {
		cents = -cents
	}

	str := fmt.Sprintf("%d", units)
	negative := strings.HasPrefix(str, "-")
	if negative {
		str = str[1:]
	}

	var result strings.Builder
	if negative {
		result.WriteString("-")
	}
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

	return fmt.Sprintf("%s.%02d", result.String(), cents)
}
