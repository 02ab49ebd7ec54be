package notify

import (
	"bytes"
	"html/template"
	"time"

	"subscription_live/internal/models"
)

var funcs = template.FuncMap{
	"money": formatTaka,
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006") },
	"short": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
}

const layoutStart = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f5f5f5;">
<table role="presentation" style="width:100%;border-collapse:collapse;"><tr><td style="padding:40px 20px;">
<table role="presentation" style="max-width:600px;margin:0 auto;background-color:#ffffff;border-radius:12px;">
<tr><td style="background:linear-gradient(135deg,#e2136e 0%,#8a1c4a 100%);padding:32px;text-align:center;border-radius:12px 12px 0 0;">
<h1 style="margin:0;color:#ffffff;font-size:26px;">{{.Title}}</h1></td></tr>
<tr><td style="padding:30px;color:#333333;font-size:15px;line-height:1.6;">`

const layoutEnd = `</td></tr>
<tr><td style="padding:24px;background-color:#f8f9fa;border-radius:0 0 12px 12px;text-align:center;color:#999999;font-size:12px;">
This email was sent automatically, please do not reply.</td></tr>
</table></td></tr></table></body></html>`

var orderTmpl = template.Must(template.New("order").Funcs(funcs).Parse(layoutStart + `
<p>Hi,</p>
<p>Your payment for order <strong>#{{short .Order.ID.String}}</strong> was received.</p>
<table style="width:100%;border-collapse:collapse;margin:20px 0;">
<thead><tr style="background-color:#f0f0f0;">
<th style="padding:8px;text-align:left;border:1px solid #ddd;">Plan</th>
<th style="padding:8px;text-align:left;border:1px solid #ddd;">Valid until</th>
<th style="padding:8px;text-align:right;border:1px solid #ddd;">Price</th></tr></thead>
<tbody>{{range .Order.Items}}<tr>
<td style="padding:8px;border:1px solid #ddd;">{{.Name}}{{if eq .GrantStatus "grant_pending"}} <em>(access being prepared)</em>{{end}}</td>
<td style="padding:8px;border:1px solid #ddd;">{{if .ExpireDate}}{{date .ExpireDate}}{{else}}-{{end}}</td>
<td style="padding:8px;border:1px solid #ddd;text-align:right;">{{money .Price}}</td></tr>{{end}}</tbody>
<tfoot>
{{if gt .Order.Discount 0.0}}<tr><td colspan="2" style="padding:8px;text-align:right;">Discount{{if .Order.CouponCode}} ({{.Order.CouponCode}}){{end}}:</td><td style="padding:8px;text-align:right;">-{{money .Order.Discount}}</td></tr>{{end}}
<tr><td colspan="2" style="padding:8px;text-align:right;font-weight:bold;">Total:</td><td style="padding:8px;text-align:right;font-weight:bold;">{{money .Order.Total}}</td></tr>
</tfoot></table>
{{if .Order.TrxID}}<p>Transaction ID: {{.Order.TrxID}}</p>{{end}}
<p>Your login details are available in <a href="{{.Link}}">your subscriptions</a>.</p>` + layoutEnd))

var reminderTmpl = template.Must(template.New("reminder").Funcs(funcs).Parse(layoutStart + `
<p>Hi,</p>
<p>Your <strong>{{.Sub.ProductName}}</strong> subscription ends on <strong>{{date .Sub.ExpireDate}}</strong>.</p>
<p>Renew now to keep your access without interruption.</p>
<p style="text-align:center;margin:30px 0;"><a href="{{.Link}}" style="display:inline-block;padding:14px 32px;background-color:#e2136e;color:#ffffff;text-decoration:none;border-radius:6px;font-weight:600;">Renew subscription</a></p>` + layoutEnd))

var refundTmpl = template.Must(template.New("refund").Funcs(funcs).Parse(layoutStart + `
<p>Hi,</p>
<p>Order <strong>#{{short .Order.ID.String}}</strong> was refunded. {{money .Order.Total}} will be returned to your original payment method.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>The subscriptions of this order have been cancelled.</p>` + layoutEnd))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func OrderConfirmationHTML(order models.Order, link string) (string, error) {
	return render(orderTmpl, map[string]any{"Title": "Payment confirmed", "Order": order, "Link": link})
}

func ExpiryReminderHTML(sub models.Subscription, link string) (string, error) {
	return render(reminderTmpl, map[string]any{"Title": "Your subscription is ending soon", "Sub": sub, "Link": link})
}

func RefundHTML(order models.Order, reason string) (string, error) {
	return render(refundTmpl, map[string]any{"Title": "Refund processed", "Order": order, "Reason": reason})
}
