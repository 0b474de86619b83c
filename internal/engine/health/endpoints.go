package health

// Well-known probe endpoints per provider. Connections whose provider is not
// listed here are marked unknown without any network contact; a connection's
// base_url override takes precedence when set.
var wellKnownEndpoints = map[string]string{
	"stripe":     "https://status.stripe.com/api/v2/status.json",
	"paypal":     "https://api.paypal.com/v1/notifications/webhooks-event-types",
	"square":     "https://connect.squareup.com/v2/locations",
	"shopify":    "https://status.shopify.com/api/v2/status.json",
	"twilio":     "https://status.twilio.com/api/v2/status.json",
	"sendgrid":   "https://status.sendgrid.com/api/v2/status.json",
	"slack":      "https://status.slack.com/api/v2.0.0/current",
	"mailchimp":  "https://status.mailchimp.com/api/v2/status.json",
	"quickbooks": "https://status.developer.intuit.com/api/v2/status.json",
}

func probeURL(provider, baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	return wellKnownEndpoints[provider]
}
