package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
)

var ErrUnsupportedProvider = errors.New("payments not supported for provider")

type PaymentRequest struct {
	ConnectionID string            `json:"connectionId"`
	Amount       float64           `json:"amount"`
	Currency     string            `json:"currency"`
	OrderID      string            `json:"orderId"`
	CustomerID   string            `json:"customerId,omitempty"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ProcessPayment shapes a charge request for the connection's provider and
// sends it through the regular forwarding path, so rate limits, credential
// injection, and logging all apply.
func (s *Service) ProcessPayment(ctx context.Context, req *PaymentRequest) (*Response, error) {
	conn, err := s.conns.GetByID(req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}

	endpoint, body, err := buildChargeRequest(conn.Provider, req)
	if err != nil {
		return nil, err
	}

	return s.Forward(ctx, &Request{
		ConnectionID: req.ConnectionID,
		Method:       http.MethodPost,
		Endpoint:     endpoint,
		Body:         body,
	})
}

func buildChargeRequest(provider string, req *PaymentRequest) (string, json.RawMessage, error) {
	switch provider {
	case "stripe":
		body, _ := json.Marshal(map[string]interface{}{
			"amount":      int64(math.Round(req.Amount * 100)), // minor units
			"currency":    req.Currency,
			"customer":    req.CustomerID,
			"description": req.Description,
			"metadata":    req.Metadata,
		})
		return "/v1/charges", body, nil
	case "paypal":
		body, _ := json.Marshal(map[string]interface{}{
			"intent": "CAPTURE",
			"purchase_units": []map[string]interface{}{{
				"reference_id": req.OrderID,
				"amount": map[string]string{
					"currency_code": req.Currency,
					"value":         fmt.Sprintf("%.2f", req.Amount),
				},
			}},
		})
		return "/v2/checkout/orders", body, nil
	case "square":
		body, _ := json.Marshal(map[string]interface{}{
			"idempotency_key": req.OrderID,
			"amount_money": map[string]interface{}{
				"amount":   int64(math.Round(req.Amount * 100)),
				"currency": req.Currency,
			},
			"note": req.Description,
		})
		return "/v2/payments", body, nil
	default:
		return "", nil, fmt.Errorf("%w %q", ErrUnsupportedProvider, provider)
	}
}
