package payments

import (
	"context"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// apiTimeout caps every Stripe round trip. stripe-go's default client waits
// far longer than a fare hold is worth.
const apiTimeout = 10 * time.Second

// StripeClient is a thin wrapper around stripe-go for PaymentIntent
// hold/capture/cancel flows on ride fares.
type StripeClient struct{}

// NewStripeClient configures the stripe package-level key and returns a client.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	stripe.SetHTTPClient(&http.Client{Timeout: apiTimeout})
	return &StripeClient{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold funds.
// It returns the PaymentIntent ID on success.
func (s *StripeClient) Hold(ctx context.Context, amountCents int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent once the ride completes.
func (s *StripeClient) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

// Cancel releases the hold when a ride is cancelled before completion.
func (s *StripeClient) Cancel(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}
