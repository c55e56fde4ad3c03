// internal/services/payment_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/models"
)

// Billing opens the charge for a subscription's current period and returns
// the processor's reference for it.
type Billing interface {
	ChargePeriod(ctx context.Context, sub *models.Subscription) (string, error)
}

// NewBilling returns Stripe billing when a secret key is configured.
func NewBilling(cfg config.PaymentConfig) Billing {
	if cfg.StripeSecretKey == "" {
		return NoopBilling{}
	}
	return NewStripeBilling(cfg)
}

type NoopBilling struct{}

func (NoopBilling) ChargePeriod(ctx context.Context, sub *models.Subscription) (string, error) {
	return "", nil
}

type StripeBilling struct {
	currency string
	timeout  time.Duration
}

func NewStripeBilling(cfg config.PaymentConfig) *StripeBilling {
	// Initialize Stripe
	stripe.Key = cfg.StripeSecretKey

	return &StripeBilling{
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
	}
}

// ChargePeriod creates a PaymentIntent for the plan price. The idempotency key
// is derived from the subscription and period, so a repeated rollover of the
// same period never opens a second charge.
func (b *StripeBilling) ChargePeriod(ctx context.Context, sub *models.Subscription) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(sub.PriceCents),
		Currency:    stripe.String(b.currency),
		Description: stripe.String(fmt.Sprintf("Care plan %s to %s", sub.PeriodStart.Format("2006-01-02"), sub.PeriodEnd.Format("2006-01-02"))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(billingKey(sub))
	params.AddMetadata("subscription_id", sub.ID.String())
	params.AddMetadata("patient_id", sub.PatientID.String())
	params.AddMetadata("period_start", sub.PeriodStart.Format(time.RFC3339))

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", &UpstreamUnavailableError{Service: "stripe", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"subscription_id":   sub.ID,
		"payment_intent_id": pi.ID,
		"status":            pi.Status,
	}).Info("Opened subscription payment intent")

	return pi.ID, nil
}

func billingKey(sub *models.Subscription) string {
	return fmt.Sprintf("subscription-%s-%s", sub.ID, sub.PeriodStart.Format("20060102"))
}
