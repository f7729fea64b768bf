package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

const stripeSignatureHeader = "Stripe-Signature"

// Stripe collects payment through Checkout Sessions; the session id is the reference.
type Stripe struct {
	client        *client.API
	webhookSecret string
}

// NewStripe builds a client against the live API. backends may be nil.
func NewStripe(secretKey, webhookSecret string, backends *stripe.Backends) (*Stripe, error) {
	if secretKey == "" {
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, backends)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	return &Stripe{client: sc, webhookSecret: webhookSecret}, nil
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	successURL := req.CallbackURL
	if strings.Contains(successURL, "?") {
		successURL += "&reference={CHECKOUT_SESSION_ID}"
	} else {
		successURL += "?reference={CHECKOUT_SESSION_ID}"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(req.CallbackURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Paintball tickets " + req.OrderNumber),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &Charge{Reference: sess.ID, AuthorizationURL: sess.URL}, nil
}

func (s *Stripe) VerifyCharge(ctx context.Context, reference string) (*Verification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.client.CheckoutSessions.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("stripe get checkout session %s: %w", reference, err)
	}
	return sessionVerification(sess), nil
}

func sessionVerification(sess *stripe.CheckoutSession) *Verification {
	v := &Verification{
		Reference: sess.ID,
		OrderID:   sess.ClientReferenceID,
		Paid:      sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:    fromMinorUnits(sess.AmountTotal),
		Method:    "stripe",
		Status:    string(sess.PaymentStatus),
	}
	if v.OrderID == "" {
		v.OrderID = sess.Metadata["order_id"]
	}
	if len(sess.PaymentMethodTypes) > 0 {
		v.Method = "stripe:" + sess.PaymentMethodTypes[0]
	}
	return v
}

func (s *Stripe) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if event.Type == stripe.EventTypeCheckoutSessionCompleted {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Reference = sess.ID
		out.OrderID = sess.ClientReferenceID
	}
	return out, nil
}
