package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const paystackSignatureHeader = "X-Paystack-Signature"

// Paystack drives the hosted checkout at api.paystack.co.
type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewPaystack(secretKey, baseURL string, timeout time.Duration) *Paystack {
	return &Paystack{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *Paystack) Name() string { return "paystack" }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Channel   string `json:"channel"`
	Metadata  struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

func (p *Paystack) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	reference := fmt.Sprintf("%s-%d", req.OrderNumber, time.Now().UnixMilli())
	body := map[string]any{
		"email":        req.Email,
		"amount":       minorUnits(req.Amount),
		"currency":     req.Currency,
		"reference":    reference,
		"callback_url": req.CallbackURL,
		"metadata":     map[string]string{"order_id": req.OrderID, "order_number": req.OrderNumber},
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	if err := p.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}
	if data.Reference == "" {
		data.Reference = reference
	}
	return &Charge{Reference: data.Reference, AuthorizationURL: data.AuthorizationURL}, nil
}

func (p *Paystack) VerifyCharge(ctx context.Context, reference string) (*Verification, error) {
	var tx paystackTransaction
	if err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &tx); err != nil {
		return nil, fmt.Errorf("paystack verify %s: %w", reference, err)
	}
	return &Verification{
		Reference: tx.Reference,
		OrderID:   tx.Metadata.OrderID,
		Paid:      tx.Status == "success",
		Amount:    fromMinorUnits(tx.Amount),
		Method:    "paystack:" + tx.Channel,
		Status:    tx.Status,
	}, nil
}

func (p *Paystack) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if !p.validSignature(payload, header.Get(paystackSignatureHeader)) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		Event string              `json:"event"`
		Data  paystackTransaction `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode paystack event: %w", err)
	}

	out := &WebhookEvent{Type: event.Event}
	if event.Event == "charge.success" {
		out.Reference = event.Data.Reference
		out.OrderID = event.Data.Metadata.OrderID
	}
	return out, nil
}

func (p *Paystack) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

func (p *Paystack) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrChargeNotFound
	}
	var env paystackEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
