package qr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Payload is the JSON document sealed inside every ticket QR code.
type Payload struct {
	TicketCode string    `json:"ticketCode"`
	OrderID    string    `json:"orderId"`
	ValidUntil time.Time `json:"validUntil"`
	MaxScans   int       `json:"maxScans"`
	Session    string    `json:"session,omitempty"`
	IssuedAt   time.Time `json:"issuedAt"`
}

type QRGenerator struct {
	cipher *Cipher
	size   int
}

func NewQRGenerator(key string) (*QRGenerator, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{cipher: c, size: defaultSize}, nil
}

// Seal encrypts the payload into the envelope string carried by the QR image.
func (q *QRGenerator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return q.cipher.Encrypt(data)
}

// Open reverses Seal. Any failure is reported as ErrInvalidCode.
func (q *QRGenerator) Open(envelope string) (*Payload, error) {
	data, err := q.cipher.Decrypt(envelope)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil || p.TicketCode == "" {
		return nil, ErrInvalidCode
	}
	return &p, nil
}

// GenerateEncryptedQR seals the payload and renders it as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(p Payload) ([]byte, error) {
	envelope, err := q.Seal(p)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(envelope, qrcode.Medium, q.size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
