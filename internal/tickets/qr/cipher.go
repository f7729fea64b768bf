package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	KeySize   = 32
	ivSize    = 12
	tagSize   = 16
	separator = ":"

	// minKeyEntropy is the Shannon entropy floor, in bits per character.
	minKeyEntropy = 3.0
	// maxRun is the longest tolerated run of repeated or consecutive characters.
	maxRun = 3
)

var (
	ErrInvalidCode = errors.New("invalid or tampered code")

	ErrKeyLength     = fmt.Errorf("qr key must be exactly %d characters", KeySize)
	ErrKeyEntropy    = errors.New("qr key entropy too low")
	ErrKeySequential = errors.New("qr key contains a trivially sequential or repeated pattern")
)

// Cipher seals QR payloads with AES-256-GCM. The envelope is hex(iv):hex(tag):hex(ciphertext).
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

func NewCipher(key string) (*Cipher, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, separator), nil
}

// Decrypt returns ErrInvalidCode for every failure so callers cannot tell a
// malformed envelope from a forged one.
func (c *Cipher) Decrypt(envelope string) ([]byte, error) {
	parts := strings.Split(strings.TrimSpace(envelope), separator)
	if len(parts) != 3 {
		return nil, ErrInvalidCode
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return nil, ErrInvalidCode
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, ErrInvalidCode
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidCode
	}

	plaintext, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, ErrInvalidCode
	}
	return plaintext, nil
}

// ValidateKey is run once at startup; the service refuses to boot on a weak key.
func ValidateKey(key string) error {
	if len(key) != KeySize {
		return ErrKeyLength
	}
	if shannonEntropy(key) < minKeyEntropy {
		return ErrKeyEntropy
	}
	if hasRun(key) {
		return ErrKeySequential
	}
	return nil
}

func shannonEntropy(s string) float64 {
	counts := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	var h float64
	n := float64(len(s))
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// hasRun detects "aaaa", "abcd" and "4321" style runs longer than maxRun.
func hasRun(s string) bool {
	same, up, down := 1, 1, 1
	for i := 1; i < len(s); i++ {
		d := int(s[i]) - int(s[i-1])
		same = bump(d == 0, same)
		up = bump(d == 1, up)
		down = bump(d == -1, down)
		if same > maxRun || up > maxRun || down > maxRun {
			return true
		}
	}
	return false
}

func bump(cond bool, n int) int {
	if cond {
		return n + 1
	}
	return 1
}
