package tickets

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet drops 0/O and 1/I so codes survive being read aloud at the gate.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateCode returns a code shaped like PB-7KQ2-M9XD.
func GenerateCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return fmt.Sprintf("PB-%s-%s", buf[:4], buf[4:]), nil
}
