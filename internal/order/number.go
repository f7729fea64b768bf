package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var orderSeq atomic.Uint32

// GenerateOrderNumber builds ORD-<base36 millis>-<seq><random>. The per-process
// sequence keeps numbers minted in the same millisecond apart; the random tail
// separates instances.
func GenerateOrderNumber() (string, error) {
	millis := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	seq := orderSeq.Add(1) % (36 * 36)

	var b strings.Builder
	b.WriteByte(numberAlphabet[seq/36])
	b.WriteByte(numberAlphabet[seq%36])
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(numberAlphabet[n.Int64()])
	}
	return fmt.Sprintf("ORD-%s-%s", millis, b.String()), nil
}
