// Package idgen generates the short identifiers and timestamps used
// throughout hopper: lode ids, backlog item ids, and branch/window slugs.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// Alphabet is the 32-character set ids are drawn from: the 26
	// lowercase letters plus the digits 2-7 (0, 1, 8 and 9 are left out).
	Alphabet = "abcdefghijklmnopqrstuvwxyz234567"
	// Length is the fixed length of a lode or backlog item id.
	Length = 8
	// MaxAttempts bounds how many times Generate redraws on collision
	// before giving up and reporting catastrophic randomness failure.
	MaxAttempts = 100
)

// Generate draws a random Length-character id from Alphabet and retries
// up to MaxAttempts times when exists reports a collision.
func Generate(exists func(id string) bool) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		id, err := draw()
		if err != nil {
			return "", err
		}
		if !exists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("idgen: failed to generate unique id after %d attempts", MaxAttempts)
}

func draw() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: reading random bytes: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// NowMS returns the current time as milliseconds since the Unix epoch,
// the timestamp unit used for created_at/updated_at throughout the store.
func NowMS() int64 {
	return time.Now().UnixMilli()
}

// Slugify normalizes s (NFKD, ASCII-folded, lowercased) into a short
// filesystem/window-name-safe token of at most 40 characters. Branch and
// window names elsewhere in hopper are built from the lode id, not from
// this function.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
