// room/code.go
package room

import (
	"errors"
	"strings"
	"sync"
)

const (
	CodeLength      = 6
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts = 64
)

var ErrNoFreeCode = errors.New("no free room code")

// CodeAllocator hands out short room codes from an injected source.
type CodeAllocator struct {
	mu  sync.Mutex
	rnd interface{ Intn(n int) int }
}

func NewCodeAllocator(rnd interface{ Intn(n int) int }) *CodeAllocator {
	return &CodeAllocator{rnd: rnd}
}

// Next returns a code for which taken reports false.
func (a *CodeAllocator) Next(taken func(code string) bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		b.Reset()
		for i := 0; i < CodeLength; i++ {
			b.WriteByte(codeAlphabet[a.rnd.Intn(len(codeAlphabet))])
		}
		if code := b.String(); !taken(code) {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// ValidCode reports whether id is usable as a room id in a URL.
func ValidCode(id string) bool {
	if id == "" || len(id) > 32 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
