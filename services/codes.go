package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/rs/zerolog"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeGroupLength = 4
	codeMaxAttempts = 5
)

// CodeAllocator hands out public room codes of the form XXXX-XXXX, unique
// among active rooms. Allocation serializes on a single mutex: the code
// namespace is the only cross-room shared resource, and check-then-reserve
// must not interleave.
type CodeAllocator struct {
	store Store
	mu    sync.Mutex
	log   zerolog.Logger
}

func NewCodeAllocator(store Store, log zerolog.Logger) *CodeAllocator {
	return &CodeAllocator{
		store: store,
		log:   log.With().Str("component", "codes").Logger(),
	}
}

// Allocate returns a collision-free code, retrying up to a bound. A
// saturated space surfaces ErrCodeExhausted, the signal to widen the
// alphabet or length.
func (a *CodeAllocator) Allocate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code := randomCode()
		exists, err := a.store.RoomCodeExists(ctx, code)
		if err != nil {
			return "", transient("checking code uniqueness", err)
		}
		if !exists {
			return code, nil
		}
		a.log.Warn().Str("code", code).Int("attempt", attempt+1).Msg("room code collision")
	}
	return "", ErrCodeExhausted
}

func randomCode() string {
	return randomGroup() + "-" + randomGroup()
}

func randomGroup() string {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeGroupLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
