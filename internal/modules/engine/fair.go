package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// FairSource is a provably-fair draw source: the server commits to a secret
// seed by publishing its SHA-256 hash before any bet, and each draw is
// HMAC-SHA256(serverSeed, "clientSeed:nonce:counter"). After the seed is
// rotated and revealed, the client can replay every draw and verify both
// the commitment and the outcomes.
type FairSource struct {
	serverSeed []byte
	clientSeed string
	nonce      uint64
	counter    uint64
}

// NewFairSource creates a draw source for one wager. nonce identifies the
// wager within the seed pair; counter restarts at zero so replays with the
// same (seeds, nonce) are bit-identical.
func NewFairSource(serverSeed []byte, clientSeed string, nonce uint64) *FairSource {
	return &FairSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

// RandomServerSeed draws a fresh 32-byte server seed
func RandomServerSeed() ([]byte, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// SeedHash returns the hex SHA-256 commitment for a server seed
func SeedHash(serverSeed []byte) string {
	sum := sha256.Sum256(serverSeed)
	return hex.EncodeToString(sum[:])
}

// DrawInt returns a uniform value in [0,n). Rejection sampling over the
// HMAC output keeps the distribution exact for any n.
func (f *FairSource) DrawInt(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("engine: DrawInt called with n=%d", n))
	}
	bound := uint64(n)
	limit := (^uint64(0) / bound) * bound
	for {
		v := f.nextUint64()
		if v < limit {
			return int(v % bound)
		}
	}
}

func (f *FairSource) nextUint64() uint64 {
	mac := hmac.New(sha256.New, f.serverSeed)
	fmt.Fprintf(mac, "%s:%d:%d", f.clientSeed, f.nonce, f.counter)
	f.counter++
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// ScriptSource replays a fixed sequence of draws. Used for audit replay of
// recorded outcomes and for deterministic tests.
type ScriptSource struct {
	draws []int
	next  int
}

// NewScriptSource creates a source that yields the given draws in order
func NewScriptSource(draws ...int) *ScriptSource {
	return &ScriptSource{draws: draws}
}

// DrawInt returns the next scripted draw clamped into [0,n)
func (s *ScriptSource) DrawInt(n int) int {
	if s.next >= len(s.draws) {
		panic("engine: script source exhausted")
	}
	v := s.draws[s.next]
	s.next++
	if v < 0 || v >= n {
		v = ((v % n) + n) % n
	}
	return v
}

// Drawn reports how many draws have been consumed
func (s *ScriptSource) Drawn() int {
	return s.next
}
