// Package engine provides the seeded random source used by bots and sweeps.
// A stream is keyed by a seed and a heat number, so every heat of a sweep
// draws an independent, reproducible sequence.
package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"
)

// Stream generates bytes from HMAC-SHA256(seed, "salt:heat:round") and turns
// each group of 4 bytes into a float in [0, 1).
type Stream struct {
	seed   string
	salt   string
	heat   uint64
	round  uint64
	pos    int
	buffer [32]byte
	drawn  uint64
}

// NewStream starts a stream at the given byte cursor.
func NewStream(seed, salt string, heat, cursor uint64) *Stream {
	s := &Stream{
		seed:  seed,
		salt:  salt,
		heat:  heat,
		round: cursor / 32,
		pos:   int(cursor % 32),
	}
	s.generateRound()
	return s
}

// Next returns the next byte.
func (s *Stream) Next() byte {
	if s.pos >= 32 {
		s.round++
		s.pos = 0
		s.generateRound()
	}
	b := s.buffer[s.pos]
	s.pos++
	return b
}

// Float64 returns the next float in [0, 1). It satisfies the bot's random source.
func (s *Stream) Float64() float64 {
	s.drawn++
	return bytesToFloat([4]byte{s.Next(), s.Next(), s.Next(), s.Next()})
}

// Between returns an integer in [lo, hi], inclusive.
func (s *Stream) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + int(math.Floor(s.Float64()*float64(hi-lo+1)))
}

// Drawn is the number of floats taken so far.
func (s *Stream) Drawn() uint64 { return s.drawn }

func (s *Stream) generateRound() {
	h := hmac.New(sha256.New, []byte(s.seed))
	h.Write([]byte(s.salt + ":" + strconv.FormatUint(s.heat, 10) + ":" + strconv.FormatUint(s.round, 10)))
	copy(s.buffer[:], h.Sum(nil))
}

func bytesToFloat(b [4]byte) float64 {
	result := 0.0
	for i, v := range b {
		result += float64(v) / math.Pow(256, float64(i+1))
	}
	return result
}

// Floats returns count floats for a heat, starting at cursor.
func Floats(seed, salt string, heat, cursor uint64, count int) []float64 {
	return FloatsInto(nil, seed, salt, heat, cursor, count)
}

// FloatsInto fills dst, reallocating only when it is too short.
func FloatsInto(dst []float64, seed, salt string, heat, cursor uint64, count int) []float64 {
	if len(dst) < count {
		dst = make([]float64, count)
	}
	s := NewStream(seed, salt, heat, cursor)
	for i := 0; i < count; i++ {
		dst[i] = s.Float64()
	}
	return dst[:count]
}

// Fingerprint is a short stable label for a seed, safe to store and log.
func Fingerprint(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("%x", sum[:6])
}
