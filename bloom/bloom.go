// Package bloom provides the probabilistic key-membership filter kept
// beside every sorted table file. The filter gives no false negatives;
// the false-positive rate is chosen at construction.
package bloom

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
	mixMul    = 0xc6a4a7935bd1e995
)

// Filter is a fixed-size bloom filter. Add and MightContain may not be
// called concurrently with each other; a fully built filter is safe for
// concurrent reads.
type Filter struct {
	bits      *bitset.BitSet
	numBits   uint64
	numHashes uint32
}

// New sizes a filter for n expected elements at the target
// false-positive rate p.
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	optimalBits := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	numBits := ((optimalBits + 7) / 8) * 8 // whole bytes

	k := uint32(math.Round(float64(optimalBits) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}

	return &Filter{
		bits:      bitset.New(uint(numBits)),
		numBits:   numBits,
		numHashes: k,
	}
}

// Add records key membership.
func (f *Filter) Add(key []byte) {
	for i := uint32(0); i < f.numHashes; i++ {
		f.bits.Set(uint(f.hash(key, i) % f.numBits))
	}
}

// MightContain reports whether key may be present. A false return is
// definitive.
func (f *Filter) MightContain(key []byte) bool {
	for i := uint32(0); i < f.numHashes; i++ {
		if !f.bits.Test(uint(f.hash(key, i) % f.numBits)) {
			return false
		}
	}
	return true
}

// NumHashes returns the number of hash probes per key.
func (f *Filter) NumHashes() uint32 {
	return f.numHashes
}

// SizeBytes returns the bit-array size in bytes.
func (f *Filter) SizeBytes() uint64 {
	return f.numBits / 8
}

// hash derives the i-th probe as a seeded murmur-style mix of the key
// plus an unseeded FNV-1a digest.
func (f *Filter) hash(key []byte, seed uint32) uint64 {
	return mix(key, seed) + fnv1a(key)
}

func mix(key []byte, seed uint32) uint64 {
	h := uint64(seed)
	for i := 0; i < len(key); i += 4 {
		end := i + 4
		if end > len(key) {
			end = len(key)
		}
		var k uint32
		for j := end - 1; j >= i; j-- {
			k = k<<8 | uint32(key[j])
		}
		h ^= uint64(k)
		h *= mixMul
		h ^= h >> 47
	}
	return h
}

func fnv1a(key []byte) uint64 {
	var h uint64 = fnvOffset
	for _, b := range key {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}
