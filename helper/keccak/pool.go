package keccak

import (
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

// DefaultKeccakPool is a default pool
var DefaultKeccakPool Pool

// Pool is a pool of keccak-256 hashers
type Pool struct {
	pool sync.Pool
}

// Get returns a reset hasher
func (p *Pool) Get() hash.Hash {
	v := p.pool.Get()
	if v == nil {
		return sha3.NewLegacyKeccak256()
	}

	h, ok := v.(hash.Hash)
	if !ok {
		return sha3.NewLegacyKeccak256()
	}

	return h
}

// Put releases the hasher
func (p *Pool) Put(h hash.Hash) {
	h.Reset()
	p.pool.Put(h)
}

// Keccak256 hashes src with keccak-256 and appends the digest to dst
func Keccak256(dst, src []byte) []byte {
	h := DefaultKeccakPool.Get()
	h.Write(src)
	dst = h.Sum(dst)
	DefaultKeccakPool.Put(h)

	return dst
}
