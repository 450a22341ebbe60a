package entropy

import (
	"golang.org/x/crypto/chacha20"
)

const (
	rngSeedLen = chacha20.KeySize + chacha20.NonceSize

	// rngReseedQuota is the output budget before the keystream is rekeyed
	// from the entropy source.
	rngReseedQuota = 1 << 30
)

// RNG is a deterministic random generator owned by a single worker. It is
// seeded from the shared Source and reseeds itself after a large output
// quota. It is not safe for concurrent use; each worker holds its own.
type RNG struct {
	src    *Source
	stream *chacha20.Cipher
	used   int

	zeros []byte
}

// NewRNG seeds a worker RNG from the entropy source. A seeding failure is
// fatal for the worker's startup.
func NewRNG(src *Source) (*RNG, error) {
	r := &RNG{
		src:   src,
		zeros: make([]byte, 4096),
	}
	if err := r.reseed(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RNG) reseed() error {
	seed, err := r.src.Gather(rngSeedLen)
	if err != nil {
		return &InitError{Message: "failed to seed worker RNG", Cause: err}
	}
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:chacha20.KeySize], seed[chacha20.KeySize:])
	if err != nil {
		return &InitError{Message: "failed to initialize worker RNG", Cause: err}
	}
	r.stream = stream
	r.used = 0
	return nil
}

// Read fills p with keystream output. It implements io.Reader so the RNG
// plugs directly into the protocol engine's randomness hook.
func (r *RNG) Read(p []byte) (int, error) {
	if r.used > rngReseedQuota {
		if err := r.reseed(); err != nil {
			return 0, err
		}
	}

	for filled := 0; filled < len(p); {
		n := len(p) - filled
		if n > len(r.zeros) {
			n = len(r.zeros)
		}
		r.stream.XORKeyStream(p[filled:filled+n], r.zeros[:n])
		filled += n
	}
	r.used += len(p)
	return len(p), nil
}
