package familycode

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"time"

	"github.com/google/uuid"

	appLog "signalcal/internal/log"
)

// ErrEntropyUnavailable is returned when the strong random source fails
// and the weak fallback has not been allowed.
var ErrEntropyUnavailable = errors.New("cryptographically strong randomness unavailable")

// Issued is a freshly generated identifier. Degraded is true when it was
// produced by the weak fallback source and should not be relied on for
// uniqueness.
type Issued struct {
	ID       Identifier
	Degraded bool
}

// Generator issues random identifiers.
//
// Strong defaults to crypto/rand. Weak is only consulted when Strong
// fails and AllowWeak is set; it defaults to a time-seeded PCG.
type Generator struct {
	Strong    io.Reader
	Weak      io.Reader
	AllowWeak bool
}

// NewIdentifier reads 16 random bytes and stamps the version 4 and
// variant 10 bits.
func (g *Generator) NewIdentifier() (Issued, error) {
	strong := g.Strong
	if strong == nil {
		strong = crand.Reader
	}

	u, err := uuid.NewRandomFromReader(strong)
	if err == nil {
		return Issued{ID: Identifier(u.String())}, nil
	}
	if !g.AllowWeak {
		return Issued{}, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	weak := g.Weak
	if weak == nil {
		weak = newPCGReader(uint64(time.Now().UnixNano()))
	}
	u, werr := uuid.NewRandomFromReader(weak)
	if werr != nil {
		return Issued{}, fmt.Errorf("%w: strong: %v, weak: %v", ErrEntropyUnavailable, err, werr)
	}
	appLog.Warn("strong randomness unavailable; identifier generated from weak source", "cause", err.Error())
	return Issued{ID: Identifier(u.String()), Degraded: true}, nil
}

// NewCode issues an identifier and anchors it to the week containing today.
func (g *Generator) NewCode(today time.Time) (Code, Issued, error) {
	issued, err := g.NewIdentifier()
	if err != nil {
		return "", Issued{}, err
	}
	return Encode(issued.ID, CurrentWeekAnchor(today)), issued, nil
}

// pcgReader adapts a non-cryptographic PCG to io.Reader.
type pcgReader struct {
	src *mrand.PCG
}

func newPCGReader(seed uint64) *pcgReader {
	return &pcgReader{src: mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

func (r *pcgReader) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := r.src.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}
