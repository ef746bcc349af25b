package buzzer

import (
	"fmt"
	"strconv"
)

// Identity admission policies supported per room.
const (
	PolicyExplicit   = "explicit"
	PolicySequential = "sequential"
)

// MaxPlayerNumber bounds explicit player numbers.
const MaxPlayerNumber = 50

// IdentityPolicy decides the in-room display identity of a joiner and owns
// the pool of taken numbers so departed identities can be reused.
type IdentityPolicy interface {
	// Assign validates the requested number (ignored by auto-assigning
	// policies) and reserves an identity. It returns the display name and
	// the reserved number.
	Assign(requested int) (name string, number int, err error)

	// Release returns a number to the pool after a participant is
	// permanently removed.
	Release(number int)
}

// NewIdentityPolicy returns the policy registered under the given name,
// falling back to explicit numbers for unknown names.
func NewIdentityPolicy(policy string) IdentityPolicy {
	if policy == PolicySequential {
		return &sequentialPolicy{}
	}
	return &explicitNumberPolicy{taken: make(map[int]bool)}
}

// explicitNumberPolicy lets the joiner pick their own number in [1, 50].
// The number doubles as the display name.
type explicitNumberPolicy struct {
	taken map[int]bool
}

func (p *explicitNumberPolicy) Assign(requested int) (string, int, error) {
	if requested < 1 || requested > MaxPlayerNumber {
		return "", 0, ErrInvalidPlayerNumber
	}
	if p.taken[requested] {
		return "", 0, fmt.Errorf("%w: %d", ErrNumberTaken, requested)
	}
	p.taken[requested] = true
	return strconv.Itoa(requested), requested, nil
}

func (p *explicitNumberPolicy) Release(number int) {
	delete(p.taken, number)
}

// sequentialPolicy hands out "Player N" names from a monotonically
// increasing counter. Collisions are impossible, so Release is a no-op and
// counter values are never reused.
type sequentialPolicy struct {
	next int
}

func (p *sequentialPolicy) Assign(int) (string, int, error) {
	p.next++
	return fmt.Sprintf("Player %d", p.next), p.next, nil
}

func (p *sequentialPolicy) Release(int) {}
