package roomid

import "math/rand/v2"

// Room ids are short numeric codes typed by participants, so they stay
// deliberately small. The alphabet matches what clients already accept.
const (
	alphabet = "012345789"
	idLength = 4
)

// Generate returns a short numeric room id. Uniqueness is the caller's
// concern; the registry retries on collision.
func Generate() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
