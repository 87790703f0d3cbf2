package rendezvous

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// Clock abstracts time so polling deadlines can be tested deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

const (
	sessionIDLen      = 6
	sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// largest multiple of len(sessionIDAlphabet) that fits in a byte
	sessionIDByteLimit = 256 / len(sessionIDAlphabet) * len(sessionIDAlphabet)
)

// NewSessionID returns a fresh 6 character lowercase alphanumeric id.
func NewSessionID() string {
	id, err := readSessionID(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("rendezvous: read random bytes: %v", err))
	}
	return id
}

// readSessionID draws uniformly from the alphabet, rejecting bytes that
// would bias the modulo.
func readSessionID(r io.Reader) (string, error) {
	id := make([]byte, 0, sessionIDLen)
	buf := make([]byte, sessionIDLen*2)
	for len(id) < sessionIDLen {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= sessionIDByteLimit {
				continue
			}
			id = append(id, sessionIDAlphabet[int(b)%len(sessionIDAlphabet)])
			if len(id) == sessionIDLen {
				break
			}
		}
	}
	return string(id), nil
}
