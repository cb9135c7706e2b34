package reader

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Simulated tag format: fixed EPC Gen2 vendor prefix plus 22 random
// uppercase hex characters.
const (
	simPrefix      = "E2"
	simSuffixChars = 22
	simWriteDelay  = 300 * time.Millisecond
)

const hexDigits = "0123456789ABCDEF"

// simulatedReader synthesizes plausible tag observations when no hardware
// is attached. It stays Disconnected for its whole lifetime.
type simulatedReader struct {
	mu         sync.Mutex
	rng        *rand.Rand
	writeDelay time.Duration
}

// NewSimulated returns the demo-mode reader.
func NewSimulated() Reader {
	return &simulatedReader{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		writeDelay: simWriteDelay,
	}
}

func (r *simulatedReader) State() State { return Disconnected }

// Read fabricates a tag id and a signal strength within a realistic band
// (-65 dBm plus or minus 10).
func (r *simulatedReader) Read() (ReadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	suffix := make([]byte, simSuffixChars)
	for i := range suffix {
		suffix[i] = hexDigits[r.rng.Intn(len(hexDigits))]
	}
	return ReadResult{
		TagID: simPrefix + string(suffix),
		RSSI:  -65 + r.rng.Intn(21) - 10,
	}, nil
}

// Write succeeds after a short simulated encoding delay.
func (r *simulatedReader) Write(tagID string) error {
	if tagID == "" {
		return fmt.Errorf("read failed: empty tag id")
	}
	time.Sleep(r.writeDelay)
	return nil
}

func (r *simulatedReader) Verify(expected string) (Verification, error) {
	return verifyByReadback(r, expected)
}
