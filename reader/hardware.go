package reader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// factoryKey is the MIFARE Classic transport key new tags ship with.
var factoryKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// dataBlock is the first data block of sector 1, where Write stores the
// encoded identifier. Sector 0 is avoided because its block 0 holds the
// manufacturer data.
const dataBlock = 4

// hardwareReader drives a libnfc-compatible device. Construction claims the
// first enumerated device; there are no reconnect attempts afterwards.
type hardwareReader struct {
	dev nfc.Device
	mu  sync.Mutex
}

func openHardware() (*hardwareReader, error) {
	devices, err := nfc.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("cannot list NFC devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no NFC device attached")
	}
	dev, err := nfc.Open(devices[0])
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", devices[0], err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("initiator init failed: %w", err)
	}
	return &hardwareReader{dev: dev}, nil
}

func (r *hardwareReader) State() State { return Connected }

// Read polls for tags and reports the first one's UID as the identifier.
// libnfc does not expose signal strength, so RSSI is reported as 0.
func (r *hardwareReader) Read() (ReadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags, err := freefare.GetTags(r.dev)
	if err != nil {
		return ReadResult{}, fmt.Errorf("read failed: %w", err)
	}
	if len(tags) == 0 {
		return ReadResult{}, errors.New("read failed: no tag detected")
	}
	return ReadResult{TagID: strings.ToUpper(tags[0].UID())}, nil
}

// Write stores the identifier in the tag's first writable data block. Only
// MIFARE Classic tags still carrying the factory transport key are
// supported.
func (r *hardwareReader) Write(tagID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := hex.DecodeString(tagID)
	if err != nil {
		return fmt.Errorf("read failed: tag id %q is not hex", tagID)
	}
	if len(raw) > 16 {
		return fmt.Errorf("read failed: tag id %q exceeds one block", tagID)
	}

	tags, err := freefare.GetTags(r.dev)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	for _, tag := range tags {
		classic, ok := tag.(freefare.ClassicTag)
		if !ok {
			continue
		}
		return writeClassicBlock(classic, raw)
	}
	return errors.New("read failed: no writable tag detected")
}

func writeClassicBlock(tag freefare.ClassicTag, raw []byte) error {
	if err := tag.Connect(); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	defer tag.Disconnect()

	trailer := freefare.ClassicSectorLastBlock(1)
	if err := tag.Authenticate(trailer, factoryKey, int(freefare.KeyA)); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	var block [16]byte
	copy(block[:], raw)
	if err := tag.WriteBlock(dataBlock, block); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return nil
}

func (r *hardwareReader) Verify(expected string) (Verification, error) {
	return verifyByReadback(r, expected)
}
