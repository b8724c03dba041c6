package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ID layout (64 bits):
// - Bit 63: sign (always 0, keeps int64 positive)
// - Bits 62-20: milliseconds since epoch (43 bits = ~278 years)
// - Bits 19-4: random/counter (16 bits = 65536 values per ms)
// - Bits 3-0: schema version (4 bits)

const (
	// epoch is 2024-01-01 00:00:00 UTC in milliseconds.
	epoch int64 = 1704067200000

	// idVersion is the current ID schema version.
	idVersion uint64 = 1

	// idEncodedLen is the fixed length of encoded IDs:
	// 64 bits at 6 bits per character, rounded up.
	idEncodedLen = 11
)

// sortableAlphabet is a base64 alphabet in ASCII order so that encoded IDs
// sort lexicographically in the same order as their numeric values.
const sortableAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

var decodeMap [128]byte

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xFF
	}
	for i, c := range sortableAlphabet {
		decodeMap[c] = byte(i)
	}
}

// ID is a 64-bit time-sortable node identifier.
//
// IDs combine a millisecond clock with 16 random bits so that rapid
// successive creations never collide within a process.
type ID uint64

var (
	idMu      sync.Mutex
	idLastMs  int64
	idCounter uint16
)

// NewID generates a new time-based ID.
// IDs are monotonically increasing within a process.
func NewID() ID {
	idMu.Lock()
	defer idMu.Unlock()

	ms := time.Now().UnixMilli() - epoch
	if ms < 0 {
		ms = 0
	}
	if ms == idLastMs {
		// Same millisecond: bump the counter.
		idCounter++
	} else {
		idLastMs = ms
		var b [2]byte
		_, _ = rand.Read(b[:])
		idCounter = binary.BigEndian.Uint16(b[:])
	}
	return idFromParts(uint64(ms), uint64(idCounter))
}

// NewIDAt generates an ID at a specific time. Useful for tests.
func NewIDAt(t time.Time) ID {
	ms := t.UnixMilli() - epoch
	if ms < 0 {
		ms = 0
	}
	var b [2]byte
	_, _ = rand.Read(b[:])
	return idFromParts(uint64(ms), uint64(binary.BigEndian.Uint16(b[:])))
}

func idFromParts(ms, randBits uint64) ID {
	return ID((ms << 20) | (randBits << 4) | (idVersion & 0xF))
}

// String returns the fixed-width 11-character sortable encoding.
func (id ID) String() string {
	var buf [idEncodedLen]byte
	v := uint64(id)
	for i := idEncodedLen - 1; i >= 0; i-- {
		buf[i] = sortableAlphabet[v&0x3F]
		v >>= 6
	}
	return string(buf[:])
}

// IsZero returns true if the ID is the zero value.
func (id ID) IsZero() bool {
	return id == 0
}

// Time extracts the creation timestamp from an ID.
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id>>20) + epoch)
}

// MarshalJSON implements json.Marshaler. Zero IDs marshal as "".
func (id ID) MarshalJSON() ([]byte, error) {
	if id == 0 {
		return json.Marshal("")
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler. "" unmarshals as zero.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*id = 0
		return nil
	}
	parsed, err := DecodeID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DecodeID parses an 11-character encoded string back to an ID.
func DecodeID(s string) (ID, error) {
	if len(s) != idEncodedLen {
		return 0, fmt.Errorf("invalid ID length: got %d, want %d", len(s), idEncodedLen)
	}
	var v uint64
	for i := range idEncodedLen {
		c := s[i]
		if c >= 128 || decodeMap[c] == 0xFF {
			return 0, fmt.Errorf("invalid ID character at position %d: %c", i, c)
		}
		v = (v << 6) | uint64(decodeMap[c])
	}
	return ID(v), nil
}
