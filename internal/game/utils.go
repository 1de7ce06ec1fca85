package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand"
)

// GenerateRoomCode creates a random room code
func GenerateRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range RoomCodeLength {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(RoomCodeChars))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = RoomCodeChars[rand.Intn(len(RoomCodeChars))]
			continue
		}
		code[i] = RoomCodeChars[n.Int64()]
	}
	return string(code)
}

// RoomLookup is satisfied by anything that can tell whether a room code is taken
type RoomLookup interface {
	Exists(code string) bool
}

// GetUniqueRoomCode generates a room code not yet known to rooms
func GetUniqueRoomCode(rooms RoomLookup) string {
	for {
		code := GenerateRoomCode()
		if !rooms.Exists(code) {
			return code
		}
	}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewRand returns a math/rand source seeded from crypto/rand
func NewRand() *rand.Rand {
	seed, err := NewSeed()
	if err != nil {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}
