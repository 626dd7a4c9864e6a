package hybrid

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GUIDSource supplies the disk and partition GUIDs of a GPT.
type GUIDSource interface {
	NewGUID() (uuid.UUID, error)
}

type randomGUIDs struct{}

// RandomGUIDs returns a source of random version 4 GUIDs.
func RandomGUIDs() GUIDSource {
	return randomGUIDs{}
}

func (randomGUIDs) NewGUID() (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate GUID: %w", err)
	}
	return id, nil
}

type seededGUIDs struct {
	mu        sync.Mutex
	namespace uuid.UUID
	counter   uint64
}

// SeededGUIDs returns a deterministic source: the n-th GUID is the name based (SHA1) GUID of n in a namespace derived
// from seed. Two sources with the same seed produce the same sequence.
func SeededGUIDs(seed string) GUIDSource {
	return &seededGUIDs{namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))}
}

func (s *seededGUIDs) NewGUID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var name [8]byte
	binary.BigEndian.PutUint64(name[:], s.counter)
	s.counter++
	return uuid.NewSHA1(s.namespace, name[:]), nil
}

// FixedGUIDs returns a source handing out ids in order. It fails once they are exhausted.
func FixedGUIDs(ids ...uuid.UUID) GUIDSource {
	return &fixedGUIDs{ids: ids}
}

type fixedGUIDs struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fixedGUIDs) NewGUID() (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return uuid.Nil, fmt.Errorf("no fixed GUIDs left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}
