// Package kcache persists compiled program binaries so that a kernel built once
// for a device set can be loaded again without invoking the compiler.
package kcache

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one cached program: the binaries for each device it was built for,
// in device order.
type Entry struct {
	Key        string    `cbor:"key"`
	Name       string    `cbor:"name"`
	EntryPoint string    `cbor:"entry_point"`
	Devices    []string  `cbor:"devices"`
	Options    string    `cbor:"options"`
	Binaries   [][]byte  `cbor:"binaries"`
	Created    time.Time `cbor:"created"`
}

// Info is the metadata of an entry, without binaries.
type Info struct {
	Key        string
	Name       string
	EntryPoint string
	Devices    []string
	Bytes      int
	Created    time.Time
}

// ToInfo summarises the entry.
func (e *Entry) ToInfo() Info {
	total := 0
	for _, b := range e.Binaries {
		total += len(b)
	}
	return Info{
		Key:        e.Key,
		Name:       e.Name,
		EntryPoint: e.EntryPoint,
		Devices:    append([]string(nil), e.Devices...),
		Bytes:      total,
		Created:    e.Created,
	}
}

// Store defines program cache persistence. Implementations must be safe for
// concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound (matched with errors.Is) if the key is absent on Load/Delete
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// Save stores the entry under entry.Key, replacing any previous entry.
	Save(entry *Entry) error

	// Load returns the entry stored under key.
	Load(key string) (*Entry, error)

	// List returns metadata for every entry. The slice may be empty.
	List() ([]Info, error)

	// Delete removes the entry stored under key.
	Delete(key string) error
}

// ErrNotFound is returned when a key has no entry.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing cache entry.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return "program cache entry not found: " + e.Key
	}
	return "program cache entry not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// Key derives a cache key from the parts that determine a build: device names,
// build options, entry point and source text.
func Key(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	var sum [8]byte
	return hex.EncodeToString(d.Sum(sum[:0]))
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\.`)
}
