// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package cache

import "github.com/coldvault/mdcache/common"

// ClassID indexes into the entry class registry. Low IDs are reserved
// for internal bookkeeping classes (the cache doesn't impose a specific
// reservation itself, but callers conventionally keep 0..15 for their
// own internal entries such as epoch markers).
type ClassID int

// ClassFlags are declared once per class and never change afterward: the
// registry is immutable after cache creation.
type ClassFlags uint32

const (
	// FlagSpeculativeLoad permits the cache to read a provisional, possibly
	// too-small image before GetLoadSize's real answer is known.
	FlagSpeculativeLoad ClassFlags = 1 << iota
	// FlagGhost marks entries of this class as contributing to counts but
	// never to on-disk size accounting (data-model invariant 6).
	FlagGhost
	// FlagCarriesNoImage marks entries that never produce a serialized
	// image (pure in-core bookkeeping, e.g. some epoch markers).
	FlagCarriesNoImage
	// FlagNoFlushWhileLast forbids flushing the last entry of this class
	// out of a ring (used by rings that must always retain a sentinel).
	FlagNoFlushWhileLast
	// FlagReadOnlyConcurrent lets multiple read-only protects coexist for
	// entries of this class: a read-only protect may coexist with other
	// read-only protects only if the class opts in.
	FlagReadOnlyConcurrent
	// FlagStayResidentWithParent exempts a clean entry of this class from
	// eviction while any dirty parent still references it.
	FlagStayResidentWithParent
)

// Has reports whether f includes all bits of want.
func (f ClassFlags) Has(want ClassFlags) bool { return f&want == want }

// NotifyEvent enumerates the lifecycle hook events a class's Notify
// method is called with.
type NotifyEvent int

const (
	EventInserted NotifyEvent = iota
	EventLoaded
	EventFlushed
	EventEvicted
	EventDirtied
	EventCleaned
	EventChildDirtied
	EventChildCleaned
	EventChildUnserialized
	EventChildSerialized
)

func (e NotifyEvent) String() string {
	switch e {
	case EventInserted:
		return "inserted"
	case EventLoaded:
		return "loaded"
	case EventFlushed:
		return "flushed"
	case EventEvicted:
		return "evicted"
	case EventDirtied:
		return "dirtied"
	case EventCleaned:
		return "cleaned"
	case EventChildDirtied:
		return "child-dirtied"
	case EventChildCleaned:
		return "child-cleaned"
	case EventChildUnserialized:
		return "child-unserialized"
	case EventChildSerialized:
		return "child-serialized"
	default:
		return "unknown-event"
	}
}

// PreSerializeResult carries the optional address/size change a class
// can request from PreSerialize before Serialize is called.
type PreSerializeResult struct {
	NewAddress common.Address // unchanged unless Moved is true
	Moved      bool
	NewSize    int // unchanged unless Resized is true
	Resized    bool
}

// Class is the per-metadata-kind vtable every entry dispatches through.
// It is the only place this module ever knows anything about the bytes
// an entry serializes to — every other component treats a payload as
// opaque.
type Class interface {
	// ID returns the class's registry index.
	ID() ClassID
	// Flags returns this class's static flag set.
	Flags() ClassFlags
	// GetLoadSize reports the number of bytes protect should read from
	// disk before the first Deserialize call.
	GetLoadSize(userData interface{}) (int, error)
	// Deserialize turns a raw on-disk image into an in-core payload.
	Deserialize(image []byte, size int, userData interface{}) (payload interface{}, err error)
	// ImageLen reports the size payload would serialize to right now.
	ImageLen(payload interface{}) int
	// PreSerialize gives the class a chance to request a new address or
	// size before Serialize is invoked.
	PreSerialize(payload interface{}, address common.Address) (PreSerializeResult, error)
	// Serialize encodes payload into out, which is exactly ImageLen(payload)
	// bytes long.
	Serialize(payload interface{}, out []byte) error
	// Notify is the lifecycle hook; see NotifyEvent.
	Notify(event NotifyEvent, payload interface{}) error
	// FreeICR releases any in-core-only resources payload holds. Called
	// once an entry's image is no longer needed in memory.
	FreeICR(payload interface{})
}

// ChecksumVerifier is an optional capability a Class may additionally
// implement to verify a loaded image's checksum.
type ChecksumVerifier interface {
	VerifyChecksum(image []byte, userData interface{}) bool
}

// Registry is the immutable-after-creation table of entry classes.
type Registry struct {
	classes map[ClassID]Class
	sealed  bool
}

// NewRegistry builds a registry from the given classes. The registry is
// sealed (immutable) from this point on.
func NewRegistry(classes ...Class) *Registry {
	r := &Registry{classes: make(map[ClassID]Class, len(classes))}
	for _, c := range classes {
		r.classes[c.ID()] = c
	}
	r.sealed = true
	return r
}

// Lookup returns the class registered under id, or (nil, false).
func (r *Registry) Lookup(id ClassID) (Class, bool) {
	c, ok := r.classes[id]
	return c, ok
}

// verifyChecksum calls the optional ChecksumVerifier hook, defaulting to
// true (no checksum declared) when a class doesn't implement it.
func verifyChecksum(c Class, image []byte, userData interface{}) bool {
	if v, ok := c.(ChecksumVerifier); ok {
		return v.VerifyChecksum(image, userData)
	}
	return true
}
