// Package reqctx implements a per-operation context stack: a
// per-goroutine stack of frames that carries request-scoped parameters —
// property lists, object tag, flush ring, transfer mode, collective-read
// flag, MPI datatypes — down to the cache without threading them through
// every call signature.
//
// Go has no thread-local storage, so this keys one stack per goroutine
// id instead of per OS thread.
package reqctx

import (
	"sync"

	"github.com/coldvault/mdcache/common"
)

// cachedField tracks a (valid, set) pair: valid means "read from a
// non-default property list and cached"; set means "overwritten by the
// library for return-to-caller".
type cachedField struct {
	value interface{}
	valid bool
	set   bool
}

// Frame is one push/pop record. A handful of named fields are
// first-class; everything else a caller wants carried along but that has
// no first-class slot here lives in the extra map (SetExtra/GetExtra),
// keyed by name, so a virtualizing connector can still round-trip it
// through RetrieveState/RestoreState.
type Frame struct {
	Tag           common.Address
	Ring          common.Ring
	XferMode      common.XferMode
	CollMetaRead  bool
	MPIDatatypes  [2]uint32 // (buffer type, file type); zero value means "not set"
	VOLWrapContext interface{}

	fields map[string]*cachedField
	extra  map[string]interface{}
}

func newFrame() *Frame {
	return &Frame{fields: make(map[string]*cachedField), extra: make(map[string]interface{})}
}

// clone deep-copies a frame for push-inheritance: inner frames start as a
// copy of the frame they shadow. The copy's set bit is always cleared:
// set tracks "written back since the matching Push", so a field the
// outer frame already marked returned must not be inherited as already
// due for write-back in the new, inner frame — only a MarkReturned
// call made after this Push should make Pop(update=true) write it back
// again.
func (f *Frame) clone() *Frame {
	nf := newFrame()
	nf.Tag, nf.Ring, nf.XferMode = f.Tag, f.Ring, f.XferMode
	nf.CollMetaRead, nf.MPIDatatypes, nf.VOLWrapContext = f.CollMetaRead, f.MPIDatatypes, f.VOLWrapContext
	for k, v := range f.fields {
		cp := *v
		cp.set = false
		nf.fields[k] = &cp
	}
	for k, v := range f.extra {
		nf.extra[k] = v
	}
	return nf
}

// SetField records a value as read from a non-default property list.
func (f *Frame) SetField(name string, value interface{}) {
	f.fields[name] = &cachedField{value: value, valid: true}
}

// GetField returns a previously cached field and whether it was set. If
// the frame has no cached value, it falls back to the process-wide
// immutable default cache: a field whose underlying property list is the
// library default is served from that cache without any list lookup.
func (f *Frame) GetField(name string) (interface{}, bool) {
	if c, ok := f.fields[name]; ok && c.valid {
		return c.value, true
	}
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	v, ok := defaults[name]
	return v, ok
}

var (
	defaultsMu sync.RWMutex
	defaults   = map[string]interface{}{}
)

// SetDefault installs a process-wide default value for a named field,
// served to any frame that never cached its own value for that field.
// Intended to be called once at startup.
func SetDefault(name string, value interface{}) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	defaults[name] = value
}

// MarkReturned marks a field as "set" — to be written back into the
// caller's property list on Pop(updateCachedOutputs=true).
func (f *Frame) MarkReturned(name string, value interface{}) {
	c, ok := f.fields[name]
	if !ok {
		c = &cachedField{}
		f.fields[name] = c
	}
	c.value, c.valid, c.set = value, true, true
}

// SetExtra stores an arbitrary named value for round-tripping through a
// virtualizing layer.
func (f *Frame) SetExtra(name string, value interface{}) { f.extra[name] = value }

// GetExtra retrieves a value stored with SetExtra.
func (f *Frame) GetExtra(name string) (interface{}, bool) { v, ok := f.extra[name]; return v, ok }

// Stack is one goroutine's push/pop stack of Frames.
type Stack struct {
	frames []*Frame
}

var (
	registryMu sync.Mutex
	registry   = map[int64]*Stack{}
)

// forGoroutine returns (creating if needed) the Stack owned by the calling
// goroutine.
func forGoroutine() *Stack {
	id := goid()
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[id]
	if !ok {
		s = &Stack{}
		registry[id] = s
	}
	return s
}

// Push starts a new frame for the calling goroutine, shadowing the frame
// below it: outer frames are visible to GetField/GetExtra only through
// the inheritance performed at Push time, so an inner frame shadows the
// outer one it was cloned from.
func Push() *Frame {
	s := forGoroutine()
	var f *Frame
	if len(s.frames) == 0 {
		f = newFrame()
	} else {
		f = s.frames[len(s.frames)-1].clone()
	}
	s.frames = append(s.frames, f)
	return f
}

// Current returns the top frame for the calling goroutine, or nil if the
// stack is empty.
func Current() *Frame {
	s := forGoroutine()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// WriteBackFunc persists a "set" field from a popped frame back into
// whatever external property list it was read from.
type WriteBackFunc func(name string, value interface{})

// Pop removes the top frame for the calling goroutine. When
// updateCachedOutputs is true, every field marked "set" since the
// matching Push is written back via writeBack; otherwise they are
// discarded.
func Pop(updateCachedOutputs bool, writeBack WriteBackFunc) {
	s := forGoroutine()
	if len(s.frames) == 0 {
		return
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	if updateCachedOutputs && writeBack != nil {
		for name, c := range top.fields {
			if c.set {
				writeBack(name, c.value)
			}
		}
	}
	if len(s.frames) == 0 {
		registryMu.Lock()
		delete(registry, goid())
		registryMu.Unlock()
	}
}

// Depth reports how many frames are currently pushed for the calling
// goroutine; used by tests asserting balanced push/pop pairs.
func Depth() int {
	s := forGoroutine()
	return len(s.frames)
}

// State is an opaque snapshot of a Frame, returned by RetrieveState and
// consumed by RestoreState. Used by virtualizing layers (e.g. connector
// wrappers) that must re-enter the library with a preserved context.
type State struct {
	frame *Frame
}

// RetrieveState clones the current top frame into a portable snapshot.
func RetrieveState() *State {
	f := Current()
	if f == nil {
		return nil
	}
	return &State{frame: f.clone()}
}

// RestoreState pushes a new frame initialized from a previously retrieved
// snapshot.
func RestoreState(s *State) *Frame {
	if s == nil {
		return Push()
	}
	st := forGoroutine()
	f := s.frame.clone()
	st.frames = append(st.frames, f)
	return f
}

// FreeState releases a snapshot. Snapshots are plain Go values collected
// by the GC; FreeState exists to give callers one matched free-style call
// per retrieve, in case State grows unmanaged resources later.
func FreeState(s *State) {
	if s != nil {
		s.frame = nil
	}
}
