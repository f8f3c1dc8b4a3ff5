package iodrv

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coldvault/mdcache/common"
	"github.com/pborman/uuid"
)

// Dispatcher is the registry + uniform-verb front the cache's flush and
// protect engines call into. It holds exactly one active driver at a
// time; TryOpen lets a caller probe a candidate driver without
// committing to it on failure.
type Dispatcher struct {
	mu       sync.Mutex
	driver   Driver
	serial   uint64 // monotonic file serial number counter
	serialID string // serial + UUID suffix, fixed for the life of this Open
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Open commits to driver as the active backend.
func (d *Dispatcher) Open(driver Driver, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := driver.Open(name); err != nil {
		return err
	}
	d.driver = driver
	d.serial = atomic.AddUint64(&globalSerial, 1)
	d.serialID = newSerialID(d.serial)
	return nil
}

// TryOpen attempts to open driver without disturbing the dispatcher's
// existing active driver on failure.
func (d *Dispatcher) TryOpen(driver Driver, name string) (ok bool, err error) {
	if err := driver.Open(name); err != nil {
		return false, err
	}
	d.mu.Lock()
	d.driver = driver
	d.serial = atomic.AddUint64(&globalSerial, 1)
	d.serialID = newSerialID(d.serial)
	d.mu.Unlock()
	return true, nil
}

func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.driver == nil {
		return nil
	}
	err := d.driver.Close()
	d.driver = nil
	return err
}

func (d *Dispatcher) Read(addr common.Address, buf []byte) error {
	return d.driver.Read(addr, buf)
}

func (d *Dispatcher) Write(addr common.Address, buf []byte) error {
	return d.driver.Write(addr, buf)
}

// ReadVector services reqs via the driver's own VectorReader if it has
// one, otherwise emulates it by iteration: if a driver lacks a vectored
// variant, the dispatcher falls back to one read per request.
func (d *Dispatcher) ReadVector(reqs []IOVec) error {
	if vr, ok := d.driver.(VectorReader); ok {
		return vr.ReadVector(reqs)
	}
	for _, r := range reqs {
		if err := d.driver.Read(r.Addr, r.Buf); err != nil {
			return err
		}
	}
	return nil
}

// WriteVector is the write-side analog of ReadVector.
func (d *Dispatcher) WriteVector(reqs []IOVec) error {
	if vw, ok := d.driver.(VectorWriter); ok {
		return vw.WriteVector(reqs)
	}
	for _, r := range reqs {
		if err := d.driver.Write(r.Addr, r.Buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadSelection services sel via the driver's own SelectionReader, or
// emulates it with one Read call per block.
func (d *Dispatcher) ReadSelection(sel Selection, buf []byte) error {
	if sr, ok := d.driver.(SelectionReader); ok {
		return sr.ReadSelection(sel, buf)
	}
	for i := 0; i < sel.Count; i++ {
		addr := sel.Base + common.Address(i*sel.Stride)
		off := i * sel.BlockSize
		if err := d.driver.Read(addr, buf[off:off+sel.BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteSelection is the write-side analog of ReadSelection.
func (d *Dispatcher) WriteSelection(sel Selection, buf []byte) error {
	if sw, ok := d.driver.(SelectionWriter); ok {
		return sw.WriteSelection(sel, buf)
	}
	for i := 0; i < sel.Count; i++ {
		addr := sel.Base + common.Address(i*sel.Stride)
		off := i * sel.BlockSize
		if err := d.driver.Write(addr, buf[off:off+sel.BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) GetEOA() common.Address      { return d.driver.GetEOA() }
func (d *Dispatcher) SetEOA(a common.Address) error { return d.driver.SetEOA(a) }
func (d *Dispatcher) GetEOF() common.Address      { return d.driver.GetEOF() }

func (d *Dispatcher) Alloc(size int) (common.Address, error) { return d.driver.Alloc(size) }
func (d *Dispatcher) Free(addr common.Address, size int) error {
	return d.driver.Free(addr, size)
}

func (d *Dispatcher) Flush() error    { return d.driver.Flush() }
func (d *Dispatcher) Truncate() error { return d.driver.Truncate() }
func (d *Dispatcher) Lock(ro bool) error { return d.driver.Lock(ro) }
func (d *Dispatcher) Unlock() error   { return d.driver.Unlock() }

func (d *Dispatcher) Query() Feature { return d.driver.Query() }

// Serial returns this dispatcher's file serial number, assigned from a
// monotonic counter at Open time and made globally unique via a UUID
// suffix for cross-process log correlation. Stable for the lifetime of
// the current Open/TryOpen call.
func (d *Dispatcher) Serial() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serialID
}

func newSerialID(serial uint64) string {
	return fmt.Sprintf("%d-%s", serial, uuid.New()[:8])
}

var globalSerial uint64
