package iodrv

import (
	"os"
	"sync"

	"github.com/coldvault/mdcache/common"
	"golang.org/x/sys/unix"
)

// FileDriver is a Driver backed by a single OS file, advisory-locked via
// golang.org/x/sys/unix.Flock the way a standalone container process
// keeps other writers out.
type FileDriver struct {
	mu   sync.Mutex
	f    *os.File
	eoa  common.Address
	eof  common.Address
}

func NewFileDriver() *FileDriver { return &FileDriver{} }

func (d *FileDriver) Open(name string) error {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	d.f = f
	d.eof = common.Address(fi.Size())
	d.eoa = d.eof
	return nil
}

func (d *FileDriver) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *FileDriver) Cmp(other Driver) int {
	o, ok := other.(*FileDriver)
	if !ok {
		return -1
	}
	if o.f == d.f {
		return 0
	}
	return -1
}

func (d *FileDriver) Query() Feature { return FeatureAggregate }

func (d *FileDriver) GetEOA() common.Address { return d.eoa }
func (d *FileDriver) SetEOA(addr common.Address) error {
	d.eoa = addr
	return nil
}
func (d *FileDriver) GetEOF() common.Address { return d.eof }

func (d *FileDriver) Alloc(size int) (common.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.eoa
	d.eoa += common.Address(size)
	if d.eoa > d.eof {
		d.eof = d.eoa
	}
	return addr, nil
}

func (d *FileDriver) Free(addr common.Address, size int) error { return nil }

func (d *FileDriver) Read(addr common.Address, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.ReadAt(buf, int64(addr))
	return err
}

func (d *FileDriver) Write(addr common.Address, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.WriteAt(buf, int64(addr))
	if end := addr + common.Address(len(buf)); end > d.eof {
		d.eof = end
	}
	return err
}

func (d *FileDriver) Flush() error { return d.f.Sync() }

func (d *FileDriver) Truncate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Truncate(int64(d.eoa))
}

func (d *FileDriver) Lock(readOnly bool) error {
	how := unix.LOCK_EX
	if readOnly {
		how = unix.LOCK_SH
	}
	return unix.Flock(int(d.f.Fd()), how|unix.LOCK_NB)
}

func (d *FileDriver) Unlock() error {
	return unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
}

func (d *FileDriver) Ctl(op int, in interface{}) (interface{}, error) { return nil, nil }
