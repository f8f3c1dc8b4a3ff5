package iodrv

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/coldvault/mdcache/common"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDriver is a Driver backed by a github.com/syndtr/goleveldb store,
// keyed by the 8-byte big-endian address. It's an alternative container
// backend for deployments that would rather ride an LSM tree than a flat
// file (e.g. embedding the container inside a larger key/value store).
type LevelDriver struct {
	mu  sync.Mutex
	db  *leveldb.DB
	eoa uint64
	eof uint64
}

func NewLevelDriver() *LevelDriver { return &LevelDriver{} }

func (d *LevelDriver) Open(name string) error {
	db, err := leveldb.OpenFile(name, nil)
	if err != nil {
		return err
	}
	d.db = db
	return nil
}

func (d *LevelDriver) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *LevelDriver) Cmp(other Driver) int {
	o, ok := other.(*LevelDriver)
	if !ok || o.db != d.db {
		return -1
	}
	return 0
}

func (d *LevelDriver) Query() Feature { return 0 }

func key(addr common.Address) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(addr))
	return b
}

func (d *LevelDriver) GetEOA() common.Address { return common.Address(atomic.LoadUint64(&d.eoa)) }
func (d *LevelDriver) SetEOA(addr common.Address) error {
	atomic.StoreUint64(&d.eoa, uint64(addr))
	return nil
}
func (d *LevelDriver) GetEOF() common.Address { return common.Address(atomic.LoadUint64(&d.eof)) }

func (d *LevelDriver) Alloc(size int) (common.Address, error) {
	addr := atomic.AddUint64(&d.eoa, uint64(size)) - uint64(size)
	for {
		eof := atomic.LoadUint64(&d.eof)
		if addr+uint64(size) <= eof || atomic.CompareAndSwapUint64(&d.eof, eof, addr+uint64(size)) {
			break
		}
	}
	return common.Address(addr), nil
}

func (d *LevelDriver) Free(addr common.Address, size int) error {
	return d.db.Delete(key(addr), nil)
}

func (d *LevelDriver) Read(addr common.Address, buf []byte) error {
	v, err := d.db.Get(key(addr), nil)
	if err == leveldb.ErrNotFound {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return err
	}
	copy(buf, v)
	return nil
}

func (d *LevelDriver) Write(addr common.Address, buf []byte) error {
	return d.db.Put(key(addr), buf, nil)
}

func (d *LevelDriver) Flush() error      { return nil }
func (d *LevelDriver) Truncate() error   { return nil }
func (d *LevelDriver) Lock(bool) error   { return nil }
func (d *LevelDriver) Unlock() error     { return nil }

func (d *LevelDriver) Ctl(op int, in interface{}) (interface{}, error) { return nil, nil }
