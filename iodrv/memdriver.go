package iodrv

import (
	"sync"

	"github.com/coldvault/mdcache/common"
)

// MemDriver is an in-memory Driver, used by tests and by callers who
// want a scratch container with no backing file.
type MemDriver struct {
	mu   sync.Mutex
	data map[common.Address][]byte
	eoa  common.Address
	eof  common.Address
}

func NewMemDriver() *MemDriver {
	return &MemDriver{data: make(map[common.Address][]byte)}
}

func (m *MemDriver) Open(name string) error { return nil }
func (m *MemDriver) Close() error           { return nil }
func (m *MemDriver) Cmp(other Driver) int {
	o, ok := other.(*MemDriver)
	if !ok || o != m {
		return -1
	}
	return 0
}

func (m *MemDriver) Query() Feature { return FeatureVector | FeatureSelection }

func (m *MemDriver) GetEOA() common.Address { return m.eoa }
func (m *MemDriver) SetEOA(addr common.Address) error {
	m.eoa = addr
	return nil
}
func (m *MemDriver) GetEOF() common.Address { return m.eof }

func (m *MemDriver) Alloc(size int) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.eoa
	m.eoa += common.Address(size)
	if m.eoa > m.eof {
		m.eof = m.eoa
	}
	return addr, nil
}

func (m *MemDriver) Free(addr common.Address, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, addr)
	return nil
}

func (m *MemDriver) Read(addr common.Address, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.data[addr]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, src)
	return nil
}

func (m *MemDriver) Write(addr common.Address, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.data[addr] = cp
	if end := addr + common.Address(len(buf)); end > m.eof {
		m.eof = end
	}
	return nil
}

func (m *MemDriver) Flush() error      { return nil }
func (m *MemDriver) Truncate() error   { return nil }
func (m *MemDriver) Lock(bool) error   { return nil }
func (m *MemDriver) Unlock() error     { return nil }

func (m *MemDriver) Ctl(op int, in interface{}) (interface{}, error) { return nil, nil }
