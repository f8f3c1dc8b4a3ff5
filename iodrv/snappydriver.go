package iodrv

import (
	"encoding/binary"

	"github.com/coldvault/mdcache/common"
	"github.com/golang/snappy"
)

// SnappyDriver wraps another Driver and transparently snappy-compresses
// every write, decompressing on read. Compressed records are stored as
// a 4-byte little-endian compressed-length prefix followed by the
// snappy block, so Read can cut the block out of an oversized scratch
// read even though the caller's buf is sized for the uncompressed payload.
type SnappyDriver struct {
	Driver
}

func NewSnappyDriver(underlying Driver) *SnappyDriver {
	return &SnappyDriver{Driver: underlying}
}

func (s *SnappyDriver) Write(addr common.Address, buf []byte) error {
	compressed := snappy.Encode(nil, buf)
	out := make([]byte, 4+len(compressed))
	binary.LittleEndian.PutUint32(out, uint32(len(compressed)))
	copy(out[4:], compressed)
	return s.Driver.Write(addr, out)
}

func (s *SnappyDriver) Read(addr common.Address, buf []byte) error {
	// The caller doesn't know the compressed size in advance; read a
	// generously oversized scratch region, then trim.
	scratch := make([]byte, len(buf)*2+64)
	if err := s.Driver.Read(addr, scratch); err != nil {
		return err
	}
	compressedLen := int(binary.LittleEndian.Uint32(scratch[:4]))
	if compressedLen > len(scratch)-4 {
		return snappy.ErrCorrupt
	}
	decoded, err := snappy.Decode(nil, scratch[4:4+compressedLen])
	if err != nil {
		return err
	}
	n := len(decoded)
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, decoded[:n])
	return nil
}

func (s *SnappyDriver) Query() Feature { return s.Driver.Query() }
