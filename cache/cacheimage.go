package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/coldvault/mdcache/common"
	"github.com/coldvault/mdcache/internal/xlog"
)

const cacheImageVersion uint32 = 1

// CacheImageFlags are header-level flags carried by a persisted cache
// image snapshot (spec.md §6, "Cache image"). No flags are defined yet;
// the field exists so the header's on-disk shape doesn't need to change
// when the first one is.
type CacheImageFlags uint32

// CacheImageEntry is one entry descriptor within a persisted cache
// image: address, size, class, tag, ring, dependency parents, and the
// payload blob itself, per spec.md §6's "a header ...; payload blob."
// Carrying the payload inline means decode-and-insert reconstructs a
// fully usable entry in one pass, rather than a bookkeeping-only
// placeholder that still has to fault in its content on first use.
type CacheImageEntry struct {
	Address common.Address
	Size    int64
	Class   ClassID
	Tag     common.Address
	Ring    common.Ring
	Parents []common.Address
	Payload []byte
}

// EncodeCacheImage serializes a cache image header and its entry
// descriptors to bytes. The wire layout is this module's own — spec.md
// §1 explicitly places on-disk byte layouts out of scope — but the
// fields present match spec.md §6 verbatim: version, flags,
// number-of-entries, then per-entry (address, size, class-id, tag,
// ring, dependency parents, payload).
func EncodeCacheImage(flags CacheImageFlags, entries []CacheImageEntry) []byte {
	buf := make([]byte, 12, 12+96*len(entries))
	binary.BigEndian.PutUint32(buf[0:4], cacheImageVersion)
	binary.BigEndian.PutUint32(buf[4:8], uint32(flags))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(entries)))

	var rec [44]byte
	for _, e := range entries {
		binary.BigEndian.PutUint64(rec[0:8], uint64(e.Address))
		binary.BigEndian.PutUint64(rec[8:16], uint64(e.Size))
		binary.BigEndian.PutUint64(rec[16:24], uint64(e.Class))
		binary.BigEndian.PutUint64(rec[24:32], uint64(e.Tag))
		binary.BigEndian.PutUint32(rec[32:36], uint32(e.Ring))
		binary.BigEndian.PutUint32(rec[36:40], uint32(len(e.Parents)))
		binary.BigEndian.PutUint32(rec[40:44], uint32(len(e.Payload)))
		buf = append(buf, rec[:]...)
		for _, p := range e.Parents {
			var pb [8]byte
			binary.BigEndian.PutUint64(pb[:], uint64(p))
			buf = append(buf, pb[:]...)
		}
		buf = append(buf, e.Payload...)
	}
	return buf
}

// DecodeCacheImage parses bytes produced by EncodeCacheImage.
func DecodeCacheImage(data []byte) (CacheImageFlags, []CacheImageEntry, error) {
	if len(data) < 12 {
		return 0, nil, fmt.Errorf("cache image: truncated header (%d bytes)", len(data))
	}
	version := binary.BigEndian.Uint32(data[0:4])
	if version != cacheImageVersion {
		return 0, nil, fmt.Errorf("cache image: unsupported version %d", version)
	}
	flags := CacheImageFlags(binary.BigEndian.Uint32(data[4:8]))
	numEntries := binary.BigEndian.Uint32(data[8:12])

	off := 12
	entries := make([]CacheImageEntry, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		if off+44 > len(data) {
			return 0, nil, fmt.Errorf("cache image: truncated entry descriptor %d", i)
		}
		e := CacheImageEntry{
			Address: common.Address(binary.BigEndian.Uint64(data[off : off+8])),
			Size:    int64(binary.BigEndian.Uint64(data[off+8 : off+16])),
			Class:   ClassID(binary.BigEndian.Uint64(data[off+16 : off+24])),
			Tag:     common.Address(binary.BigEndian.Uint64(data[off+24 : off+32])),
			Ring:    common.Ring(binary.BigEndian.Uint32(data[off+32 : off+36])),
		}
		numParents := binary.BigEndian.Uint32(data[off+36 : off+40])
		payloadLen := binary.BigEndian.Uint32(data[off+40 : off+44])
		off += 44
		if off+8*int(numParents) > len(data) {
			return 0, nil, fmt.Errorf("cache image: truncated parent list for entry %d", i)
		}
		e.Parents = make([]common.Address, numParents)
		for j := range e.Parents {
			e.Parents[j] = common.Address(binary.BigEndian.Uint64(data[off : off+8]))
			off += 8
		}
		if off+int(payloadLen) > len(data) {
			return 0, nil, fmt.Errorf("cache image: truncated payload for entry %d", i)
		}
		e.Payload = make([]byte, payloadLen)
		copy(e.Payload, data[off:off+int(payloadLen)])
		off += int(payloadLen)
		entries = append(entries, e)
	}
	return flags, entries, nil
}

// buildCacheImageLocked snapshots every resident, non-ghost, non-marker
// entry into descriptor form (including its current serialized image),
// for writing out on close. Callers are expected to have flushed first
// (Close does), so every candidate entry is clean and image-up-to-date.
func (c *Cache) buildCacheImageLocked() ([]CacheImageEntry, error) {
	out := make([]CacheImageEntry, 0, c.idx.len())
	for addr, e := range c.idx.byAddress {
		if e.isEpochMarker || e.isGhost {
			continue
		}
		cls, ok := c.registry.Lookup(e.class)
		if !ok {
			continue
		}
		image := make([]byte, e.size)
		if err := cls.Serialize(e.payload, image); err != nil {
			return nil, resourceErr(err, "cache image: serialize failed for %s", addr)
		}
		parents := make([]common.Address, 0, len(e.parents))
		for p := range e.parents {
			parents = append(parents, p)
		}
		out = append(out, CacheImageEntry{
			Address: addr,
			Size:    int64(e.size),
			Class:   e.class,
			Tag:     e.tag,
			Ring:    e.ring,
			Parents: parents,
			Payload: image,
		})
	}
	return out, nil
}

// persistCacheImageLocked writes a fresh snapshot to the configured
// cache image address.
func (c *Cache) persistCacheImageLocked() error {
	if !c.cacheImageEnabled || c.cacheImageAddr == common.NilAddress {
		return nil
	}
	entries, err := c.buildCacheImageLocked()
	if err != nil {
		return err
	}
	image := EncodeCacheImage(0, entries)
	if err := c.dispatcher.Write(c.cacheImageAddr, image); err != nil {
		return resourceErr(err, "cache image: write failed")
	}
	c.cacheImageSize = int64(len(image))
	return nil
}

// loadCacheImageLocked performs the decode-and-insert spec.md §6
// describes: "the first subsequent protect triggers decode-and-insert
// for all image entries." It is a no-op after the first call (whether
// or not an image was actually present) and a no-op if no image was
// configured.
func (c *Cache) loadCacheImageLocked() error {
	if !c.cacheImagePending {
		return nil
	}
	c.cacheImagePending = false
	if !c.cacheImageEnabled || c.cacheImageAddr == common.NilAddress || c.cacheImageSize == 0 {
		return nil
	}

	raw := make([]byte, c.cacheImageSize)
	if err := c.dispatcher.Read(c.cacheImageAddr, raw); err != nil {
		return resourceErr(err, "cache image: read failed")
	}
	_, descriptors, err := DecodeCacheImage(raw)
	if err != nil {
		return corruptionErr("cache image: decode failed: %v", err)
	}

	for _, d := range descriptors {
		if _, exists := c.idx.get(d.Address); exists {
			continue
		}
		cls, ok := c.registry.Lookup(d.Class)
		if !ok {
			return corruptionErr("cache image: unknown class id %d for entry %s", d.Class, d.Address)
		}
		payload, err := cls.Deserialize(d.Payload, len(d.Payload), nil)
		if err != nil {
			return corruptionErr("cache image: deserialize failed for %s: %v", d.Address, err)
		}
		e := newEntry(d.Address, d.Class, d.Tag, d.Ring, int(d.Size), payload, cls.Flags().Has(FlagGhost))
		e.flags |= FlagSerializedBefore
		c.idx.put(e)
		c.tags.add(e)
		c.deps.ensureVertex(d.Address)
		if !e.isGhost {
			c.currentSize += d.Size
		}
		if err := cls.Notify(EventLoaded, payload); err != nil {
			return resourceErr(err, "cache image: notify(loaded) failed for %s", d.Address)
		}
	}
	for _, d := range descriptors {
		child, ok := c.idx.get(d.Address)
		if !ok {
			continue
		}
		for _, parentAddr := range d.Parents {
			parent, ok := c.idx.get(parentAddr)
			if !ok {
				continue
			}
			if err := c.deps.createEdge(parentAddr, d.Address); err != nil {
				continue
			}
			parent.children[d.Address] = struct{}{}
			child.parents[parentAddr] = struct{}{}
		}
	}
	xlog.Info("cache image decoded", "entries", len(descriptors))
	return nil
}

// Close flushes every ring, persists a cache image if configured, and
// marks the cache as shut down.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	if err := c.flushLocked(FlushClean, nil); err != nil {
		return err
	}
	return c.persistCacheImageLocked()
}
