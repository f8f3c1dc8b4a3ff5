package cache

import (
	"context"
	"sync"
	"time"

	"github.com/coldvault/mdcache/common"
	"github.com/coldvault/mdcache/config"
	"github.com/coldvault/mdcache/internal/xlog"
	"github.com/coldvault/mdcache/internal/xmetrics"
	"github.com/coldvault/mdcache/internal/xtrace"
	"github.com/coldvault/mdcache/iodrv"
	"github.com/VictoriaMetrics/fastcache"
)

var (
	hitMeter       = xmetrics.NewRegisteredMeter("mdcache/hit")
	missMeter      = xmetrics.NewRegisteredMeter("mdcache/miss")
	insertMeter    = xmetrics.NewRegisteredMeter("mdcache/insert")
	evictMeter     = xmetrics.NewRegisteredMeter("mdcache/evict")
	protectTimer   = xmetrics.NewRegisteredResettingTimer("mdcache/protect/time")
	unprotectTimer = xmetrics.NewRegisteredResettingTimer("mdcache/unprotect/time")
)

// WritePermissionFunc governs whether the caller running on this rank
// may currently perform writes.
type WritePermissionFunc func() bool

// LoggedWriteFunc is invoked once per flushed entry, the rank-0
// logged-write callback.
type LoggedWriteFunc func(addr common.Address, size int)

// Cache is the metadata cache: the protect/unprotect engine wired to
// the index, tag/ring bookkeeping, dependency graph, auto-resize
// controller, multi-writer coordinator, and block-I/O dispatcher.
//
// The scheduling model is single-threaded cooperative per container. mu
// exists to make that contract explicit and to let a caller share one
// *Cache across goroutines that take turns. It is held for the whole of
// each public verb, including any dispatcher read or write the verb
// issues (a Protect miss, a Flush).
type Cache struct {
	mu sync.Mutex

	registry   *Registry
	idx        *index
	tags       *tagIndex
	deps       *depGraph
	dispatcher *iodrv.Dispatcher

	clean *fastcache.Cache // allocated by New; no code path stores images into it or reads them back

	maxSize      int64
	minCleanSize int64
	currentSize  int64

	writePermission WritePermissionFunc
	loggedWrite     LoggedWriteFunc

	resize      *resizeController
	coordinator *coordinator

	hits, misses uint64
	opsThisEpoch int

	corkedTags map[common.Address]bool

	ringSettled  [common.NumRings]bool
	shuttingDown bool

	cacheImageEnabled bool
	cacheImagePending bool
	cacheImageAddr    common.Address
	cacheImageSize    int64

	ignoreTags bool
}

// Options configures Cache creation: max size, min clean size, the
// class registry, write-permission and logged-write callbacks, the
// auto-resize policy, and optional multi-writer coordination.
type Options struct {
	MaxSize         int64
	MinCleanSize    int64
	Registry        *Registry
	Dispatcher      *iodrv.Dispatcher
	WritePermission WritePermissionFunc
	LoggedWrite     LoggedWriteFunc
	AutoResize      config.AutoResize
	Coordinator     *CoordinatorConfig // nil for single-writer

	// CacheImage configures the optional on-disk cache snapshot
	// (spec.md §6, "Cache image"). CacheImageAddress/CacheImageSize name
	// where an existing image lives on disk, if CacheImage.Enabled and a
	// superblock record already points at one; leave CacheImageSize zero
	// for a fresh container with nothing to decode yet.
	CacheImage        config.CacheImage
	CacheImageAddress common.Address
	CacheImageSize    int64

	// IgnoreTags disables the tag-sanity check Insert otherwise enforces
	// (spec.md §4.D: "Tag flag `ignore-tags` disables tag sanity in test
	// contexts only"). Production callers should never set this.
	IgnoreTags bool
}

// New creates a cache instance, one per container.
func New(opts Options) (*Cache, error) {
	if opts.Registry == nil {
		return nil, argErr("cache: registry must not be nil")
	}
	if opts.Dispatcher == nil {
		return nil, argErr("cache: dispatcher must not be nil")
	}
	c := &Cache{
		registry:        opts.Registry,
		idx:             newIndex(),
		tags:            newTagIndex(),
		deps:            newDepGraph(),
		dispatcher:      opts.Dispatcher,
		clean:           fastcache.New(32 * 1024 * 1024),
		maxSize:         opts.MaxSize,
		minCleanSize:    opts.MinCleanSize,
		writePermission: opts.WritePermission,
		loggedWrite:     opts.LoggedWrite,
		corkedTags:      make(map[common.Address]bool),

		cacheImageEnabled: opts.CacheImage.Enabled,
		cacheImagePending: opts.CacheImage.Enabled,
		cacheImageAddr:    opts.CacheImageAddress,
		cacheImageSize:    opts.CacheImageSize,
		ignoreTags:        opts.IgnoreTags,
	}
	if c.writePermission == nil {
		c.writePermission = func() bool { return true }
	}
	c.resize = newResizeController(opts.AutoResize)
	if opts.Coordinator != nil {
		c.coordinator = newCoordinator(*opts.Coordinator)
	}
	xlog.Info("cache created", "max_size", opts.MaxSize, "min_clean_size", opts.MinCleanSize)
	return c, nil
}

// SetSyncPointHandler installs the broadcast hook a multi-writer
// transport uses to tell every other rank which addresses a sync point
// just cleaned. It's a no-op on a single-writer cache.
func (c *Cache) SetSyncPointHandler(fn func(cleaned []common.Address) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coordinator != nil {
		c.coordinator.onSyncPoint = fn
	}
}

func (c *Cache) canWrite() bool {
	if c.coordinator != nil {
		return c.coordinator.canWrite(c.writePermission)
	}
	return c.writePermission()
}

// Insert registers a new entry owning address.
func (c *Cache) Insert(address common.Address, class ClassID, tag common.Address, ring common.Ring, payload interface{}, dirty bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canWrite() {
		return resourceErr(nil, "insert: container is read-only on this rank")
	}
	if _, exists := c.idx.get(address); exists {
		return invariantErr("insert: entry already exists at %s", address)
	}
	cls, ok := c.registry.Lookup(class)
	if !ok {
		return argErr("insert: unknown class id %d", class)
	}
	if tag == common.NilAddress && !cls.Flags().Has(FlagGhost) && !c.ignoreTags {
		return argErr("insert: non-internal entry at %s requires a tag", address)
	}

	size := cls.ImageLen(payload)
	e := newEntry(address, class, tag, ring, size, payload, cls.Flags().Has(FlagGhost))
	if dirty {
		e.flags |= FlagDirty
	}

	c.idx.put(e)
	c.tags.add(e)
	c.deps.ensureVertex(address)
	if !e.isGhost {
		c.currentSize += int64(size)
	}

	if err := cls.Notify(EventInserted, payload); err != nil {
		return resourceErr(err, "insert: notify(inserted) failed for %s", address)
	}

	insertMeter.Mark(1)
	if grown, changed := c.resize.flashIncrement(size, c.maxSize); changed {
		xlog.Info("cache flash-incremented", "before", c.maxSize, "after", grown, "entry_size", size)
		c.maxSize = grown
	}
	c.touchEpoch()
	if dirty && c.coordinator != nil {
		c.coordinator.markDirtied(address)
		c.coordinator.accrueDirty(int64(size))
		if c.coordinator.overThreshold() {
			if err := c.runSyncPoint(); err != nil {
				return err
			}
		}
	}
	c.maybeEvict()
	return nil
}

// Protect returns the exclusive (or shared read-only) reference to the
// entry at address, loading it from the dispatcher if absent.
func (c *Cache) Protect(address common.Address, class ClassID, userData interface{}, writeIntent bool) (interface{}, error) {
	_, end := xtrace.Start(context.Background(), "mdcache.Protect")
	defer end()
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if writeIntent && !c.canWrite() {
		return nil, resourceErr(nil, "protect: write intent requires write permission")
	}

	if err := c.loadCacheImageLocked(); err != nil {
		return nil, err
	}

	e, ok := c.idx.get(address)
	if !ok {
		cls, ok := c.registry.Lookup(class)
		if !ok {
			return nil, argErr("protect: unknown class id %d", class)
		}
		loaded, err := c.loadEntry(address, cls, userData)
		if err != nil {
			return nil, err
		}
		e = loaded
		c.misses++
	} else {
		c.hits++
		hitMeter.Mark(1)
	}

	cls, _ := c.registry.Lookup(e.class)
	roConcurrent := cls.Flags().Has(FlagReadOnlyConcurrent)

	if e.writeProtected {
		return nil, invariantErr("protect: %s already write-protected", address)
	}
	if e.roProtectCount > 0 {
		if writeIntent || !roConcurrent {
			return nil, invariantErr("protect: %s already protected and class disallows concurrent RO", address)
		}
	}

	if writeIntent {
		e.writeProtected = true
	} else {
		e.roProtectCount++
	}
	c.idx.markUnevictable(address)
	c.idx.touch(address)

	protectTimer.UpdateSince(start)
	return e.payload, nil
}

// loadEntry materializes an entry from disk via the class's
// get_load_size/deserialize pair and the dispatcher, on a protect miss.
func (c *Cache) loadEntry(address common.Address, cls Class, userData interface{}) (*entry, error) {
	size, err := cls.GetLoadSize(userData)
	if err != nil {
		return nil, resourceErr(err, "protect: get_load_size failed for %s", address)
	}
	image := make([]byte, size)
	if err := c.dispatcher.Read(address, image); err != nil {
		missMeter.Mark(1)
		return nil, resourceErr(err, "protect: dispatcher read failed for %s", address)
	}
	if !verifyChecksum(cls, image, userData) {
		return nil, corruptionErr("protect: checksum verification failed at %s", address)
	}
	payload, err := cls.Deserialize(image, size, userData)
	if err != nil {
		return nil, corruptionErr("protect: deserialize failed at %s: %v", address, err)
	}
	e := newEntry(address, cls.ID(), common.NilAddress, common.RingUser, size, payload, cls.Flags().Has(FlagGhost))
	e.flags |= FlagSerializedBefore
	c.idx.put(e)
	c.tags.add(e)
	c.deps.ensureVertex(address)
	if !e.isGhost {
		c.currentSize += int64(size)
	}
	if err := cls.Notify(EventLoaded, payload); err != nil {
		return nil, resourceErr(err, "protect: notify(loaded) failed for %s", address)
	}
	missMeter.Mark(1)
	c.touchEpoch()
	return e, nil
}

// UnprotectFlags are the flags Unprotect accepts.
type UnprotectFlags struct {
	Dirtied           bool
	Deleted           bool
	PinOnUnprotect    bool
	FlushLast         bool
	FlushCollectively bool
}

// Unprotect releases a protection acquired by Protect.
func (c *Cache) Unprotect(address common.Address, flags UnprotectFlags) error {
	_, end := xtrace.Start(context.Background(), "mdcache.Unprotect")
	defer end()
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.idx.get(address)
	if !ok {
		return argErr("unprotect: no entry at %s", address)
	}
	if !e.writeProtected && e.roProtectCount == 0 {
		return invariantErr("unprotect: %s is not protected", address)
	}

	cls, _ := c.registry.Lookup(e.class)

	if flags.Deleted {
		if e.writeProtected {
			e.writeProtected = false
		} else {
			e.roProtectCount--
		}
		return c.removeLocked(e, true)
	}

	if !flags.Deleted {
		wantSize := cls.ImageLen(e.payload)
		if wantSize != e.size {
			return invariantErr("unprotect: size mismatch at %s: recorded %d, image_len %d", address, e.size, wantSize)
		}
	}

	wasClean := !e.flags.has(FlagDirty)
	if flags.Dirtied {
		e.flags |= FlagDirty
	}
	if flags.FlushLast {
		e.flags |= FlagFlushMeLast
	}
	if flags.FlushCollectively {
		e.flags |= FlagFlushMeCollectively
	}

	if e.writeProtected {
		e.writeProtected = false
	} else {
		e.roProtectCount--
	}

	if flags.PinOnUnprotect {
		e.pinCount++
	}

	if !e.protectedOrPinned() {
		c.idx.markEvictable(address)
	}

	if flags.Dirtied && wasClean {
		if err := cls.Notify(EventDirtied, e.payload); err != nil {
			return resourceErr(err, "unprotect: notify(dirtied) failed for %s", address)
		}
		if c.coordinator != nil {
			c.coordinator.markDirtied(address)
			c.coordinator.accrueDirty(int64(e.size))
		}
	}

	unprotectTimer.UpdateSince(start)
	if c.coordinator != nil && c.coordinator.overThreshold() {
		return c.runSyncPoint()
	}
	c.maybeEvict()
	return nil
}

// Pin marks address resident across evictions, independent of any
// current protect.
func (c *Cache) Pin(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("pin: no entry at %s", address)
	}
	if e.pinCount == 0 {
		c.idx.markUnevictable(address)
	}
	e.pinCount++
	return nil
}

func (c *Cache) Unpin(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("unpin: no entry at %s", address)
	}
	if e.pinCount == 0 {
		return invariantErr("unpin: %s is not pinned", address)
	}
	e.pinCount--
	if !e.protectedOrPinned() {
		c.idx.markEvictable(address)
	}
	return nil
}

// MarkDirty sets the dirty flag on an entry currently pinned or
// protected.
func (c *Cache) MarkDirty(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("mark_dirty: no entry at %s", address)
	}
	if !e.protectedOrPinned() {
		return invariantErr("mark_dirty: %s must be pinned or protected", address)
	}
	e.flags |= FlagDirty
	return nil
}

func (c *Cache) MarkClean(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("mark_clean: no entry at %s", address)
	}
	e.flags &^= FlagDirty
	return nil
}

// MarkSerialized clears the unserialized bit on this one entry and marks
// its image up to date; ancestors are left as they are. MarkUnserialized
// sets the bit and propagates it to every ancestor in the dependency DAG.
func (c *Cache) MarkSerialized(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("mark_serialized: no entry at %s", address)
	}
	e.flags &^= FlagUnserialized
	e.flags |= FlagImageUpToDate
	return nil
}

func (c *Cache) MarkUnserialized(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.idx.get(address)
	if !ok {
		return argErr("mark_unserialized: no entry at %s", address)
	}
	c.propagateUnserialized(address)
	return nil
}

func (c *Cache) propagateUnserialized(address common.Address) {
	e, ok := c.idx.get(address)
	if !ok {
		return
	}
	if e.flags.has(FlagUnserialized) {
		return // already propagated past this node
	}
	e.flags |= FlagUnserialized
	e.flags &^= FlagImageUpToDate
	for parent := range e.parents {
		c.propagateUnserialized(parent)
	}
}

// ResizeEntry changes the recorded size of a pinned-or-protected entry.
// If the entry was clean it becomes dirty, and in multi-writer mode the
// dirty-byte threshold is charged the entry's size *before* this resize
// — a quirk preserved as-is rather than "fixed".
func (c *Cache) ResizeEntry(address common.Address, newSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("resize_entry: no entry at %s", address)
	}
	if !e.protectedOrPinned() {
		return invariantErr("resize_entry: %s must be pinned or protected", address)
	}

	wasClean := !e.flags.has(FlagDirty)
	initialSize := e.size

	if !e.isGhost {
		c.currentSize += int64(newSize - e.size)
	}
	e.size = newSize

	if wasClean {
		e.flags |= FlagDirty
		if c.coordinator != nil {
			// Accrues the *initial* size, not newSize. Preserved as-is
			// rather than "fixed".
			c.coordinator.markDirtied(address)
			c.coordinator.accrueDirty(int64(initialSize))
		}
	}
	return nil
}

// MoveEntry atomically re-keys an entry from oldAddress to newAddress.
func (c *Cache) MoveEntry(oldAddress, newAddress common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.idx.get(newAddress); exists {
		return invariantErr("move_entry: an entry already exists at %s", newAddress)
	}
	e, ok := c.idx.get(oldAddress)
	if !ok {
		return argErr("move_entry: no entry at %s", oldAddress)
	}

	c.idx.delete(oldAddress)
	c.tags.remove(e)
	e.address = newAddress
	c.idx.put(e)
	c.tags.add(e)
	if !e.flags.has(FlagDirty) {
		e.flags |= FlagDirty
	}
	if c.coordinator != nil {
		c.coordinator.markDirtied(newAddress)
		c.coordinator.accrueDirty(int64(e.size))
	}
	return nil
}

// CreateFlushDependency asserts that parent must flush before child: a
// flush writes child only after parent's write has completed.
func (c *Cache) CreateFlushDependency(parent, child common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.idx.get(parent)
	if !ok {
		return argErr("create_flush_dependency: no entry at parent %s", parent)
	}
	ch, ok := c.idx.get(child)
	if !ok {
		return argErr("create_flush_dependency: no entry at child %s", child)
	}
	if err := c.deps.createEdge(parent, child); err != nil {
		return err
	}
	p.children[child] = struct{}{}
	ch.parents[parent] = struct{}{}
	return nil
}

// DestroyFlushDependency removes a dependency edge; if the child is
// unserialized, cleanup of the ancestor's image-up-to-date propagates.
func (c *Cache) DestroyFlushDependency(parent, child common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deps.destroyEdge(parent, child); err != nil {
		return err
	}
	if p, ok := c.idx.get(parent); ok {
		delete(p.children, child)
	}
	if ch, ok := c.idx.get(child); ok {
		delete(ch.parents, parent)
		if ch.flags.has(FlagUnserialized) {
			c.propagateUnserialized(parent)
		}
	}
	return nil
}

// ExpungeEntry discards an entry even if dirty. Pinned or protected
// entries are rejected.
func (c *Cache) ExpungeEntry(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("expunge_entry: no entry at %s", address)
	}
	if e.protectedOrPinned() {
		return invariantErr("expunge_entry: %s is pinned or protected", address)
	}
	return c.removeLocked(e, true)
}

// RemoveEntry removes a clean, unpinned, unprotected, dependency-free
// entry: the cheap path compared to ExpungeEntry.
func (c *Cache) RemoveEntry(address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return argErr("remove_entry: no entry at %s", address)
	}
	if e.protectedOrPinned() {
		return invariantErr("remove_entry: %s is pinned or protected", address)
	}
	if e.flags.has(FlagDirty) {
		return invariantErr("remove_entry: %s is dirty", address)
	}
	if len(e.parents) > 0 || len(e.children) > 0 {
		return invariantErr("remove_entry: %s has flush dependencies", address)
	}
	return c.removeLocked(e, false)
}

// removeLocked removes e from every structure and releases its in-core
// representation via FreeICR. notifyEvicted additionally sends the class
// EventEvicted first; RemoveEntry passes false.
func (c *Cache) removeLocked(e *entry, notifyEvicted bool) error {
	c.idx.delete(e.address)
	c.tags.remove(e)
	c.deps.removeVertex(e.address)
	if !e.isGhost {
		c.currentSize -= int64(e.size)
	}
	if cls, ok := c.registry.Lookup(e.class); ok {
		if notifyEvicted {
			_ = cls.Notify(EventEvicted, e.payload)
		}
		cls.FreeICR(e.payload)
	}
	return nil
}

// GetEntryStatus returns a read-only snapshot of the entry at address.
func (c *Cache) GetEntryStatus(address common.Address) (EntryStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return EntryStatus{}, false
	}
	return e.status(), true
}

// GetCacheSize returns current resident bytes and the configured max.
func (c *Cache) GetCacheSize() (current, max int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize, c.maxSize
}

// SetCacheAutoResizeConfig installs a new auto-resize policy, replacing
// the controller wholesale. The new policy governs subsequent
// flash-increment checks and epoch boundaries; it does not retroactively
// reapply against the cache's current size.
func (c *Cache) SetCacheAutoResizeConfig(cfg config.AutoResize) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	reportFunc := c.resize.reportFunc
	c.resize = newResizeController(cfg)
	c.resize.SetReportFunc(reportFunc)
	return nil
}

// GetCacheAutoResizeConfig returns the auto-resize policy currently in
// effect.
func (c *Cache) GetCacheAutoResizeConfig() config.AutoResize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resize.cfg
}

// GetCacheHitRate returns hits / (hits+misses) since the last reset.
func (c *Cache) GetCacheHitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) ResetCacheHitRateStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses = 0, 0
}

// Cork marks tag as corked. While corked, FlushTagged(tag) returns
// without writing anything; MarkDirty calls on members still set the
// bit, and a whole-cache Flush still writes the tag's dirty members
// along with the rest of their ring.
func (c *Cache) Cork(tag common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corkedTags[tag] = true
}

func (c *Cache) Uncork(tag common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.corkedTags, tag)
}

func (c *Cache) IsCorked(tag common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.corkedTags[tag]
}

// EntryRing reports the ring an entry currently belongs to.
func (c *Cache) EntryRing(address common.Address) (common.Ring, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.idx.get(address)
	if !ok {
		return 0, false
	}
	return e.ring, true
}

// UnsettleRing marks ring as touched: touching an entry in ring r
// unsettles that ring. During shutdown, mutating an already-settled
// ring is a fatal invariant violation — once shuttingDown is true, a
// ring that has settled may never unsettle again.
func (c *Cache) UnsettleRing(ring common.Ring) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shuttingDown && c.ringSettled[ring] {
		return invariantErr("unsettle_ring: ring %s is settled during shutdown", ring)
	}
	c.ringSettled[ring] = false
	return nil
}

func (c *Cache) settleRing(ring common.Ring) {
	c.ringSettled[ring] = true
}

// BeginShutdown flags the cache as closing. Rings settle as flushLocked
// drains each ring that has dirty entries, in increasing ring order
// (RingUser first, RingSB last).
func (c *Cache) BeginShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
}

func (c *Cache) touchEpoch() {
	c.opsThisEpoch++
	if c.resize.epochLength > 0 && c.opsThisEpoch >= c.resize.epochLength {
		c.opsThisEpoch = 0
		c.idx.insertEpochMarker()
		hr := 0.0
		total := c.hits + c.misses
		if total > 0 {
			hr = float64(c.hits) / float64(total)
		}
		before := c.maxSize
		c.maxSize = c.resize.onEpoch(hr, c.maxSize)
		if c.maxSize != before {
			xlog.Info("cache auto-resized", "before", before, "after", c.maxSize, "hit_rate", hr)
		}
		c.hits, c.misses = 0, 0
	}
}
