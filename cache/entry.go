package cache

import "github.com/coldvault/mdcache/common"

// StateFlags are the state bits tracked for an entry. Several are
// independently composable (Pinned is orthogonal to Protected).
type StateFlags uint32

const (
	FlagDirty StateFlags = 1 << iota
	FlagProtected
	FlagPinned
	FlagFlushMarked
	FlagFlushMeLast
	FlagFlushMeCollectively
	FlagCollAccess
	FlagImageUpToDate
	FlagSerializedBefore
	FlagUnserialized
)

func (f StateFlags) has(bit StateFlags) bool { return f&bit != 0 }

// entry is one cached metadata object. Exported accessors on *Cache
// return copies (EntryStatus) so callers can't mutate cache state
// without going through the protect/unprotect engine.
type entry struct {
	address common.Address
	class   ClassID
	tag     common.Address
	ring    common.Ring
	size    int
	payload interface{}
	flags   StateFlags

	// parents/children: weak references forming the flush DAG. The DAG
	// itself is owned by depGraph (cache/deps.go, backed by
	// heimdalr/dag); this entry only remembers which addresses it's
	// linked to so DestroyFlushDependency and eviction's "dirty parent
	// suppresses clean-child eviction" rule can look things up without
	// walking the whole graph.
	parents  map[common.Address]struct{}
	children map[common.Address]struct{}

	// protect/pin bookkeeping (component D).
	writeProtected bool
	roProtectCount int
	pinCount       int

	isEpochMarker bool
	isGhost       bool // class.Flags().Has(FlagGhost): counted, zero on-disk bytes
}

func newEntry(addr common.Address, class ClassID, tag common.Address, ring common.Ring, size int, payload interface{}, ghost bool) *entry {
	return &entry{
		address:  addr,
		class:    class,
		tag:      tag,
		ring:     ring,
		size:     size,
		payload:  payload,
		flags:    FlagImageUpToDate,
		parents:  make(map[common.Address]struct{}),
		children: make(map[common.Address]struct{}),
		isGhost:  ghost,
	}
}

func (e *entry) protectedOrPinned() bool {
	return e.writeProtected || e.roProtectCount > 0 || e.pinCount > 0
}

// EntryStatus is the read-only snapshot returned by Cache.GetEntryStatus.
type EntryStatus struct {
	Address    common.Address
	ClassID    ClassID
	Tag        common.Address
	Ring       common.Ring
	Size       int
	Dirty      bool
	Protected  bool
	Pinned     bool
	IsGhost    bool
	InCache    bool
	NumParents int
}

func (e *entry) status() EntryStatus {
	return EntryStatus{
		Address:    e.address,
		ClassID:    e.class,
		Tag:        e.tag,
		Ring:       e.ring,
		Size:       e.size,
		Dirty:      e.flags.has(FlagDirty),
		Protected:  e.writeProtected || e.roProtectCount > 0,
		Pinned:     e.pinCount > 0,
		IsGhost:    e.isGhost,
		InCache:    true,
		NumParents: len(e.parents),
	}
}
