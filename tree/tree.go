// Package tree implements TreeSector (spec.md §4.9): a B+ tree whose
// nodes are packed into sectors via delim.DelimitedBuffer, generic over
// (Key, Value, Order N) the way the spec describes, with Go generics
// plus an explicit Codec pair standing in for the source's template
// parameters. It is the one genuinely novel data structure in Phylum —
// none of the teacher's disk-image code has anything like it — so its
// node layout and split rules are built from spec.md §4.9's prose
// directly rather than adapted from an existing teacher routine, the
// way DESIGN.md records for every other package.
package tree

import (
	"encoding/binary"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/metrics"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// ordered is the subset of cmp.Ordered this package actually needs
// (avoids pulling in the "cmp" package just for the constraint).
type ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 | ~string
}

// node is the in-memory decoded form of one B+ tree node record
// (spec.md §4.9): type (leaf/inner), depth, parent pointer, up to Order
// sorted keys, and either Order values (leaf) or Order+1 child NodePtrs
// (inner).
type node[K ordered, V any] struct {
	isLeaf   bool
	depth    uint8
	parent   records.NodePtr
	keys     []K
	values   []V
	children []records.NodePtr
}

// Tree is spec.md §4.9's TreeSector. It holds no persistent mount state
// of its own beyond the working root pointer: a caller that wants a
// tree to survive a remount persists Root() (e.g. in a
// records.FsFileEntry's PositionIdx/RecordIdx fields, which
// dirtree.DirectoryTree.SetFileTrees stores) and hands it back to Open on
// the next Tree value.
type Tree[K ordered, V any] struct {
	sm         sectormap.SectorMap
	wb         *buffers.WorkingBuffers
	allocator  *chain.Allocator
	keyCodec   Codec[K]
	valueCodec Codec[V]
	order      int
	root       records.NodePtr
	tail       sectormap.SectorID
	metrics    *metrics.Collectors
	tr         *trace.Context
}

// New constructs a Tree of the given order, unattached to any root
// until Format or Open is called.
func New[K ordered, V any](sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, order int, keyCodec Codec[K], valueCodec Codec[V]) *Tree[K, V] {
	return &Tree[K, V]{
		sm:         sm,
		wb:         wb,
		allocator:  allocator,
		order:      order,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		root:       records.InvalidNodePtr,
		tail:       sectormap.Invalid,
	}
}

// WithMetrics attaches Prometheus collectors; pass nil to detach.
func (t *Tree[K, V]) WithMetrics(m *metrics.Collectors) *Tree[K, V] {
	t.metrics = m
	return t
}

// WithTrace attaches a tracing context.
func (t *Tree[K, V]) WithTrace(tr *trace.Context) *Tree[K, V] {
	t.tr = tr
	return t
}

// Root returns the tree's current root NodePtr, for the caller to
// persist across a remount.
func (t *Tree[K, V]) Root() records.NodePtr { return t.root }

// Open attaches the tree to a previously-persisted root, as returned by
// an earlier Format or by Root after mutation.
func (t *Tree[K, V]) Open(root records.NodePtr) { t.root = root }

func (t *Tree[K, V]) slotSize() int {
	if t.valueCodec.Size > 8 {
		return t.valueCodec.Size
	}
	return 8
}

// nodeRecordLen is the fixed encoded length of every node record this
// tree ever writes: tag + isLeaf + depth + numKeys(2) + parent(8), then
// Order keys and Order+1 value/child slots.
func (t *Tree[K, V]) nodeRecordLen() int {
	return 5 + 8 + t.order*t.keyCodec.Size + (t.order+1)*t.slotSize()
}

// Format allocates (by writing into) headSector as the first sector of
// a brand-new, empty tree: a TreeSectorHeader followed by a single
// empty leaf root node. It returns the root NodePtr for the caller to
// persist.
func (t *Tree[K, V]) Format(headSector sectormap.SectorID) (records.NodePtr, error) {
	pl, err := delim.Overwrite(t.sm, t.wb, headSector)
	if err != nil {
		return records.NodePtr{}, err
	}
	defer func() { _ = pl.Release() }()

	hdr := records.TreeSectorHeader{Prev: sectormap.Invalid}
	if _, err := pl.Buffer().AppendBytes(hdr.Encode()); err != nil {
		return records.NodePtr{}, err
	}
	pl.Dirty()

	root := &node[K, V]{isLeaf: true, parent: records.InvalidNodePtr}
	body := t.encodeNode(root)
	rp, err := pl.Buffer().AppendBytes(body)
	if err != nil {
		return records.NodePtr{}, err
	}
	pl.Dirty()
	if err := pl.Flush(); err != nil {
		return records.NodePtr{}, err
	}

	ptr := records.NodePtr{Sector: headSector, Offset: uint32(rp.Position)}
	t.root = ptr
	t.tail = headSector
	return ptr, nil
}

func (t *Tree[K, V]) encodeNode(n *node[K, V]) []byte {
	b := make([]byte, t.nodeRecordLen())
	b[0] = byte(records.TagTreeNode)
	if n.isLeaf {
		b[1] = 1
	}
	b[2] = n.depth
	binary.LittleEndian.PutUint16(b[3:5], uint16(len(n.keys)))
	o := 5
	binary.LittleEndian.PutUint32(b[o:], uint32(n.parent.Sector))
	o += 4
	binary.LittleEndian.PutUint32(b[o:], n.parent.Offset)
	o += 4
	for i := 0; i < t.order; i++ {
		if i < len(n.keys) {
			t.keyCodec.Encode(n.keys[i], b[o:o+t.keyCodec.Size])
		}
		o += t.keyCodec.Size
	}
	slot := t.slotSize()
	for i := 0; i < t.order+1; i++ {
		if n.isLeaf {
			if i < len(n.values) {
				t.valueCodec.Encode(n.values[i], b[o:o+t.valueCodec.Size])
			}
		} else if i < len(n.children) {
			c := n.children[i]
			binary.LittleEndian.PutUint32(b[o:], uint32(c.Sector))
			binary.LittleEndian.PutUint32(b[o+4:], c.Offset)
		}
		o += slot
	}
	return b
}

func (t *Tree[K, V]) decodeNode(b []byte) (*node[K, V], error) {
	if len(b) < t.nodeRecordLen() || records.Tag(b[0]) != records.TagTreeNode {
		return nil, phylumerr.New(phylumerr.Corrupt, "tree.decodeNode", nil)
	}
	n := &node[K, V]{isLeaf: b[1] == 1, depth: b[2]}
	numKeys := int(binary.LittleEndian.Uint16(b[3:5]))
	o := 5
	n.parent = records.NodePtr{
		Sector: sectormap.SectorID(binary.LittleEndian.Uint32(b[o:])),
		Offset: binary.LittleEndian.Uint32(b[o+4:]),
	}
	o += 8
	n.keys = make([]K, numKeys)
	for i := 0; i < t.order; i++ {
		if i < numKeys {
			n.keys[i] = t.keyCodec.Decode(b[o : o+t.keyCodec.Size])
		}
		o += t.keyCodec.Size
	}
	slot := t.slotSize()
	if n.isLeaf {
		n.values = make([]V, numKeys)
	} else {
		n.children = make([]records.NodePtr, numKeys+1)
	}
	for i := 0; i < t.order+1; i++ {
		if n.isLeaf {
			if i < numKeys {
				n.values[i] = t.valueCodec.Decode(b[o : o+t.valueCodec.Size])
			}
		} else if i < numKeys+1 {
			n.children[i] = records.NodePtr{
				Sector: sectormap.SectorID(binary.LittleEndian.Uint32(b[o:])),
				Offset: binary.LittleEndian.Uint32(b[o+4:]),
			}
		}
		o += slot
	}
	return n, nil
}

// loadNode decodes the node record ptr points to, assuming pl is
// already bound to ptr.Sector.
func (t *Tree[K, V]) loadNode(pl *delim.PageLock, ptr records.NodePtr) (*node[K, V], error) {
	rp, err := pl.Buffer().RecordAt(int(ptr.Offset))
	if err != nil {
		return nil, phylumerr.New(phylumerr.Corrupt, "tree.loadNode", err)
	}
	return t.decodeNode(pl.Buffer().RawBody(rp))
}

// gotoNode re-binds pl to ptr.Sector if it isn't already there (PageLock.
// Replace flushes pl's previous sector first if dirty, the same
// write-before-switch discipline chain.Chain relies on) and decodes the
// node at ptr — the spec.md §9 "re-resolve via find_node_in_sector"
// rule, expressed as always reloading rather than trusting a stale
// in-memory pointer.
func (t *Tree[K, V]) gotoNode(pl *delim.PageLock, ptr records.NodePtr) (*node[K, V], error) {
	if pl.Sector() != ptr.Sector {
		if err := pl.Replace(ptr.Sector); err != nil {
			return nil, err
		}
	}
	return t.loadNode(pl, ptr)
}

// storeNode overwrites the node record at ptr in place — every node
// record for a tree has the same fixed length, so this never needs to
// move or resize the record.
func (t *Tree[K, V]) storeNode(pl *delim.PageLock, ptr records.NodePtr, n *node[K, V]) error {
	if pl.Sector() != ptr.Sector {
		if err := pl.Replace(ptr.Sector); err != nil {
			return err
		}
	}
	rp, err := pl.Buffer().RecordAt(int(ptr.Offset))
	if err != nil {
		return phylumerr.New(phylumerr.Corrupt, "tree.storeNode", err)
	}
	copy(pl.Buffer().RawBody(rp), t.encodeNode(n))
	pl.Dirty()
	return nil
}

// allocateNode appends n's record into pl's current sector if there is
// room there, otherwise allocates a brand-new sector (spec.md §4.9
// allocate_node), flushing it through its own page-lock so pl's own
// binding is left untouched.
func (t *Tree[K, V]) allocateNode(pl *delim.PageLock, n *node[K, V]) (records.NodePtr, error) {
	body := t.encodeNode(n)
	pl.Buffer().SeekEndOfBuffer()
	if pl.Buffer().RoomFor(len(body)) {
		rp, err := pl.Buffer().AppendBytes(body)
		if err != nil {
			return records.NodePtr{}, err
		}
		pl.Dirty()
		return records.NodePtr{Sector: pl.Sector(), Offset: uint32(rp.Position)}, nil
	}

	newSector, err := t.allocator.Allocate()
	if err != nil {
		return records.NodePtr{}, err
	}
	newLock, err := delim.Overwrite(t.sm, t.wb, newSector)
	if err != nil {
		return records.NodePtr{}, err
	}
	defer func() { _ = newLock.Release() }()

	hdr := records.TreeSectorHeader{Prev: t.tail}
	if _, err := newLock.Buffer().AppendBytes(hdr.Encode()); err != nil {
		return records.NodePtr{}, err
	}
	newLock.Dirty()
	rp, err := newLock.Buffer().AppendBytes(body)
	if err != nil {
		return records.NodePtr{}, err
	}
	newLock.Dirty()
	if err := newLock.Flush(); err != nil {
		return records.NodePtr{}, err
	}
	t.tail = newSector
	return records.NodePtr{Sector: newSector, Offset: uint32(rp.Position)}, nil
}

// firstIndexNotLess returns the smallest index into keys whose value is
// not less than key — the position used for leaf search and insertion,
// and for FindLastLessThan's descent.
func firstIndexNotLess[K ordered](keys []K, key K) int {
	idx := 0
	for idx < len(keys) && keys[idx] < key {
		idx++
	}
	return idx
}

// childIndex returns the index of the child an inner node descends into
// for key: the number of separator keys not greater than key. A leaf
// split promotes the right sibling's first key, so a key equal to a
// separator lives in the subtree to its right.
func childIndex[K ordered](keys []K, key K) int {
	idx := 0
	for idx < len(keys) && keys[idx] <= key {
		idx++
	}
	return idx
}

func insertAt[T any](s []T, idx int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

// Add inserts (or overwrites, if key is already present) key/value
// (spec.md §4.9 add). If the root itself split, a new root is allocated
// one depth higher and Root() reflects it afterward.
func (t *Tree[K, V]) Add(key K, value V) error {
	pl, err := delim.Reading(t.sm, t.wb, t.root.Sector)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Release() }()

	n, err := t.loadNode(pl, t.root)
	if err != nil {
		return err
	}
	rootDepth := n.depth

	split, sepKey, leftPtr, rightPtr, err := t.insert(pl, t.root, n, key, value)
	if err != nil {
		return err
	}
	if split {
		newRoot := &node[K, V]{
			isLeaf:   false,
			depth:    rootDepth + 1,
			parent:   records.InvalidNodePtr,
			keys:     []K{sepKey},
			children: []records.NodePtr{leftPtr, rightPtr},
		}
		newRootPtr, err := t.allocateNode(pl, newRoot)
		if err != nil {
			return err
		}
		t.root = newRootPtr
	}
	return pl.Flush()
}

// insert descends from n (bound at ptr) applying spec.md §4.9's
// leaf_node_insert / inner_node_insert rules, returning split=true plus
// the promoted separator key and the two resulting child NodePtrs if n
// itself had to split.
func (t *Tree[K, V]) insert(pl *delim.PageLock, ptr records.NodePtr, n *node[K, V], key K, value V) (bool, K, records.NodePtr, records.NodePtr, error) {
	if n.isLeaf {
		return t.leafInsert(pl, ptr, n, key, value)
	}
	return t.innerInsert(pl, ptr, n, key, value)
}

func (t *Tree[K, V]) leafInsert(pl *delim.PageLock, ptr records.NodePtr, n *node[K, V], key K, value V) (bool, K, records.NodePtr, records.NodePtr, error) {
	var zeroK K
	idx := firstIndexNotLess(n.keys, key)
	if idx < len(n.keys) && n.keys[idx] == key {
		n.values[idx] = value
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, t.storeNode(pl, ptr, n)
	}
	if len(n.keys) < t.order {
		n.keys = insertAt(n.keys, idx, key)
		n.values = insertAt(n.values, idx, value)
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, t.storeNode(pl, ptr, n)
	}

	// Split at threshold = ceil((N+1)/2) (spec.md §4.9 leaf_node_insert).
	allKeys := insertAt(append([]K(nil), n.keys...), idx, key)
	allValues := insertAt(append([]V(nil), n.values...), idx, value)
	threshold := (t.order + 2) / 2

	n.keys = append([]K(nil), allKeys[:threshold]...)
	n.values = append([]V(nil), allValues[:threshold]...)
	if err := t.storeNode(pl, ptr, n); err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}

	rightKeys := append([]K(nil), allKeys[threshold:]...)
	rightValues := append([]V(nil), allValues[threshold:]...)
	sibling := &node[K, V]{isLeaf: true, parent: n.parent, keys: rightKeys, values: rightValues}
	siblingPtr, err := t.allocateNode(pl, sibling)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	t.countSplit()
	return true, rightKeys[0], ptr, siblingPtr, nil
}

func (t *Tree[K, V]) innerInsert(pl *delim.PageLock, ptr records.NodePtr, n *node[K, V], key K, value V) (bool, K, records.NodePtr, records.NodePtr, error) {
	if len(n.keys) == t.order {
		return t.innerProactiveSplit(pl, ptr, n, key, value)
	}

	var zeroK K
	idx := childIndex(n.keys, key)
	childPtr := n.children[idx]
	childNode, err := t.gotoNode(pl, childPtr)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	split, sepKey, _, rightPtr, err := t.insert(pl, childPtr, childNode, key, value)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	if !split {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, nil
	}

	n2, err := t.gotoNode(pl, ptr)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	n2.keys = insertAt(n2.keys, idx, sepKey)
	n2.children = insertAt(n2.children, idx+1, rightPtr)
	return false, zeroK, records.NodePtr{}, records.NodePtr{}, t.storeNode(pl, ptr, n2)
}

// innerProactiveSplit implements spec.md §4.9's "proactive split when
// number_keys == N (simpler than canonical post-insertion split)": the
// middle key is promoted out of both halves rather than duplicated, the
// current node shrinks to its left half in place, a sibling holds the
// right half, then the insert descends into whichever half owns key.
func (t *Tree[K, V]) innerProactiveSplit(pl *delim.PageLock, ptr records.NodePtr, n *node[K, V], key K, value V) (bool, K, records.NodePtr, records.NodePtr, error) {
	var zeroK K
	mid := t.order / 2
	sepKey := n.keys[mid]
	leftKeys := append([]K(nil), n.keys[:mid]...)
	leftChildren := append([]records.NodePtr(nil), n.children[:mid+1]...)
	rightKeys := append([]K(nil), n.keys[mid+1:]...)
	rightChildren := append([]records.NodePtr(nil), n.children[mid+1:]...)

	n.keys = leftKeys
	n.children = leftChildren
	if err := t.storeNode(pl, ptr, n); err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}

	sibling := &node[K, V]{isLeaf: false, depth: n.depth, parent: n.parent, keys: rightKeys, children: rightChildren}
	siblingPtr, err := t.allocateNode(pl, sibling)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	t.countSplit()

	hostPtr, hostKeys, hostChildren := ptr, leftKeys, leftChildren
	if key >= sepKey {
		hostPtr, hostKeys, hostChildren = siblingPtr, rightKeys, rightChildren
	}
	idx := childIndex(hostKeys, key)
	targetPtr := hostChildren[idx]

	childNode, err := t.gotoNode(pl, targetPtr)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	csplit, csep, _, cright, err := t.insert(pl, targetPtr, childNode, key, value)
	if err != nil {
		return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
	}
	if csplit {
		hn, err := t.gotoNode(pl, hostPtr)
		if err != nil {
			return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
		}
		hn.keys = insertAt(hn.keys, idx, csep)
		hn.children = insertAt(hn.children, idx+1, cright)
		if err := t.storeNode(pl, hostPtr, hn); err != nil {
			return false, zeroK, records.NodePtr{}, records.NodePtr{}, err
		}
	}

	return true, sepKey, ptr, siblingPtr, nil
}

func (t *Tree[K, V]) countSplit() {
	if t.metrics != nil {
		t.metrics.TreeSplits.Inc()
	}
}

// Find descends by inner_position_for(key) until a leaf, then
// linear-scans it (spec.md §4.9 find).
func (t *Tree[K, V]) Find(key K) (V, bool, error) {
	var zero V
	pl, err := delim.Reading(t.sm, t.wb, t.root.Sector)
	if err != nil {
		return zero, false, err
	}
	defer func() { _ = pl.Release() }()

	n, err := t.loadNode(pl, t.root)
	if err != nil {
		return zero, false, err
	}
	for !n.isLeaf {
		idx := childIndex(n.keys, key)
		n, err = t.gotoNode(pl, n.children[idx])
		if err != nil {
			return zero, false, err
		}
	}
	idx := firstIndexNotLess(n.keys, key)
	if idx < len(n.keys) && n.keys[idx] == key {
		return n.values[idx], true, nil
	}
	return zero, false, nil
}

// FindLastLessThan mirrors Find but returns the largest entry strictly
// less than key (spec.md §4.9 find_last_less_then, used by position
// indices). Node records carry no leaf-sibling pointer, so when the
// target leaf itself holds no predecessor (key is smaller than every
// entry there), the search backtracks to the nearest ancestor where the
// descent took a non-leftmost branch and takes the rightmost entry of
// the subtree just to the left of the one it descended into.
func (t *Tree[K, V]) FindLastLessThan(key K) (K, V, bool, error) {
	var zeroK K
	var zeroV V
	pl, err := delim.Reading(t.sm, t.wb, t.root.Sector)
	if err != nil {
		return zeroK, zeroV, false, err
	}
	defer func() { _ = pl.Release() }()

	type step struct {
		ptr records.NodePtr
		idx int
	}
	var path []step

	ptr := t.root
	n, err := t.loadNode(pl, ptr)
	if err != nil {
		return zeroK, zeroV, false, err
	}
	for !n.isLeaf {
		idx := firstIndexNotLess(n.keys, key)
		path = append(path, step{ptr: ptr, idx: idx})
		ptr = n.children[idx]
		n, err = t.gotoNode(pl, ptr)
		if err != nil {
			return zeroK, zeroV, false, err
		}
	}
	for i := len(n.keys) - 1; i >= 0; i-- {
		if n.keys[i] < key {
			return n.keys[i], n.values[i], true, nil
		}
	}

	for i := len(path) - 1; i >= 0; i-- {
		st := path[i]
		if st.idx == 0 {
			continue
		}
		pn, err := t.gotoNode(pl, st.ptr)
		if err != nil {
			return zeroK, zeroV, false, err
		}
		cptr := pn.children[st.idx-1]
		cn, err := t.gotoNode(pl, cptr)
		if err != nil {
			return zeroK, zeroV, false, err
		}
		for !cn.isLeaf {
			cptr = cn.children[len(cn.children)-1]
			cn, err = t.gotoNode(pl, cptr)
			if err != nil {
				return zeroK, zeroV, false, err
			}
		}
		if len(cn.keys) == 0 {
			continue
		}
		last := len(cn.keys) - 1
		return cn.keys[last], cn.values[last], true, nil
	}
	return zeroK, zeroV, false, nil
}
