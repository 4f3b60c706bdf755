package ubuf

import (
	"errors"
	"sync"

	"github.com/snapetech/upipe-go/internal/urefcount"
)

// ErrOutOfRange is returned when an offset/size pair falls outside the
// buffer, or a resize would grow past a manager's pool ceiling.
var ErrOutOfRange = errors.New("ubuf: offset/size out of range")

// Block is a possibly-segmented sequence of octets (spec.md §3.2, §4.5). The
// segments are a virtual concatenation: Insert can splice another Block's
// segments in without copying either side's bytes.
type Block struct {
	rc   *urefcount.RefCount
	mgr  *BlockMgr
	segs [][]byte
}

var _ Buffer = (*Block)(nil)

func (b *Block) Kind() Kind                      { return KindBlock }
func (b *Block) Refcount() *urefcount.RefCount   { return b.rc }
func (b *Block) Release()                        { b.rc.Release() }
func (b *Block) Use() *Block                      { b.rc.Use(); return b }

// Size returns the total byte length across all segments.
func (b *Block) Size() int {
	n := 0
	for _, s := range b.segs {
		n += len(s)
	}
	return n
}

// locate returns the segment index containing offset and the offset within
// that segment, or (-1, 0) if offset is at or past the end.
func (b *Block) locate(offset int) (int, int) {
	for i, s := range b.segs {
		if offset < len(s) {
			return i, offset
		}
		offset -= len(s)
	}
	return -1, 0
}

// Read returns a zero-copy view of up to size bytes starting at offset. Like
// the source, the returned slice may be shorter than requested when the
// range crosses a segment boundary — callers that need a contiguous view
// across segments should use Extract instead.
func (b *Block) Read(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset > b.Size() {
		return nil, ErrOutOfRange
	}
	if size == 0 {
		return nil, nil
	}
	idx, within := b.locate(offset)
	if idx < 0 {
		return nil, ErrOutOfRange
	}
	seg := b.segs[idx]
	avail := len(seg) - within
	if size > avail {
		size = avail
	}
	return seg[within : within+size], nil
}

// Write returns a mutable view of up to size bytes starting at offset,
// subject to the same single-segment-span limitation as Read. The caller
// must have already called Writable to ensure exclusive ownership; Write
// itself does not check Single.
func (b *Block) Write(offset, size int) ([]byte, error) {
	return b.Read(offset, size)
}

// Insert splices child's segments into b at offset, consuming child (the
// caller should not use child independently afterward). This is the
// zero-copy concatenation primitive referenced by spec.md §4.5.
func (b *Block) Insert(offset int, child *Block) error {
	total := b.Size()
	if offset < 0 || offset > total {
		return ErrOutOfRange
	}
	if offset == total {
		b.segs = append(b.segs, child.segs...)
		return nil
	}
	idx, within := b.locate(offset)
	seg := b.segs[idx]
	var rebuilt [][]byte
	rebuilt = append(rebuilt, b.segs[:idx]...)
	if within > 0 {
		rebuilt = append(rebuilt, seg[:within])
	}
	rebuilt = append(rebuilt, child.segs...)
	if within < len(seg) {
		rebuilt = append(rebuilt, seg[within:])
	}
	rebuilt = append(rebuilt, b.segs[idx+1:]...)
	b.segs = rebuilt
	return nil
}

// Resize trims offset bytes from the front and truncates or zero-extends the
// remainder to newSize.
func (b *Block) Resize(offset, newSize int) error {
	if offset < 0 || newSize < 0 || offset > b.Size() {
		return ErrOutOfRange
	}
	if offset > 0 {
		idx, within := b.locate(offset)
		if idx < 0 {
			b.segs = nil
		} else {
			segs := make([][]byte, 0, len(b.segs)-idx)
			segs = append(segs, b.segs[idx][within:])
			segs = append(segs, b.segs[idx+1:]...)
			b.segs = segs
		}
	}
	cur := b.Size()
	switch {
	case newSize < cur:
		remaining := newSize
		var segs [][]byte
		for _, s := range b.segs {
			if remaining <= 0 {
				break
			}
			if len(s) > remaining {
				s = s[:remaining]
			}
			segs = append(segs, s)
			remaining -= len(s)
		}
		b.segs = segs
	case newSize > cur:
		b.segs = append(b.segs, make([]byte, newSize-cur))
	}
	return nil
}

// IovecRead returns a scatter-gather list of zero-copy slices covering
// [offset, offset+size), for vectored I/O.
func (b *Block) IovecRead(offset, size int) ([][]byte, error) {
	if offset < 0 || size < 0 || offset+size > b.Size() {
		return nil, ErrOutOfRange
	}
	var out [][]byte
	remaining := size
	idx, within := b.locate(offset)
	if idx < 0 {
		if size == 0 {
			return nil, nil
		}
		return nil, ErrOutOfRange
	}
	for remaining > 0 && idx < len(b.segs) {
		seg := b.segs[idx][within:]
		if len(seg) > remaining {
			seg = seg[:remaining]
		}
		out = append(out, seg)
		remaining -= len(seg)
		idx++
		within = 0
	}
	return out, nil
}

// Extract copies size bytes starting at offset into dst, compacting across
// segment boundaries. dst must have length >= size.
func (b *Block) Extract(offset, size int, dst []byte) (int, error) {
	iov, err := b.IovecRead(offset, size)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, seg := range iov {
		n += copy(dst[n:], seg)
	}
	return n, nil
}

// BlockMgr pools Block allocations to avoid churn in the steady state
// (spec.md §3.2). It is itself refcounted like any other shared manager.
type BlockMgr struct {
	rc *urefcount.RefCount

	mu   sync.Mutex
	pool []*Block
}

var _ Manager = (*BlockMgr)(nil)

// NewBlockMgr returns a fresh, immortal-by-default block manager. Pass true
// for refcounted to opt into normal Use/Release lifecycle instead of the
// statically-allocated convention.
func NewBlockMgr(refcounted bool) *BlockMgr {
	m := &BlockMgr{}
	if refcounted {
		m.rc = urefcount.New(func() {})
	} else {
		m.rc = urefcount.New(nil)
	}
	return m
}

func (m *BlockMgr) Refcount() *urefcount.RefCount { return m.rc }

// New allocates (or reuses from the pool) a Block of exactly size bytes, all
// zeroed, with a single reference.
func (m *BlockMgr) New(size int) *Block {
	m.mu.Lock()
	var b *Block
	if n := len(m.pool); n > 0 {
		b = m.pool[n-1]
		m.pool = m.pool[:n-1]
	}
	m.mu.Unlock()
	if b == nil {
		b = &Block{mgr: m}
	}
	b.segs = [][]byte{make([]byte, size)}
	b.rc = urefcount.New(func() { m.recycle(b) })
	return b
}

// NewFromBytes wraps a copy of data in a single-segment Block.
func (m *BlockMgr) NewFromBytes(data []byte) *Block {
	b := m.New(len(data))
	copy(b.segs[0], data)
	return b
}

func (m *BlockMgr) recycle(b *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pool) < 64 {
		b.segs = nil
		m.pool = append(m.pool, b)
	}
}

// Dup deep-copies b's logical contents into a brand new, exclusively owned
// Block, for use by Writable.
func (m *BlockMgr) Dup(b *Block) *Block {
	out := m.New(b.Size())
	_, _ = b.Extract(0, b.Size(), out.segs[0])
	return out
}

// Writable ensures *bp is exclusively owned, duplicating through mgr if a
// second reference exists (spec.md §4.5). The original reference is
// released on duplication.
func Writable(mgr *BlockMgr, bp **Block) {
	b := *bp
	if b.rc.Single() {
		return
	}
	dup := mgr.Dup(b)
	b.Release()
	*bp = dup
}
