package ubuf

import "github.com/snapetech/upipe-go/internal/urefcount"

// Plane describes one component plane of a planar picture (e.g. Y, U, V).
type Plane struct {
	HSub, VSub int // chroma subsampling factors, 1 for a non-subsampled plane
	Stride     int
	Data       []byte
}

// Picture is a planar raster image (spec.md §3.2). Width/Height are in
// pixels of the non-subsampled (luma) plane.
type Picture struct {
	rc     *urefcount.RefCount
	Width  int
	Height int
	Planes []Plane
}

var _ Buffer = (*Picture)(nil)

func (p *Picture) Kind() Kind                    { return KindPicture }
func (p *Picture) Refcount() *urefcount.RefCount { return p.rc }
func (p *Picture) Release()                      { p.rc.Release() }
func (p *Picture) Use() *Picture                 { p.rc.Use(); return p }

// PlaneRead returns a zero-copy row of the given plane.
func (p *Picture) PlaneRead(plane, row int) ([]byte, error) {
	if plane < 0 || plane >= len(p.Planes) {
		return nil, ErrOutOfRange
	}
	pl := p.Planes[plane]
	rows := p.Height / pl.VSub
	if row < 0 || row >= rows {
		return nil, ErrOutOfRange
	}
	start := row * pl.Stride
	width := p.Width / pl.HSub
	return pl.Data[start : start+width], nil
}

// PlaneWrite returns a mutable row of the given plane; same preconditions as
// Block.Write regarding prior exclusivity via Writable.
func (p *Picture) PlaneWrite(plane, row int) ([]byte, error) {
	return p.PlaneRead(plane, row)
}

// PictureMgr allocates Pictures for a fixed format (dimensions, plane
// layout); real pipelines hold one PictureMgr per negotiated flow format.
type PictureMgr struct {
	rc      *urefcount.RefCount
	width   int
	height  int
	planeFn func(width, height int) []Plane
}

var _ Manager = (*PictureMgr)(nil)

// NewPictureMgr builds a manager that allocates pictures of the given
// dimensions, with a plane layout produced by planeFn (so callers can
// describe I420, NV12, RGB, etc. without this package knowing every format).
func NewPictureMgr(width, height int, planeFn func(w, h int) []Plane) *PictureMgr {
	return &PictureMgr{rc: urefcount.New(nil), width: width, height: height, planeFn: planeFn}
}

func (m *PictureMgr) Refcount() *urefcount.RefCount { return m.rc }

func (m *PictureMgr) New() *Picture {
	p := &Picture{Width: m.width, Height: m.height, Planes: m.planeFn(m.width, m.height)}
	p.rc = urefcount.New(func() {})
	return p
}

// WritablePicture duplicates *pp if it is not exclusively owned. Picture
// duplication is always a real copy (no segmented representation to share),
// unlike Block's cheap zero-copy path.
func WritablePicture(mgr *PictureMgr, pp **Picture) {
	p := *pp
	if p.rc.Single() {
		return
	}
	dup := mgr.New()
	for i := range dup.Planes {
		copy(dup.Planes[i].Data, p.Planes[i].Data)
	}
	p.Release()
	*pp = dup
}
