package ubuf

import (
	"encoding/binary"

	"github.com/snapetech/upipe-go/internal/urefcount"
)

// Sound is planar or packed PCM (spec.md §3.2). Planar has one []byte per
// channel; packed (interleaved) stores every channel in Planes[0].
type Sound struct {
	rc         *urefcount.RefCount
	Channels   int
	SampleRate int
	Planar     bool
	Planes     [][]byte // 4 bytes/sample, little-endian as read by ReadInt32
}

var _ Buffer = (*Sound)(nil)

func (s *Sound) Kind() Kind                    { return KindSound }
func (s *Sound) Refcount() *urefcount.RefCount { return s.rc }
func (s *Sound) Release()                      { s.rc.Release() }
func (s *Sound) Use() *Sound                   { s.rc.Use(); return s }

// Samples returns the sample count carried by a buffer of this size/layout.
func (s *Sound) Samples() int {
	if len(s.Planes) == 0 {
		return 0
	}
	if s.Planar {
		return len(s.Planes[0]) / 4
	}
	return len(s.Planes[0]) / 4 / s.Channels
}

// ReadInt32 returns sample `index` of `channel` as a signed 32-bit value.
func (s *Sound) ReadInt32(channel, index int) (int32, error) {
	if channel < 0 || channel >= s.Channels {
		return 0, ErrOutOfRange
	}
	if s.Planar {
		p := s.Planes[channel]
		off := index * 4
		if off+4 > len(p) {
			return 0, ErrOutOfRange
		}
		return int32(binary.LittleEndian.Uint32(p[off : off+4])), nil
	}
	p := s.Planes[0]
	off := (index*s.Channels + channel) * 4
	if off+4 > len(p) {
		return 0, ErrOutOfRange
	}
	return int32(binary.LittleEndian.Uint32(p[off : off+4])), nil
}

// SoundMgr computes buffer sizes and allocates Sound buffers for a fixed
// channel count / sample rate / layout, per spec.md §3.2's `size(samples,
// channels)` primitive.
type SoundMgr struct {
	rc         *urefcount.RefCount
	channels   int
	sampleRate int
	planar     bool
}

var _ Manager = (*SoundMgr)(nil)

func NewSoundMgr(channels, sampleRate int, planar bool) *SoundMgr {
	return &SoundMgr{rc: urefcount.New(nil), channels: channels, sampleRate: sampleRate, planar: planar}
}

func (m *SoundMgr) Refcount() *urefcount.RefCount { return m.rc }

// Size returns the byte size of a buffer holding `samples` frames of
// `channels` channels at 4 bytes/sample, for the manager's layout.
func (m *SoundMgr) Size(samples int) int {
	return samples * m.channels * 4
}

func (m *SoundMgr) New(samples int) *Sound {
	s := &Sound{Channels: m.channels, SampleRate: m.sampleRate, Planar: m.planar}
	if m.planar {
		s.Planes = make([][]byte, m.channels)
		for i := range s.Planes {
			s.Planes[i] = make([]byte, samples*4)
		}
	} else {
		s.Planes = [][]byte{make([]byte, samples*m.channels*4)}
	}
	s.rc = urefcount.New(func() {})
	return s
}
