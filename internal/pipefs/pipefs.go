// Package pipefs implements the live introspection filesystem of
// SPEC_FULL.md §4.10: a read-only FUSE mount exposing a running TS demux
// bin's discovered programs, PMT contents, and per-PID statistics as
// files. It is a debug surface, not persisted state — nothing here
// survives a remount.
//
// Uses the same fs.Inode/NodeLookuper/NodeReaddirer/NodeReader go-fuse
// shape a read-only catalog-snapshot filesystem would, applied here to a
// demux's live program/PID state instead of a catalog.
package pipefs

import "hash/fnv"

// DemuxView is the slice of *internal/tsdemux.Demux's API this package
// needs. It is declared here rather than imported directly from tsdemux so
// pipefs stays testable against a fake and introduces no import-cycle risk
// between the demux and its own debug filesystem.
type DemuxView interface {
	Programs() []uint16
	ElementaryStreams(programNumber uint16) []uint16
	PMTRaw(programNumber uint16) ([]byte, bool)
	ProgramFlowDef(programNumber, pid uint16) (string, bool)
	ContinuityErrors() uint64
}

func inoFromString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
