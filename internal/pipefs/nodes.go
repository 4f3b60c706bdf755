//go:build linux
// +build linux

package pipefs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Root is the filesystem root: two directories, "programs" and "pids".
type Root struct {
	fs.Inode
	View DemuxView
}

var _ fs.NodeLookuper = (*Root)(nil)

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	switch name {
	case "programs":
		return r.newDir(ctx, &programsDirNode{root: r}, "dir:programs", out), 0
	case "pids":
		return r.newDir(ctx, &pidsDirNode{root: r}, "dir:pids", out), 0
	default:
		return nil, syscall.ENOENT
	}
}

func (r *Root) newDir(ctx context.Context, node fs.InodeEmbedder, key string, out *fuse.EntryOut) *fs.Inode {
	ch := r.NewInode(ctx, node, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: inoFromString("pipefs:" + key)})
	out.Mode = fuse.S_IFDIR | 0755
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(time.Second)
	return ch
}

// programsDirNode lists one subdirectory per currently known program
// number.
type programsDirNode struct {
	fs.Inode
	root *Root
}

var _ fs.NodeReaddirer = (*programsDirNode)(nil)
var _ fs.NodeLookuper = (*programsDirNode)(nil)

func (n *programsDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	nums := n.root.View.Programs()
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	entries := make([]fuse.DirEntry, 0, len(nums))
	for _, num := range nums {
		entries = append(entries, fuse.DirEntry{
			Name: strconv.Itoa(int(num)),
			Ino:  inoFromString(fmt.Sprintf("pipefs:program:%d", num)),
			Mode: fuse.S_IFDIR | 0755,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *programsDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	num, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return nil, syscall.ENOENT
	}
	programNumber := uint16(num)
	found := false
	for _, p := range n.root.View.Programs() {
		if p == programNumber {
			found = true
			break
		}
	}
	if !found {
		return nil, syscall.ENOENT
	}
	child := &programDirNode{root: n.root, programNumber: programNumber}
	return n.root.newDir(ctx, child, fmt.Sprintf("program:%d", programNumber), out), 0
}

// programDirNode is one program's directory: a "pmt" file and an "es"
// subdirectory.
type programDirNode struct {
	fs.Inode
	root          *Root
	programNumber uint16
}

var _ fs.NodeReaddirer = (*programDirNode)(nil)
var _ fs.NodeLookuper = (*programDirNode)(nil)

func (n *programDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "pmt", Ino: inoFromString(fmt.Sprintf("pipefs:pmt:%d", n.programNumber)), Mode: fuse.S_IFREG | 0444},
		{Name: "es", Ino: inoFromString(fmt.Sprintf("pipefs:es:%d", n.programNumber)), Mode: fuse.S_IFDIR | 0755},
	}
	return fs.NewListDirStream(entries), 0
}

func (n *programDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	switch name {
	case "pmt":
		programNumber := n.programNumber
		view := n.root.View
		file := &contentFileNode{gen: func() []byte {
			raw, ok := view.PMTRaw(programNumber)
			if !ok {
				return nil
			}
			return raw
		}}
		return n.newFile(ctx, file, fmt.Sprintf("pmt:%d", n.programNumber), out), 0
	case "es":
		child := &esDirNode{root: n.root, programNumber: n.programNumber}
		return n.root.newDir(ctx, child, fmt.Sprintf("esdir:%d", n.programNumber), out), 0
	default:
		return nil, syscall.ENOENT
	}
}

func (n *programDirNode) newFile(ctx context.Context, node fs.InodeEmbedder, key string, out *fuse.EntryOut) *fs.Inode {
	ch := n.NewInode(ctx, node, fs.StableAttr{Mode: fuse.S_IFREG, Ino: inoFromString("pipefs:" + key)})
	out.Mode = fuse.S_IFREG | 0444
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(0)
	return ch
}

// esDirNode lists one subdirectory per elementary stream PID in a program.
type esDirNode struct {
	fs.Inode
	root          *Root
	programNumber uint16
}

var _ fs.NodeReaddirer = (*esDirNode)(nil)
var _ fs.NodeLookuper = (*esDirNode)(nil)

func (n *esDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	pids := n.root.View.ElementaryStreams(n.programNumber)
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	entries := make([]fuse.DirEntry, 0, len(pids))
	for _, pid := range pids {
		entries = append(entries, fuse.DirEntry{
			Name: strconv.Itoa(int(pid)),
			Ino:  inoFromString(fmt.Sprintf("pipefs:es:%d:%d", n.programNumber, pid)),
			Mode: fuse.S_IFDIR | 0755,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *esDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	num, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return nil, syscall.ENOENT
	}
	pid := uint16(num)
	child := &esPidDirNode{root: n.root, programNumber: n.programNumber, pid: pid}
	return n.root.newDir(ctx, child, fmt.Sprintf("espid:%d:%d", n.programNumber, pid), out), 0
}

// esPidDirNode is a single ES PID's directory: a "flowdef" file.
type esPidDirNode struct {
	fs.Inode
	root          *Root
	programNumber uint16
	pid           uint16
}

var _ fs.NodeReaddirer = (*esPidDirNode)(nil)
var _ fs.NodeLookuper = (*esPidDirNode)(nil)

func (n *esPidDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "flowdef", Ino: inoFromString(fmt.Sprintf("pipefs:flowdef:%d:%d", n.programNumber, n.pid)), Mode: fuse.S_IFREG | 0444},
	}
	return fs.NewListDirStream(entries), 0
}

func (n *esPidDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name != "flowdef" {
		return nil, syscall.ENOENT
	}
	programNumber, pid, view := n.programNumber, n.pid, n.root.View
	file := &contentFileNode{gen: func() []byte {
		def, ok := view.ProgramFlowDef(programNumber, pid)
		if !ok {
			return nil
		}
		return []byte(def + "\n")
	}}
	ch := n.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG, Ino: inoFromString(fmt.Sprintf("pipefs:flowdeffile:%d:%d", programNumber, pid))})
	out.Mode = fuse.S_IFREG | 0444
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(0)
	return ch, 0
}

// pidsDirNode lists one directory per elementary-stream PID currently
// allocated by any program; each holds a "stats" file with the PID and the
// demux's aggregate continuity-error count.
type pidsDirNode struct {
	fs.Inode
	root *Root
}

var _ fs.NodeReaddirer = (*pidsDirNode)(nil)
var _ fs.NodeLookuper = (*pidsDirNode)(nil)

func (n *pidsDirNode) knownPIDs() []uint16 {
	return uniqueSortedPIDs(n.root.View)
}

// uniqueSortedPIDs collects every ES PID across every currently known
// program, deduplicated (a PID can in principle appear in more than one
// program's ES list) and sorted for deterministic directory listings.
func uniqueSortedPIDs(view DemuxView) []uint16 {
	seen := map[uint16]bool{}
	var pids []uint16
	for _, num := range view.Programs() {
		for _, pid := range view.ElementaryStreams(num) {
			if !seen[pid] {
				seen[pid] = true
				pids = append(pids, pid)
			}
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

func (n *pidsDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	pids := n.knownPIDs()
	entries := make([]fuse.DirEntry, 0, len(pids))
	for _, pid := range pids {
		entries = append(entries, fuse.DirEntry{
			Name: strconv.Itoa(int(pid)),
			Ino:  inoFromString(fmt.Sprintf("pipefs:piddir:%d", pid)),
			Mode: fuse.S_IFDIR | 0755,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *pidsDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	num, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return nil, syscall.ENOENT
	}
	pid := uint16(num)
	found := false
	for _, p := range n.knownPIDs() {
		if p == pid {
			found = true
			break
		}
	}
	if !found {
		return nil, syscall.ENOENT
	}
	child := &pidStatsDirNode{root: n.root, pid: pid}
	return n.root.newDir(ctx, child, fmt.Sprintf("piddir:%d", pid), out), 0
}

type pidStatsDirNode struct {
	fs.Inode
	root *Root
	pid  uint16
}

var _ fs.NodeReaddirer = (*pidStatsDirNode)(nil)
var _ fs.NodeLookuper = (*pidStatsDirNode)(nil)

func (n *pidStatsDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "stats", Ino: inoFromString(fmt.Sprintf("pipefs:stats:%d", n.pid)), Mode: fuse.S_IFREG | 0444},
	}
	return fs.NewListDirStream(entries), 0
}

func (n *pidStatsDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name != "stats" {
		return nil, syscall.ENOENT
	}
	pid, view := n.pid, n.root.View
	file := &contentFileNode{gen: func() []byte {
		return []byte(fmt.Sprintf("pid=%d\ndemux_continuity_errors=%d\n", pid, view.ContinuityErrors()))
	}}
	ch := n.NewInode(ctx, file, fs.StableAttr{Mode: fuse.S_IFREG, Ino: inoFromString(fmt.Sprintf("pipefs:statsfile:%d", pid))})
	out.Mode = fuse.S_IFREG | 0444
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(0)
	return ch, 0
}

// contentFileNode is a read-only file whose content is recomputed by gen
// on every Getattr/Read, so readers always see the demux's live state
// instead of a snapshot taken at Lookup time.
type contentFileNode struct {
	fs.Inode
	gen func() []byte
}

var _ fs.NodeGetattrer = (*contentFileNode)(nil)
var _ fs.NodeReader = (*contentFileNode)(nil)

func (n *contentFileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data := n.gen()
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(len(data))
	return 0
}

func (n *contentFileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data := n.gen()
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}
