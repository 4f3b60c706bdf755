//go:build linux
// +build linux

package pipefs

import (
	"context"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount mounts pipefs at mountPoint over view and blocks until ctx is
// cancelled or the server otherwise exits.
func Mount(ctx context.Context, mountPoint string, view DemuxView) error {
	unmount, err := MountBackground(ctx, mountPoint, view)
	if err != nil {
		return err
	}
	<-ctx.Done()
	unmount()
	return nil
}

// MountBackground mounts pipefs at mountPoint and returns immediately; call
// the returned func (or cancel ctx) to unmount.
func MountBackground(ctx context.Context, mountPoint string, view DemuxView) (unmount func(), err error) {
	root := &Root{View: view}
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      false,
			FsName:     "pipefs",
			Name:       "pipefs",
			AllowOther: false,
		},
	}
	server, err := fs.Mount(mountPoint, root, opts)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()
	return func() { _ = server.Unmount() }, nil
}
