//go:build !linux
// +build !linux

package pipefs

import (
	"context"
	"fmt"
)

// Mount is unavailable on non-Linux builds because pipefs depends on
// go-fuse, which is Linux-only.
func Mount(ctx context.Context, mountPoint string, view DemuxView) error {
	return fmt.Errorf("pipefs mount is only supported on linux builds")
}

// MountBackground is unavailable on non-Linux builds because pipefs
// depends on go-fuse, which is Linux-only.
func MountBackground(ctx context.Context, mountPoint string, view DemuxView) (func(), error) {
	return nil, fmt.Errorf("pipefs mount is only supported on linux builds")
}
