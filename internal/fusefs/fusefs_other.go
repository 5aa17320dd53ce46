//go:build !linux
// +build !linux

package fusefs

import (
	"fmt"

	"github.com/oleio/cfb"
)

// Mount is unavailable off Linux; bazil.org/fuse only wires into the
// kernel's FUSE device there.
func Mount(mountpoint string, r *cfb.Reader) error {
	return fmt.Errorf("fusefs: mount is only supported on Linux")
}
