//go:build linux
// +build linux

package fusefs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	bazilfs "bazil.org/fuse/fs"

	"github.com/oleio/cfb"
)

// Mount serves r as a read-only filesystem at mountpoint until a
// termination signal is received or the filesystem is unmounted by
// other means.
func Mount(mountpoint string, r *cfb.Reader) error {
	created, err := prepareMountpoint(mountpoint)
	if err != nil {
		return err
	}
	if created {
		defer os.Remove(mountpoint)
	}

	c, err := fuse.Mount(mountpoint, fuse.ReadOnly())
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv := bazilfs.New(c, nil)
		if err := srv.Serve(New(r)); err != nil {
			log.Printf("fusefs: serve: %v", err)
		}
	}()
	return waitForUnmount(mountpoint, done)
}

func waitForUnmount(mountpoint string, done <-chan struct{}) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	select {
	case <-sigc:
		return fuse.Unmount(mountpoint)
	case <-done:
		return nil
	}
}

func prepareMountpoint(mountpoint string) (bool, error) {
	fi, err := os.Stat(mountpoint)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.Mkdir(mountpoint, 0755); err != nil {
			return false, fmt.Errorf("fusefs: creating mountpoint %s: %w", mountpoint, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("fusefs: stat mountpoint %s: %w", mountpoint, err)
	}
	if !fi.IsDir() {
		return false, fmt.Errorf("fusefs: %s is not a directory", mountpoint)
	}
	return false, nil
}
