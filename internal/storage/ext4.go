// https://github.com/f-secure-foundry/armory-boot
//
// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
//
// Modified to serve firmware images from an io.ReadSeeker.

package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dsoprea/go-ext4"
)

// Ext4 is read-only Storage backed by an ext4 filesystem image, such as a
// partition dump of the boot media.
type Ext4 struct {
	rs io.ReadSeeker
}

var _ Storage = &Ext4{}

// NewExt4 returns Storage reading the ext4 filesystem in rs.
func NewExt4(rs io.ReadSeeker) *Ext4 {
	return &Ext4{rs: rs}
}

func (d *Ext4) getBlockGroupDescriptor(inode int) (*ext4.BlockGroupDescriptor, error) {
	if _, err := d.rs.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return nil, err
	}

	sb, err := ext4.NewSuperblockWithReader(d.rs)
	if err != nil {
		return nil, err
	}

	bgdl, err := ext4.NewBlockGroupDescriptorListWithReadSeeker(d.rs, sb)
	if err != nil {
		return nil, err
	}

	return bgdl.GetWithAbsoluteInode(inode)
}

// lookup returns the inode number of the file at fullPath, or 0.
func (d *Ext4) lookup(fullPath string) (int, error) {
	fullPath = strings.Trim(fullPath, "/")

	bgd, err := d.getBlockGroupDescriptor(ext4.InodeRootDirectory)
	if err != nil {
		return 0, err
	}

	dw, err := ext4.NewDirectoryWalk(d.rs, bgd, ext4.InodeRootDirectory)
	if err != nil {
		return 0, err
	}

	for {
		p, de, err := dw.Next()
		if err == io.EOF {
			return 0, nil
		} else if err != nil {
			return 0, err
		}

		if p == fullPath && !de.IsDirectory() {
			return int(de.Data().Inode), nil
		}
	}
}

// ReadFile implements Storage.
func (d *Ext4) ReadFile(p string, max int) ([]byte, error) {
	inodeNumber, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	if inodeNumber == 0 {
		return nil, fmt.Errorf("%s: file not found", p)
	}

	bgd, err := d.getBlockGroupDescriptor(inodeNumber)
	if err != nil {
		return nil, err
	}

	inode, err := ext4.NewInodeWithReadSeeker(bgd, d.rs, inodeNumber)
	if err != nil {
		return nil, err
	}

	en := ext4.NewExtentNavigatorWithReadSeeker(d.rs, inode)
	r := ext4.NewInodeReader(en)

	return io.ReadAll(io.LimitReader(r, int64(max)))
}

// WriteFile implements Storage. Ext4 images are never written.
func (d *Ext4) WriteFile(p string, _ []byte) error {
	return fmt.Errorf("%s: %w", p, ErrReadOnly)
}

// Exists implements Storage.
func (d *Ext4) Exists(p string) bool {
	n, err := d.lookup(p)
	return err == nil && n != 0
}

// IsReadOnly reports whether err came from a write to read-only storage.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
