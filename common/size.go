// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the small value types shared across the cache core:
// addresses, byte-size accounting, and duration formatting.
package common

import (
	"fmt"
	"time"
)

// Address identifies a cacheable entry within one container. It is a raw
// file offset, not a content hash: two entries with the same Address can
// never coexist (data-model invariant 1).
type Address uint64

// NilAddress is the sentinel address for "no address" (e.g. an internal
// entry with no on-disk home, or the end of a flush-list).
const NilAddress Address = ^Address(0)

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// StorageSize is a byte count with a human-readable String representation,
// used by cachectl's status output.
type StorageSize float64

func (s StorageSize) String() string {
	if s > 1099511627776 {
		return fmt.Sprintf("%.2fTiB", s/1099511627776)
	} else if s > 1073741824 {
		return fmt.Sprintf("%.2fGiB", s/1073741824)
	} else if s > 1048576 {
		return fmt.Sprintf("%.2fMiB", s/1048576)
	} else if s > 1024 {
		return fmt.Sprintf("%.2fKiB", s/1024)
	}
	return fmt.Sprintf("%.2fB", s)
}

// PrettyDuration rounds a duration to a readable precision for log lines.
type PrettyDuration time.Duration

func (d PrettyDuration) String() string {
	return time.Duration(d).Round(time.Microsecond).String()
}
