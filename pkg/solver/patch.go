// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"fmt"
	"os"
	"path/filepath"
)

// Patch is one byte-level write: set the byte at Offset in a copy of the
// original input to Value.
type Patch struct {
	Offset int
	Value  byte
}

// PatchSet accumulates patches for a single solved input and enforces
// one write per offset -- a duplicate offset is a solver bug, per
// the design.
type PatchSet struct {
	base    []byte
	written map[int]bool
	patches []Patch
}

// NewPatchSet copies base so callers may freely mutate the original seed
// elsewhere.
func NewPatchSet(base []byte) *PatchSet {
	cp := make([]byte, len(base))
	copy(cp, base)
	return &PatchSet{base: cp, written: map[int]bool{}}
}

// Add applies one byte write. It returns an error if offset was already
// written in this set or is out of range.
func (p *PatchSet) Add(offset int, value byte) error {
	if offset < 0 || offset >= len(p.base) {
		return fmt.Errorf("solver: patch offset %d out of range [0,%d)", offset, len(p.base))
	}
	if p.written[offset] {
		return fmt.Errorf("solver: duplicate patch at offset %d", offset)
	}
	p.written[offset] = true
	p.base[offset] = value
	p.patches = append(p.patches, Patch{Offset: offset, Value: value})
	return nil
}

// Bytes returns the patched input.
func (p *PatchSet) Bytes() []byte {
	return p.base
}

// Patches returns the patches applied, in application order.
func (p *PatchSet) Patches() []Patch {
	return p.patches
}

// FileName builds the generated-file name:
// id-0-<session>-<n> optionally suffixed ,<score>:<reversedSA>.
func FileName(session uint64, n int, score *float64, reversedSA string) string {
	name := fmt.Sprintf("id-0-%d-%d", session, n)
	if score != nil {
		name = fmt.Sprintf("%s,%g:%s", name, *score, reversedSA)
	}
	return name
}

// WriteFile materializes the patched bytes under dir/name.
func WriteFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
