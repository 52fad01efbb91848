// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package store is the field-ordered binary persistence codec used to
// save and load the RL model between executions: no reflection-based
// object serialization, just fixed-width records behind a uint32 count
// prefix, in the spirit of the wire codec in pkg/channel.
package store

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/symflow/mazerunner/pkg/agent"
)

// Path joins dir and name (<dir>/<name>); it adds no subdirectory.
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

var order = binary.LittleEndian

func writeSA(w io.Writer, sa agent.SA) error {
	var rec [24]byte
	order.PutUint64(rec[0:8], sa.PC)
	order.PutUint64(rec[8:16], sa.Callstack)
	order.PutUint32(rec[16:20], uint32(sa.Bucket))
	order.PutUint32(rec[20:24], uint32(sa.Action))
	_, err := w.Write(rec[:])
	return err
}

func readSA(r io.Reader) (agent.SA, error) {
	var rec [24]byte
	if _, err := io.ReadFull(r, rec[:]); err != nil {
		return agent.SA{}, err
	}
	return agent.SA{
		PC:        order.Uint64(rec[0:8]),
		Callstack: order.Uint64(rec[8:16]),
		Bucket:    int(int32(order.Uint32(rec[16:20]))),
		Action:    int(int32(order.Uint32(rec[20:24]))),
	}, nil
}

// SaveQTable writes the Q map as a count prefix followed by
// (sa, float64) records.
func SaveQTable(path string, q map[agent.SA]float64) error {
	return withWriter(path, func(w io.Writer) error {
		if err := writeCount(w, len(q)); err != nil {
			return err
		}
		for sa, v := range q {
			if err := writeSA(w, sa); err != nil {
				return err
			}
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadQTable is the inverse of SaveQTable. A missing file yields an
// empty, non-nil map.
func LoadQTable(path string) (map[agent.SA]float64, error) {
	q := map[agent.SA]float64{}
	err := withReader(path, func(r io.Reader) error {
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			sa, err := readSA(r)
			if err != nil {
				return err
			}
			var v float64
			if err := binary.Read(r, order, &v); err != nil {
				return err
			}
			q[sa] = v
		}
		return nil
	})
	return q, err
}

// SaveVisited writes the visited-count map as a count prefix followed by
// (sa, uint32) records.
func SaveVisited(path string, visited map[agent.SA]int) error {
	return withWriter(path, func(w io.Writer) error {
		if err := writeCount(w, len(visited)); err != nil {
			return err
		}
		for sa, v := range visited {
			if err := writeSA(w, sa); err != nil {
				return err
			}
			if err := binary.Write(w, order, uint32(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadVisited is the inverse of SaveVisited.
func LoadVisited(path string) (map[agent.SA]int, error) {
	visited := map[agent.SA]int{}
	err := withReader(path, func(r io.Reader) error {
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			sa, err := readSA(r)
			if err != nil {
				return err
			}
			var v uint32
			if err := binary.Read(r, order, &v); err != nil {
				return err
			}
			visited[sa] = int(v)
		}
		return nil
	})
	return visited, err
}

// SaveEpisode writes a recorded trace as a count prefix followed by
// fixed-width ProgramState records, replacing the original's pickle
// dump with the same field-ordered binary convention as the rest of
// this package.
func SaveEpisode(path string, ep agent.Episode) error {
	return withWriter(path, func(w io.Writer) error {
		if err := writeCount(w, len(ep)); err != nil {
			return err
		}
		for _, s := range ep {
			if err := writeState(w, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEpisode is the inverse of SaveEpisode.
func LoadEpisode(path string) (agent.Episode, error) {
	var ep agent.Episode
	err := withReader(path, func(r io.Reader) error {
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			s, err := readState(r)
			if err != nil {
				return err
			}
			ep = append(ep, s)
		}
		return nil
	})
	return ep, err
}

func writeState(w io.Writer, s agent.ProgramState) error {
	if err := writeSA(w, s.SA()); err != nil {
		return err
	}
	hasDist := byte(0)
	var dist int64
	if s.Dist != nil {
		hasDist = 1
		dist = *s.Dist
	}
	if _, err := w.Write([]byte{hasDist}); err != nil {
		return err
	}
	for _, v := range []interface{}{dist, s.InstanceID, s.BranchID} {
		if err := binary.Write(w, order, v); err != nil {
			return err
		}
	}
	return nil
}

func readState(r io.Reader) (agent.ProgramState, error) {
	sa, err := readSA(r)
	if err != nil {
		return agent.ProgramState{}, err
	}
	var hasDistByte [1]byte
	if _, err := io.ReadFull(r, hasDistByte[:]); err != nil {
		return agent.ProgramState{}, err
	}
	var dist int64
	var instanceID, branchID uint64
	if err := binary.Read(r, order, &dist); err != nil {
		return agent.ProgramState{}, err
	}
	if err := binary.Read(r, order, &instanceID); err != nil {
		return agent.ProgramState{}, err
	}
	if err := binary.Read(r, order, &branchID); err != nil {
		return agent.ProgramState{}, err
	}
	s := agent.ProgramState{
		PC:         sa.PC,
		Callstack:  sa.Callstack,
		Bucket:     sa.Bucket,
		Action:     sa.Action,
		InstanceID: instanceID,
		BranchID:   branchID,
	}
	if hasDistByte[0] != 0 {
		d := dist
		s.Dist = &d
	}
	return s, nil
}

// SaveSASet writes a set of sa keys as a count prefix followed by bare
// sa records (used for unreachable_branches).
func SaveSASet(path string, set map[agent.SA]struct{}) error {
	return withWriter(path, func(w io.Writer) error {
		if err := writeCount(w, len(set)); err != nil {
			return err
		}
		for sa := range set {
			if err := writeSA(w, sa); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSASet is the inverse of SaveSASet.
func LoadSASet(path string) (map[agent.SA]struct{}, error) {
	set := map[agent.SA]struct{}{}
	err := withReader(path, func(r io.Reader) error {
		n, err := readCount(r)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			sa, err := readSA(r)
			if err != nil {
				return err
			}
			set[sa] = struct{}{}
		}
		return nil
	})
	return set, err
}

func writeCount(w io.Writer, n int) error {
	return binary.Write(w, order, uint32(n))
}

func readCount(r io.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, order, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func withWriter(path string, fn func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// withReader feeds fn the file contents, treating a missing file as
// "nothing to load" rather than an error.
func withReader(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(bufio.NewReader(f))
}
