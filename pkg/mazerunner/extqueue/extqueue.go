// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package extqueue reads the external coverage-guided fuzzer's on-disk
// layout: its queue directory and fuzzer_stats file.
// The fuzzer itself is an out-of-scope external collaborator -- this
// package only reads what it leaves on disk.
package extqueue

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stats is the subset of an AFL-style fuzzer_stats file this package
// parses: the command line the external fuzzer was launched with,
// grounded on afl.py's get_afl_cmd().
type Stats struct {
	CommandLine string
}

// ReadStats parses the fuzzer_stats file under dir, looking for a
// "command_line : ..." entry. Missing file or field returns a zero
// Stats, not an error -- fuzzer_stats is written lazily by the
// external fuzzer and may not exist yet.
func ReadStats(dir string) (Stats, error) {
	f, err := os.Open(filepath.Join(dir, "fuzzer_stats"))
	if os.IsNotExist(err) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	var st Stats
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := splitStatsLine(scanner.Text())
		if !ok {
			continue
		}
		if key == "command_line" {
			st.CommandLine = val
		}
	}
	return st, scanner.Err()
}

// splitStatsLine parses one "key : value" fuzzer_stats line.
func splitStatsLine(line string) (key, val string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	val = strings.TrimSpace(line[idx+1:])
	return key, val, key != "" && val != ""
}

// QueueDir returns the external fuzzer's testcase queue directory for
// instance aflName under the shared output directory, matching the
// <output>/<afl_name>/queue/ layout the design describes.
func QueueDir(outputDir, aflName string) string {
	return filepath.Join(outputDir, aflName, "queue")
}

// Entry is one file discovered in the external queue.
type Entry struct {
	Name string
	Path string
}

// List returns every regular file currently in the external fuzzer's
// queue directory, in directory order. A missing queue directory
// (fuzzer not started yet) yields an empty, non-error result.
func List(outputDir, aflName string) ([]Entry, error) {
	dir := QueueDir(outputDir, aflName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	return out, nil
}

// score ranks an entry for sync ordering, grounded on afl.py's
// get_score/testcase_compare: files marked "+cov" by AFL sort first,
// then seeds carried over from the initial corpus ("orig:" in the
// name), then smaller files, with the filename as a final tiebreaker.
func score(e Entry, size int64) (hasCov, isOrig bool, negSize int64, name string) {
	hasCov = strings.Contains(e.Name, "+cov")
	isOrig = strings.Contains(e.Name, "orig:")
	return hasCov, isOrig, -size, e.Name
}

// SortBySyncPriority orders entries the way the external fuzzer's own
// triage does, so seeds most likely to matter get synced first when a
// sync batch is itself size-limited.
func SortBySyncPriority(entries []Entry, sizeOf func(Entry) int64) {
	sort.SliceStable(entries, func(i, j int) bool {
		hi, oi, si, ni := score(entries[i], sizeOf(entries[i]))
		hj, oj, sj, nj := score(entries[j], sizeOf(entries[j]))
		if hi != hj {
			return hi // +cov first
		}
		if oi != oj {
			return oi // orig: seeds next
		}
		if si != sj {
			return si > sj // smaller file (larger negSize) first
		}
		return ni < nj
	})
}
