// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package extqueue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadStatsParsesCommandLine(t *testing.T) {
	dir := t.TempDir()
	content := "start_time    : 1234\ncommand_line  : /bin/afl-fuzz -i in -o out -- ./target @@\nexecs_done    : 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fuzzer_stats"), []byte(content), 0o644))

	st, err := ReadStats(dir)
	require.NoError(t, err)
	require.Equal(t, "/bin/afl-fuzz -i in -o out -- ./target @@", st.CommandLine)
}

func TestReadStatsMissingFileIsZeroValue(t *testing.T) {
	st, err := ReadStats(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Stats{}, st)
}

func TestListMissingQueueDirIsEmpty(t *testing.T) {
	entries, err := List(t.TempDir(), "afl-main")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListReturnsQueueFiles(t *testing.T) {
	outDir := t.TempDir()
	queueDir := QueueDir(outDir, "afl-main")
	require.NoError(t, os.MkdirAll(queueDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(queueDir, "id:000001"), []byte("x"), 0o644))

	entries, err := List(outDir, "afl-main")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "id:000001", entries[0].Name)
}

func TestSortBySyncPriorityOrdersCovOrigSizeThenName(t *testing.T) {
	entries := []Entry{
		{Name: "id:000003"},
		{Name: "id:000001,+cov"},
		{Name: "id:000002,orig:seed"},
	}
	sizes := map[string]int64{
		"id:000003":           5,
		"id:000001,+cov":      100,
		"id:000002,orig:seed": 1,
	}
	SortBySyncPriority(entries, func(e Entry) int64 { return sizes[e.Name] })

	require.Equal(t, []string{"id:000001,+cov", "id:000002,orig:seed", "id:000003"},
		[]string{entries[0].Name, entries[1].Name, entries[2].Name})
}
