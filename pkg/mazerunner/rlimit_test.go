// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package mazerunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceLimitsDisabledByZero(t *testing.T) {
	r := ResourceLimits{}
	reached, err := r.Reached()
	require.NoError(t, err)
	require.False(t, reached)
}

func TestResourceLimitsDiskCheckAgainstTempDir(t *testing.T) {
	r := ResourceLimits{DiskBytes: 1, Dir: t.TempDir()}
	reached, err := r.Reached()
	require.NoError(t, err)
	require.False(t, reached, "a fresh temp dir should have at least 1 free byte")
}
