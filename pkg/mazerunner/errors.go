// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import "errors"

var errInvalidSeed = errors.New("mazerunner: invalid seed (empty filename or negative priority)")
