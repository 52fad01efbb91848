// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package channel

import "errors"

// ErrChannelBroken is returned on any I/O error reading from the pipe,
// including a failed read-ready wait. A wait that merely times out is not
// an error: Reader.Next then returns (nil, nil).
var ErrChannelBroken = errors.New("channel: broken pipe")

// ErrTruncatedMessage is returned when a short record follows a header
// that announced a trailer.
var ErrTruncatedMessage = errors.New("channel: truncated message")

// ErrUnknownMessageType is returned for an unrecognized msg_type tag. The
// caller must still abort the loop unless the message carries no trailer,
// since the remaining trailer bytes would otherwise desynchronize the
// stream.
var ErrUnknownMessageType = errors.New("channel: unknown message type")
