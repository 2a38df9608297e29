// Copyright 2024 The ai-tournament Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package matchrun

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// maxFrameBytes bounds a single frame so a misbehaving agent cannot exhaust
// the evaluator's memory with a bogus length prefix.
const maxFrameBytes = 16 << 20 // 16 MiB

// conn wraps an agent's TCP connection with the length-prefixed framing
// used for every state/action exchange (§9: 4-byte big-endian length
// prefix followed by the UTF-8 payload).
type conn struct {
	nc net.Conn
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc}
}

func (c *conn) Close() error {
	return c.nc.Close()
}

// writeFrame sends payload as one length-prefixed frame.
func (c *conn) writeFrame(deadline time.Time, payload string) error {
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	if _, err := c.nc.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(c.nc, payload); err != nil {
		return err
	}
	return nil
}

// readFrame reads one length-prefixed frame, failing the read if it is not
// fully received before deadline.
func (c *conn) readFrame(deadline time.Time) (string, error) {
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return "", err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return "", fmt.Errorf("matchrun: frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}
