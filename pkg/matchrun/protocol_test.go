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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*conn, *conn) {
	t.Helper()
	a, b := net.Pipe()
	return newConn(a), newConn(b)
}

func TestFrameRoundTrip(t *testing.T) {
	a, b := pipeConns(t)
	defer a.Close()
	defer b.Close()

	deadline := time.Now().Add(2 * time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, a.writeFrame(deadline, "hello agent"))
	}()

	got, err := b.readFrame(deadline)
	require.NoError(t, err)
	require.Equal(t, "hello agent", got)
	<-done
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	a, b := pipeConns(t)
	defer a.Close()
	defer b.Close()

	deadline := time.Now().Add(2 * time.Second)

	go func() {
		_ = a.writeFrame(deadline, "")
	}()

	got, err := b.readFrame(deadline)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	a, b := pipeConns(t)
	defer a.Close()
	defer b.Close()

	deadline := time.Now().Add(2 * time.Second)

	go func() {
		var hdr [4]byte
		hdr[0] = 0xFF // encodes a length far beyond maxFrameBytes
		_, _ = a.nc.Write(hdr[:])
	}()

	_, err := b.readFrame(deadline)
	require.Error(t, err)
}

func TestReadFrameHonorsDeadline(t *testing.T) {
	a, b := pipeConns(t)
	defer a.Close()
	defer b.Close()

	_, err := b.readFrame(time.Now().Add(10 * time.Millisecond))
	require.Error(t, err)

	if ne, ok := err.(net.Error); ok {
		require.True(t, ne.Timeout())
	}
}
