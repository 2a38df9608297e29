// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package log

import (
	"flag"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testlogger is a Backend fake that records formatted messages instead of
// printing them, for deterministic assertions.
type testlogger struct {
	sync.Mutex
	recorded []string
}

var testlog *testlogger

const testLoggerName = "testlogger"

func createTestLogger() Backend {
	testlog = &testlogger{}
	return testlog
}

func (l *testlogger) Name() string { return testLoggerName }

func (l *testlogger) Log(level Level, source, format string, args ...interface{}) {
	l.Lock()
	defer l.Unlock()
	l.recorded = append(l.recorded, fmt.Sprintf("["+source+"] "+format, args...))
}

func (l *testlogger) Block(level Level, source, prefix, format string, args ...interface{}) {
	l.Log(level, source, prefix+format, args...)
}

func (l *testlogger) Flush()                 {}
func (l *testlogger) Sync()                  {}
func (l *testlogger) Stop()                  {}
func (l *testlogger) SetSourceAlignment(int) {}

func setup(t *testing.T) *testlogger {
	t.Helper()
	require.NoError(t, SetBackend(testLoggerName))
	SetLevel(LevelDebug)
	testlog.recorded = nil
	return testlog
}

func TestBackendOverride(t *testing.T) {
	tl := setup(t)
	SetLevel(LevelInfo)

	l := NewLogger("test")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	require.Equal(t, []string{
		"[test] info message",
		"[test] warn message",
		"[test] error message",
	}, tl.recorded)
}

func TestSeverityFiltering(t *testing.T) {
	tl := setup(t)
	SetLevel(LevelWarn)

	l := NewLogger("severity")
	l.Info("suppressed")
	l.Warn("kept")
	l.Error("kept too")

	require.Equal(t, []string{"[severity] kept", "[severity] kept too"}, tl.recorded)
}

func TestDebugToggling(t *testing.T) {
	tl := setup(t)

	l := NewLogger("debugtest")
	l.Debug("not yet enabled")
	require.Empty(t, tl.recorded)

	l.EnableDebug(true)
	l.Debug("now enabled")
	require.Equal(t, []string{"[debugtest] now enabled"}, tl.recorded)

	l.EnableDebug(false)
	tl.recorded = nil
	l.Debug("disabled again")
	require.Empty(t, tl.recorded)
}

func TestLoggerDebugFlagEnablesSource(t *testing.T) {
	tl := setup(t)

	require.NoError(t, flag.Set(optionDebug, "on:flagtest"))
	l := NewLogger("flagtest")
	l.Debug("via flag")
	require.Equal(t, []string{"[flagtest] via flag"}, tl.recorded)
	require.NoError(t, flag.Set(optionDebug, "off:flagtest"))
}

func TestEachSourceGetsItsOwnLoggerInstance(t *testing.T) {
	a := NewLogger("alpha")
	b := NewLogger("alpha")
	require.Equal(t, a, b)
}

func init() {
	RegisterBackend(testLoggerName, createTestLogger)
}
