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

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAgent(t *testing.T, root, name, config string, withBinary bool) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644))
	if withBinary {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0755))
	}
}

func TestLoadSingleConfig(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "eval: default\nconfigs:\n  default: \"--depth 3\"\n", true)

	descriptors, err := New().Load(root)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, "alice", descriptors[0].Name)
	require.Equal(t, []string{"--depth", "3"}, descriptors[0].Args)
}

func TestLoadTestAllConfigsExpandsNames(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "eval: fast\nconfigs:\n  fast: \"--depth 1\"\n  slow: \"--depth 9\"\n", true)

	descriptors, err := New(WithTestAllConfigs(true)).Load(root)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	names := map[string]bool{}
	for _, d := range descriptors {
		names[d.Name] = true
	}
	require.True(t, names["alice/fast"])
	require.True(t, names["alice/slow"])
}

func TestLoadMissingConfigYamlIsAggregatedNotFatal(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "eval: default\nconfigs:\n  default: \"\"\n", true)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bob"), 0755)) // no config.yaml

	descriptors, err := New().Load(root)
	require.Error(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, "alice", descriptors[0].Name)
}

func TestLoadMissingBinaryIsAggregatedNotFatal(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "eval: default\nconfigs:\n  default: \"\"\n", false)

	descriptors, err := New().Load(root)
	require.Error(t, err)
	require.Empty(t, descriptors)
}

func TestLoadMissingEvalKeyIsAnError(t *testing.T) {
	root := t.TempDir()
	writeAgent(t, root, "alice", "configs:\n  default: \"\"\n", true)

	_, err := New().Load(root)
	require.Error(t, err)
}

func TestSplitArgsHandlesEmptyAndWhitespace(t *testing.T) {
	require.Nil(t, splitArgs(""))
	require.Nil(t, splitArgs("   "))
	require.Equal(t, []string{"a", "b"}, splitArgs(" a  b "))
}
