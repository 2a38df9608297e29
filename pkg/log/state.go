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
	"sync"
)

// fmtBackendName is the lower-case form flags.go's defaults use; backend.go
// registers the same backend under the exported FmtBackendName.
const fmtBackendName = FmtBackendName

// logState is the package-wide logger registry: known sources, their
// runtime configuration, and the active backend.
type logState struct {
	sync.RWMutex
	backend map[string]BackendFn
	active  Backend
	level   Level
	forced  bool
	configs map[logger]config
	sources map[logger]string
	names   map[string]logger
	next    logger
}

var log = &logState{
	backend: make(map[string]BackendFn),
	level:   DefaultLevel,
	configs: make(map[logger]config),
	sources: make(map[logger]string),
	names:   make(map[string]logger),
}

// get returns the logger for source, creating it (enabled, non-debug) if
// this is the first time source is seen.
func (s *logState) get(source string) Logger {
	s.Lock()
	defer s.Unlock()

	if s.active == nil {
		s.activateLocked(fmtBackendName)
	}

	if id, ok := s.names[source]; ok {
		return id
	}

	id := s.next
	s.next++
	s.names[source] = id
	s.sources[id] = source
	s.configs[id] = mkConfig(id, opt.sourceEnabled(source), opt.debugEnabled(source))
	return id
}

// updateLoggers recomputes every known logger's enabled/debug bits from o,
// called whenever the --logger-* flags change (see flags.go).
func (o *options) updateLoggers() {
	log.Lock()
	defer log.Unlock()
	log.level = o.Level
	for id, source := range log.sources {
		cfg := log.configs[id]
		cfg.setEnabled(o.sourceEnabled(source), o.debugEnabled(source))
		log.configs[id] = cfg
	}
}

// activateLocked switches the active backend to name, stopping the
// previous one. Caller must hold s's lock.
func (s *logState) activateLocked(name string) {
	fn, ok := s.backend[name]
	if !ok {
		return
	}
	if s.active != nil {
		s.active.Stop()
	}
	s.active = fn()
}

// activateBackend activates the named registered backend.
func activateBackend(name string) {
	log.Lock()
	defer log.Unlock()
	log.activateLocked(name)
}

// SetBackend activates the named registered backend, failing if it was
// never registered.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()
	if _, ok := log.backend[name]; !ok {
		return loggerError("unknown logger backend %q", name)
	}
	log.activateLocked(name)
	return nil
}

// SetLevel sets the lowest severity passed through to the active backend.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// NewLogger creates (or looks up) the Logger for the given source.
func NewLogger(source string) Logger {
	return log.get(source)
}

// Get is an alias for NewLogger, kept for callers that prefer the
// shorter, lookup-flavored name.
func Get(source string) Logger {
	return log.get(source)
}
