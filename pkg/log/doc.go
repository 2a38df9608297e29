// Copyright 2019 Intel Corporation. All Rights Reserved.
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

var configHelp = `
Logging and debugging messages.

You can control the lowest severity of messages to pass through, which log
sources are enabled, and which log sources are producing debug messages.

The available message severity levels are debug, info, warning, and error. By
default all log sources produce messages of all severity and none of the log
sources produce any debug messages. For instance to pass through only warnings
and errors, and debugging for the cgroups, cpuallocator, and matchrun sources:

  --logger-level=warning --logger-debug=cgroups,cpuallocator,matchrun

The reserved keywords 'all' and 'none' can be used to refer to all or none of
the log sources.
`
