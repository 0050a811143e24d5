// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// ConfigFileName is the name of jvl's project configuration file.
const ConfigFileName = "jvl.json"

// Locate walks from startDir upward through its ancestors, returning the
// path of the first jvl.json found. ok is false if no ancestor has one.
func Locate(fs afero.Fs, startDir string) (path string, ok bool) {
	dir := filepath.Clean(startDir)
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if exists, _ := afero.Exists(fs, candidate); exists {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
