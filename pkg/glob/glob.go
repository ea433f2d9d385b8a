// Copyright © 2020 Jose Riguera <jriguera@gmail.com>
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
//
package glob

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Glob matches paths with shell patterns. A pattern without separator is
// matched against the last element of the path, a pattern with separators
// against the whole path or any of its trailing sub paths.
type Glob struct {
	patterns []string
}

// New compiles one or more patterns, the path matches if any of them does.
// A single string can carry several patterns separated by commas.
func New(patterns ...string) (*Glob, error) {
	g := Glob{}
	for _, p := range patterns {
		for _, s := range strings.Split(p, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			s = filepath.ToSlash(strings.TrimSuffix(s, "/"))
			if _, err := filepath.Match(s, ""); err != nil {
				return nil, fmt.Errorf("Invalid glob pattern '%s': %s", s, err.Error())
			}
			g.patterns = append(g.patterns, s)
		}
	}
	if len(g.patterns) == 0 {
		return nil, fmt.Errorf("Empty glob pattern")
	}
	return &g, nil
}

func (g *Glob) MatchString(path string) bool {
	path = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
	parts := strings.Split(path, "/")
	for _, p := range g.patterns {
		if !strings.Contains(p, "/") {
			if ok, _ := filepath.Match(p, parts[len(parts)-1]); ok {
				return true
			}
			continue
		}
		for i := range parts {
			if ok, _ := filepath.Match(p, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
	}
	return false
}

func (g *Glob) String() string {
	return strings.Join(g.patterns, ",")
}
