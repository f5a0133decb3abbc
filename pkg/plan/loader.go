// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/blockscope/blockscope/pkg/status"
)

const topLevelPlanKey = "Plan"

// Load decodes a captured plan document. Both the array form returned by
// PostgreSQL (`[{"Plan": {...}}]`) and a bare object (`{"Plan": {...}}`) are
// accepted; only the first entry of an array is used.
func Load(doc []byte) (*Explain, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return nil, status.New(status.Code_PLAN_UNAVAILABLE, "plan document is empty")
	}

	var entry json.RawMessage
	if doc[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(doc, &entries); err != nil {
			return nil, status.Wrap(status.Code_PLAN_UNAVAILABLE, fmt.Errorf("malformed plan document: %w", err))
		}
		if len(entries) == 0 {
			return nil, status.New(status.Code_PLAN_UNAVAILABLE, "plan document contains no entries")
		}
		entry = entries[0]
	} else {
		entry = doc
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(entry, &keys); err != nil {
		return nil, status.Wrap(status.Code_PLAN_UNAVAILABLE, fmt.Errorf("malformed plan document: %w", err))
	}
	raw, ok := keys[topLevelPlanKey]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, status.Newf(status.Code_PLAN_UNAVAILABLE, "plan document has no top-level %q key", topLevelPlanKey)
	}

	var explain Explain
	if err := json.Unmarshal(entry, &explain); err != nil {
		return nil, status.Wrap(status.Code_PLAN_UNAVAILABLE, fmt.Errorf("malformed plan tree: %w", err))
	}
	return &explain, nil
}

// LoadFile reads and decodes a plan document stored on disk.
func LoadFile(path string) (*Explain, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, status.Wrap(status.Code_PLAN_UNAVAILABLE, fmt.Errorf("failed to read plan file %s: %w", path, err))
	}
	return Load(content)
}
