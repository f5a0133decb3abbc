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
	"fmt"
	"strings"

	"github.com/blockscope/blockscope/pkg/predicate"
	"github.com/blockscope/blockscope/pkg/status"
)

// ScanRecord describes one scan of a relation found in a plan.
type ScanRecord struct {
	Relation string
	Alias    string
	// Filter is the residual predicate of the scan, predicate.NoFilter if none.
	Filter string
}

// ScanPolicy chooses the record to analyze when a relation is scanned more
// than once, e.g. in a self join.
type ScanPolicy string

const (
	// ScanPolicyLast uses the scan met last in pre-order. Filters of the other
	// scans are ignored.
	ScanPolicyLast ScanPolicy = "last"
	// ScanPolicyStrict refuses plans scanning the relation more than once.
	ScanPolicyStrict ScanPolicy = "strict"
)

func ParseScanPolicy(s string) (ScanPolicy, error) {
	switch p := ScanPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ScanPolicyLast, nil
	case ScanPolicyLast, ScanPolicyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown scan policy %q, should be one of {last, strict}", s)
	}
}

// LocateScans returns every scan node of root reading relation, in pre-order.
// relation may be qualified by its schema.
// Children are always visited, matched or not.
func LocateScans(root *Node, relation string) ([]ScanRecord, error) {
	var records []ScanRecord
	_ = WalkTree(root, func(n *Node, _ int) error {
		if n.IsScan() && n.Reads(relation) {
			filter := n.Filter
			if filter == "" {
				filter = predicate.NoFilter
			}
			records = append(records, ScanRecord{
				Relation: n.RelationName,
				Alias:    n.Alias,
				Filter:   filter,
			})
		}
		return nil
	})
	if len(records) == 0 {
		return nil, status.Newf(status.Code_SCAN_NOT_FOUND, "no scan of relation %q in the plan", relation)
	}
	return records, nil
}

// SelectScan picks the record to analyze according to policy.
func SelectScan(records []ScanRecord, policy ScanPolicy) (ScanRecord, error) {
	if len(records) == 0 {
		return ScanRecord{}, status.New(status.Code_SCAN_NOT_FOUND, "no scan record to select from")
	}
	if policy == ScanPolicyStrict && len(records) > 1 {
		return ScanRecord{}, status.Newf(status.Code_MULTIPLE_SCANS_AMBIGUOUS,
			"relation %q is scanned %d times in the plan", records[0].Relation, len(records))
	}
	return records[len(records)-1], nil
}

// FindScan is LocateScans followed by SelectScan.
func FindScan(root *Node, relation string, policy ScanPolicy) (ScanRecord, error) {
	records, err := LocateScans(root, relation)
	if err != nil {
		return ScanRecord{}, err
	}
	return SelectScan(records, policy)
}
