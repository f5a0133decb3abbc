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
)

const indentUnit = "    "

// WalkTree visits the tree depth-first in pre-order, children in plan
// order. It stops at the first error returned by visitor.
func WalkTree(node *Node, visitor func(node *Node, depth int) error) error {
	return walk(node, 0, visitor)
}

func walk(node *Node, depth int, visitor func(*Node, int) error) error {
	if node == nil {
		return nil
	}
	if err := visitor(node, depth); err != nil {
		return err
	}
	for _, child := range node.Children() {
		if err := walk(child, depth+1, visitor); err != nil {
			return err
		}
	}
	return nil
}

// CountNodes counts the nodes reachable from node, node included.
func CountNodes(node *Node) int {
	count := 0
	_ = WalkTree(node, func(*Node, int) error {
		count++
		return nil
	})
	return count
}

// Render formats the tree one node per line, indented by depth:
//
//	- Hash Join
//	    - Seq Scan on orders (alias: o)
//	    - Hash
//	        - Seq Scan on customers (alias: c)
func Render(node *Node) []string {
	var lines []string
	_ = WalkTree(node, func(n *Node, depth int) error {
		lines = append(lines, renderNode(n, depth))
		return nil
	})
	return lines
}

// PrintTree is Render joined with line breaks.
func PrintTree(node *Node) string {
	lines := Render(node)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func renderNode(n *Node, depth int) string {
	nodeType := n.NodeType
	if nodeType == "" {
		nodeType = "Unknown"
	}
	var sb strings.Builder
	sb.WriteString(strings.Repeat(indentUnit, depth))
	sb.WriteString("- ")
	sb.WriteString(nodeType)
	if n.RelationName != "" {
		sb.WriteString(fmt.Sprintf(" on %s", n.RelationName))
	}
	if n.Alias != "" {
		sb.WriteString(fmt.Sprintf(" (alias: %s)", n.Alias))
	}
	return sb.String()
}
