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

package sqlbuilder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// NoBlock asks for the relation-wide block summary instead of the tuples of
// a single block.
const NoBlock int64 = -1

// RowAddress decomposes the physical row identifier of an engine into a
// block number and an offset inside the block.
type RowAddress interface {
	// Column is the system column holding the row identifier.
	Column() string
	// Block returns an integer expression of the block number of rowID.
	Block(rowID string) string
	// Offset returns an integer expression of the slot of rowID in its block.
	Offset(rowID string) string
}

type ctidAddress struct{}

// CTID addresses PostgreSQL heap tuples. A ctid reads "(block,offset)", which
// casts to a point.
var CTID RowAddress = ctidAddress{}

func (ctidAddress) Column() string { return "ctid" }

func (ctidAddress) Block(rowID string) string {
	return fmt.Sprintf("((%s::text::point)[0])::bigint", rowID)
}

func (ctidAddress) Offset(rowID string) string {
	return fmt.Sprintf("((%s::text::point)[1])::bigint", rowID)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

var lineBreakReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// BlockQueryBuilder builds read-only statements reporting which blocks and
// tuples of a relation satisfy a scan filter.
type BlockQueryBuilder struct {
	relation string
	filter   string
	block    int64
	address  RowAddress
}

func NewBlockQueryBuilder() *BlockQueryBuilder {
	return &BlockQueryBuilder{
		block:   NoBlock,
		address: CTID,
	}
}

func (b *BlockQueryBuilder) SetRelation(relation string) *BlockQueryBuilder {
	b.relation = relation
	return b
}

// SetFilter sets the predicate rows must satisfy. It must already reference
// the relation by name, not by alias. An empty filter matches every row.
func (b *BlockQueryBuilder) SetFilter(filter string) *BlockQueryBuilder {
	b.filter = filter
	return b
}

// ForBlock restricts the statement to the tuples of one block. NoBlock
// switches back to the relation-wide summary.
func (b *BlockQueryBuilder) ForBlock(block int64) *BlockQueryBuilder {
	b.block = block
	return b
}

func (b *BlockQueryBuilder) WithAddress(address RowAddress) *BlockQueryBuilder {
	b.address = address
	return b
}

// ToSQL renders the statement on a single line.
//
// Summary (no block): one row per block used by the relation, ascending,
// with the number of its tuples satisfying the filter (0 if none).
//
// Detail (block given): one row per tuple stored in the block, with its
// offset as tuple_id, all its columns and result_column set to 'Yes' when the
// tuple satisfies the filter, 'No' otherwise.
func (b *BlockQueryBuilder) ToSQL() (string, error) {
	if len(b.relation) == 0 {
		return "", errors.New("relation name is empty")
	}
	if !identifierPattern.MatchString(b.relation) {
		return "", fmt.Errorf("invalid relation name %q", b.relation)
	}
	if b.block < 0 && b.block != NoBlock {
		return "", fmt.Errorf("invalid block number %d", b.block)
	}
	if b.address == nil {
		return "", errors.New("row address is not set")
	}
	filter := strings.TrimSpace(lineBreakReplacer.Replace(b.filter))

	if b.block == NoBlock {
		return b.summarySQL(filter), nil
	}
	return b.detailSQL(filter), nil
}

func (b *BlockQueryBuilder) summarySQL(filter string) string {
	qualifiedRowID := fmt.Sprintf("%s.%s", b.relation, b.address.Column())

	var sb strings.Builder
	sb.WriteString("WITH all_blocks AS ( ")
	sb.WriteString(fmt.Sprintf("SELECT DISTINCT %s AS block_id FROM %s", b.address.Block(b.address.Column()), b.relation))
	sb.WriteString(" ) ")
	sb.WriteString(fmt.Sprintf("SELECT ab.block_id, COALESCE(COUNT(%s), 0) AS tuple_count ", qualifiedRowID))
	sb.WriteString(fmt.Sprintf("FROM all_blocks ab LEFT JOIN %s ON ab.block_id = %s", b.relation, b.address.Block(qualifiedRowID)))
	if filter != "" {
		sb.WriteString(fmt.Sprintf(" AND (%s)", filter))
	}
	sb.WriteString(" GROUP BY ab.block_id ORDER BY ab.block_id;")
	return sb.String()
}

func (b *BlockQueryBuilder) detailSQL(filter string) string {
	rowID := b.address.Column()
	inBlock := fmt.Sprintf("%s = %d", b.address.Block(rowID), b.block)

	var sb strings.Builder
	sb.WriteString("WITH all_blocks AS ( ")
	sb.WriteString(fmt.Sprintf("SELECT %s AS tuple_id, * FROM %s WHERE %s", b.address.Offset(rowID), b.relation, inBlock))
	sb.WriteString(" ) ")
	sb.WriteString("SELECT ab.*, CASE WHEN bc.tuple_id IS NOT NULL THEN 'Yes' ELSE 'No' END AS result_column ")
	sb.WriteString("FROM all_blocks ab LEFT JOIN ( ")
	sb.WriteString(fmt.Sprintf("SELECT %s AS tuple_id FROM %s WHERE %s", b.address.Offset(rowID), b.relation, inBlock))
	if filter != "" {
		sb.WriteString(fmt.Sprintf(" AND (%s)", filter))
	}
	sb.WriteString(" ) AS bc ON ab.tuple_id = bc.tuple_id ORDER BY ab.tuple_id;")
	return sb.String()
}

// Synthesize builds the block statement of relation with the default
// PostgreSQL row address.
func Synthesize(relation, filter string, block int64) (string, error) {
	return NewBlockQueryBuilder().SetRelation(relation).SetFilter(filter).ForBlock(block).ToSQL()
}
