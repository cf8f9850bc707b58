// Package join implements equality joins between two DataSets.
package join

import (
	"fmt"
	"io"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/internal/query/data"
)

// entry is one build-side row in the hash index.
type entry struct {
	key     string
	row     data.Row
	matched bool
}

// HashJoin joins left and right on pairwise equality of leftKeys and
// rightKeys. The right side is drained into a hash index keyed by the murmur3
// hash of the encoded key tuple; the left side streams and probes it. Rows
// with a null in any key position never match.
//
// With no key pairs every left row matches every right row.
//
// The result header is the left header followed by the right header. A left
// join pads unmatched left rows with nulls; a right join emits unmatched right
// rows with a null left side after the left input is exhausted.
func HashJoin(left, right data.DataSet, jt ast.JoinType, leftKeys, rightKeys []*ast.SelectItem) (data.DataSet, error) {
	if len(leftKeys) != len(rightKeys) {
		left.Close()
		right.Close()
		return nil, fmt.Errorf("join: %d left keys but %d right keys", len(leftKeys), len(rightKeys))
	}

	rightRows, err := data.ToRows(right)
	if err != nil {
		left.Close()
		return nil, fmt.Errorf("join: build side: %w", err)
	}

	j := &hashJoin{
		left:      left,
		joinType:  jt,
		leftKeys:  leftKeys,
		leftWidth: left.Header().Len(),
		rightLen:  right.Header().Len(),
		index:     make(map[uint64][]*entry),
	}
	for _, row := range rightRows {
		e := &entry{row: row}
		j.all = append(j.all, e)
		key, ok := keyOf(row, rightKeys)
		if !ok {
			continue // null keys are never probed
		}
		e.key = key
		h := compare.Hash(key)
		j.index[h] = append(j.index[h], e)
	}

	items := append(append([]*ast.SelectItem{}, left.Header().Items()...), right.Header().Items()...)
	j.header = data.NewHeader(items...)
	return data.NewStreamDataSet(j.header, j.next, left.Close), nil
}

type hashJoin struct {
	left      data.DataSet
	joinType  ast.JoinType
	leftKeys  []*ast.SelectItem
	leftWidth int
	rightLen  int
	header    *data.Header

	index map[uint64][]*entry
	all   []*entry

	pending  [][]interface{}
	leftDone bool
	tail     int
}

func (j *hashJoin) next() ([]interface{}, error) {
	for {
		if len(j.pending) > 0 {
			values := j.pending[0]
			j.pending = j.pending[1:]
			return values, nil
		}
		if j.leftDone {
			return j.nextUnmatchedRight()
		}
		if !j.left.Next() {
			if err := j.left.Err(); err != nil {
				return nil, err
			}
			j.leftDone = true
			continue
		}
		j.probe(j.left.Row())
	}
}

func (j *hashJoin) probe(row data.Row) {
	var matches []*entry
	if len(j.leftKeys) == 0 {
		matches = j.all
	} else if key, ok := keyOf(row, j.leftKeys); ok {
		for _, e := range j.index[compare.Hash(key)] {
			if e.key == key {
				matches = append(matches, e)
			}
		}
	}

	for _, e := range matches {
		e.matched = true
		j.pending = append(j.pending, combine(row.Values(), e.row.Values(), j.leftWidth, j.rightLen))
	}
	if len(matches) == 0 && j.joinType == ast.JoinLeft {
		j.pending = append(j.pending, combine(row.Values(), nil, j.leftWidth, j.rightLen))
	}
}

func (j *hashJoin) nextUnmatchedRight() ([]interface{}, error) {
	if j.joinType != ast.JoinRight {
		return nil, io.EOF
	}
	for j.tail < len(j.all) {
		e := j.all[j.tail]
		j.tail++
		if !e.matched {
			return combine(nil, e.row.Values(), j.leftWidth, j.rightLen), nil
		}
	}
	return nil, io.EOF
}

// combine concatenates a left and right value slice; a nil side becomes nulls.
func combine(left, right []interface{}, leftWidth, rightWidth int) []interface{} {
	values := make([]interface{}, leftWidth+rightWidth)
	copy(values, left)
	copy(values[leftWidth:], right)
	return values
}

// keyOf encodes the key tuple of row. It reports false when any key value is
// null or cannot be resolved. Numeric text is keyed as a number so that keys
// match the way the equality predicate does.
func keyOf(row data.Row, keys []*ast.SelectItem) (string, bool) {
	var buf []byte
	for _, k := range keys {
		v, err := row.ValueOf(k)
		if err != nil || v == nil {
			return "", false
		}
		switch v.(type) {
		case string, []byte:
			if d, ok := compare.ToDecimal(v); ok {
				v = d
			}
		}
		buf = compare.AppendKey(buf, v)
	}
	return string(buf), true
}
