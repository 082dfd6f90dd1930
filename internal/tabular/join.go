package tabular

import (
	"sort"
	"time"

	"github.com/medforge/tabtrain/pkg/errors"
)

// JoinDirection selects which side of the timeline an as-of join matches.
type JoinDirection int

const (
	// Backward matches the most recent right row at or before the left timestamp.
	Backward JoinDirection = iota
	// Forward matches the next right row at or after the left timestamp.
	Forward
)

func (d JoinDirection) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// subjectAt reads a subject identifier from a key column.
func subjectAt(s *Series, i int) (int64, bool, error) {
	v := s.Values[i]
	if v == nil {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int64:
		return x, true, nil
	case uint32:
		return int64(x), true, nil
	}
	return 0, false, errors.E(errors.KindSchemaMismatch,
		"key column %q row %d: subject id must be integer, got %T", s.Name, i, v)
}

func timestampAt(s *Series, i int) (int64, bool, error) {
	v := s.Values[i]
	if v == nil {
		return 0, false, nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return 0, false, errors.E(errors.KindSchemaMismatch,
			"key column %q row %d: timestamp must be time.Time, got %T", s.Name, i, v)
	}
	return t.UnixMicro(), true, nil
}

type timedRow struct {
	ts  int64
	row int
}

// AsofJoin temporally aligns right onto left: the result has one row per left
// row, carrying every left column followed by every right column except the
// join keys. A right frame without an `on` column holds per-subject facts and
// matches by subject alone. Left rows with a null timestamp match nothing.
func AsofJoin(left, right *Frame, by, on string, dir JoinDirection) (*Frame, error) {
	leftBy := left.Column(by)
	if leftBy == nil {
		return nil, errors.E(errors.KindSchemaMismatch, "asof join: left frame missing key %q", by)
	}
	leftOn := left.Column(on)
	rightBy := right.Column(by)
	if rightBy == nil {
		return nil, errors.E(errors.KindSchemaMismatch, "asof join: right frame missing key %q", by)
	}
	rightOn := right.Column(on)

	// Index the right side by subject, time-sorted when timestamps exist.
	bySubject := make(map[int64][]timedRow)
	for i := 0; i < right.NumRows(); i++ {
		subj, ok, err := subjectAt(rightBy, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ts := int64(0)
		if rightOn != nil {
			t, has, err := timestampAt(rightOn, i)
			if err != nil {
				return nil, err
			}
			if !has {
				continue
			}
			ts = t
		}
		bySubject[subj] = append(bySubject[subj], timedRow{ts: ts, row: i})
	}
	for _, rows := range bySubject {
		sort.Slice(rows, func(a, b int) bool { return rows[a].ts < rows[b].ts })
	}

	match := make([]int, left.NumRows())
	for i := range match {
		match[i] = -1
	}
	for i := 0; i < left.NumRows(); i++ {
		subj, ok, err := subjectAt(leftBy, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rows := bySubject[subj]
		if len(rows) == 0 {
			continue
		}
		if rightOn == nil {
			// Per-subject facts: the last row stands for the subject.
			match[i] = rows[len(rows)-1].row
			continue
		}
		if leftOn == nil {
			continue
		}
		ts, has, err := timestampAt(leftOn, i)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		switch dir {
		case Backward:
			// Greatest right ts <= left ts.
			j := sort.Search(len(rows), func(k int) bool { return rows[k].ts > ts })
			if j > 0 {
				match[i] = rows[j-1].row
			}
		case Forward:
			// Smallest right ts >= left ts.
			j := sort.Search(len(rows), func(k int) bool { return rows[k].ts >= ts })
			if j < len(rows) {
				match[i] = rows[j].row
			}
		}
	}

	cols := make([]*Series, 0, left.NumCols()+right.NumCols())
	for i := 0; i < left.NumCols(); i++ {
		cols = append(cols, left.ColumnAt(i))
	}
	for i := 0; i < right.NumCols(); i++ {
		rc := right.ColumnAt(i)
		if rc.Name == by || rc.Name == on {
			continue
		}
		if left.Has(rc.Name) {
			return nil, errors.E(errors.KindSchemaMismatch,
				"asof join: column %q exists on both sides", rc.Name)
		}
		vals := make([]any, left.NumRows())
		for j, m := range match {
			if m >= 0 {
				vals[j] = rc.Values[m]
			}
		}
		cols = append(cols, &Series{Name: rc.Name, Type: rc.Type, Values: vals})
	}
	return NewFrame(cols...)
}

type alignKey struct {
	subject int64
	hasTS   bool
	ts      int64
}

func lessKey(a, b alignKey) bool {
	if a.subject != b.subject {
		return a.subject < b.subject
	}
	if a.hasTS != b.hasTS {
		return !a.hasTS // null timestamps sort first
	}
	return a.ts < b.ts
}

func frameKeys(f *Frame, by, on string) ([]alignKey, error) {
	byCol := f.Column(by)
	if byCol == nil {
		return nil, errors.E(errors.KindSchemaMismatch, "align: frame missing key %q", by)
	}
	onCol := f.Column(on)
	if onCol == nil {
		return nil, errors.E(errors.KindSchemaMismatch, "align: frame missing key %q", on)
	}
	keys := make([]alignKey, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		subj, ok, err := subjectAt(byCol, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.E(errors.KindSchemaMismatch, "align: null subject id at row %d", i)
		}
		ts, has, err := timestampAt(onCol, i)
		if err != nil {
			return nil, err
		}
		keys[i] = alignKey{subject: subj, hasTS: has, ts: ts}
	}
	return keys, nil
}

// OuterAlign joins a and b column-wise over the union of their
// (subject, timestamp) keys, sorted by subject then time. Rows present on one
// side only get nulls for the other side's columns. Non-key column names must
// be disjoint. Duplicate keys within a side keep the last occurrence.
func OuterAlign(a, b *Frame, by, on string) (*Frame, error) {
	aKeys, err := frameKeys(a, by, on)
	if err != nil {
		return nil, err
	}
	bKeys, err := frameKeys(b, by, on)
	if err != nil {
		return nil, err
	}

	aIdx := make(map[alignKey]int, len(aKeys))
	for i, k := range aKeys {
		aIdx[k] = i
	}
	bIdx := make(map[alignKey]int, len(bKeys))
	for i, k := range bKeys {
		bIdx[k] = i
	}

	union := make([]alignKey, 0, len(aIdx)+len(bIdx))
	for k := range aIdx {
		union = append(union, k)
	}
	for k := range bIdx {
		if _, seen := aIdx[k]; !seen {
			union = append(union, k)
		}
	}
	sort.Slice(union, func(i, j int) bool { return lessKey(union[i], union[j]) })

	n := len(union)
	subjVals := make([]any, n)
	tsVals := make([]any, n)
	for i, k := range union {
		subjVals[i] = k.subject
		if k.hasTS {
			tsVals[i] = time.UnixMicro(k.ts).UTC()
		}
	}
	cols := []*Series{
		{Name: by, Type: Int64, Values: subjVals},
		{Name: on, Type: Timestamp, Values: tsVals},
	}

	appendSide := func(f *Frame, idx map[alignKey]int) error {
		for i := 0; i < f.NumCols(); i++ {
			c := f.ColumnAt(i)
			if c.Name == by || c.Name == on {
				continue
			}
			for _, existing := range cols {
				if existing.Name == c.Name {
					return errors.E(errors.KindSchemaMismatch,
						"align: column %q exists on both sides", c.Name)
				}
			}
			vals := make([]any, n)
			for j, k := range union {
				if row, ok := idx[k]; ok {
					vals[j] = c.Values[row]
				}
			}
			cols = append(cols, &Series{Name: c.Name, Type: c.Type, Values: vals})
		}
		return nil
	}
	if err := appendSide(a, aIdx); err != nil {
		return nil, err
	}
	if err := appendSide(b, bIdx); err != nil {
		return nil, err
	}
	return NewFrame(cols...)
}
