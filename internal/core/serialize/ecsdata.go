package serialize

import (
	"sort"

	"hostengine/internal/core/ecs"
	"hostengine/internal/core/ecs/query"
)

func appendTerm(b []byte, t query.Term) []byte {
	b = appendString(b, string(t.Component))
	return appendI32(b, int32(t.Access))
}

func readTerm(b []byte) (query.Term, []byte, error) {
	cid, rest, err := readString(b)
	if err != nil {
		return query.Term{}, nil, err
	}
	access, rest, err := readI32(rest)
	if err != nil {
		return query.Term{}, nil, err
	}
	return query.Term{Component: ecs.ComponentID(cid), Access: ecs.Access(access)}, rest, nil
}

func appendTermSlice(b []byte, terms []query.Term) []byte {
	b = appendArrayHeader(b, len(terms))
	for _, t := range terms {
		b = appendTerm(b, t)
	}
	return b
}

func readTermSlice(b []byte) ([]query.Term, []byte, error) {
	n, rest, err := readArrayHeader(b)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, rest, nil
	}
	out := make([]query.Term, 0, n)
	for i := 0; i < n; i++ {
		var t query.Term
		t, rest, err = readTerm(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, t)
	}
	return out, rest, nil
}

// appendEcsData encodes an *query.EcsData (nil encodes as "absent"). Column
// keys are sorted by component id before encoding so that two EcsData
// values built from the same map produce identical bytes.
func appendEcsData(b []byte, d *query.EcsData) []byte {
	if d == nil {
		return appendBool(b, false)
	}
	b = appendBool(b, true)

	b = appendArrayHeader(b, len(d.Entities))
	for _, e := range d.Entities {
		b = appendU64(b, uint64(e))
	}

	cids := make([]string, 0, len(d.Columns))
	for cid := range d.Columns {
		cids = append(cids, string(cid))
	}
	sort.Strings(cids)

	b = appendArrayHeader(b, len(cids))
	for _, cid := range cids {
		b = appendString(b, cid)
		col := d.Columns[ecs.ComponentID(cid)]
		b = appendArrayHeader(b, len(col))
		for _, v := range col {
			b = appendBytes(b, v)
		}
	}
	return b
}

func readEcsData(b []byte) (*query.EcsData, []byte, error) {
	present, rest, err := readBool(b)
	if err != nil {
		return nil, nil, err
	}
	if !present {
		return nil, rest, nil
	}

	entityCount, rest, err := readArrayHeader(rest)
	if err != nil {
		return nil, nil, err
	}
	entities := make([]ecs.EntityID, 0, entityCount)
	for i := 0; i < entityCount; i++ {
		var v uint64
		v, rest, err = readU64(rest)
		if err != nil {
			return nil, nil, err
		}
		entities = append(entities, ecs.EntityID(v))
	}

	colCount, rest, err := readArrayHeader(rest)
	if err != nil {
		return nil, nil, err
	}
	columns := make(map[ecs.ComponentID][][]byte, colCount)
	for i := 0; i < colCount; i++ {
		var cid string
		cid, rest, err = readString(rest)
		if err != nil {
			return nil, nil, err
		}
		var rowCount int
		rowCount, rest, err = readArrayHeader(rest)
		if err != nil {
			return nil, nil, err
		}
		rows := make([][]byte, 0, rowCount)
		for j := 0; j < rowCount; j++ {
			var v []byte
			v, rest, err = readBytes(rest)
			if err != nil {
				return nil, nil, err
			}
			rows = append(rows, v)
		}
		columns[ecs.ComponentID(cid)] = rows
	}

	return &query.EcsData{Entities: entities, Columns: columns}, rest, nil
}
