package ringdb

import "bytes"

// mergeCursor merges several cursors into one ascending scan. Inputs are
// ordered from the lowest (oldest) ring to the highest; on duplicate keys
// the entry from the highest ring wins and the shadowed entries are
// discarded.
type mergeCursor struct {
	heads []mergeHead
	key   []byte
	value string
}

type mergeHead struct {
	cur  Cursor
	key  []byte
	done bool
}

func newMergeCursor(curs []Cursor) *mergeCursor {
	m := &mergeCursor{heads: make([]mergeHead, len(curs))}
	for i, cur := range curs {
		m.heads[i] = mergeHead{cur: cur}
		m.advance(i)
	}
	return m
}

func (m *mergeCursor) advance(i int) {
	h := &m.heads[i]
	if h.cur.Next() {
		h.key = h.cur.Key()
	} else {
		h.key = nil
		h.done = true
	}
}

func (m *mergeCursor) Next() bool {
	var minKey []byte
	winner := -1
	for i := range m.heads {
		h := &m.heads[i]
		if h.done {
			continue
		}
		if minKey == nil || bytes.Compare(h.key, minKey) < 0 {
			minKey = h.key
			winner = i
		} else if bytes.Equal(h.key, minKey) {
			// same key in a higher ring shadows the lower one
			winner = i
		}
	}
	if winner < 0 {
		m.key, m.value = nil, ""
		return false
	}
	m.key = minKey
	m.value = m.heads[winner].cur.Value()
	for i := range m.heads {
		if !m.heads[i].done && bytes.Equal(m.heads[i].key, minKey) {
			m.advance(i)
		}
	}
	return true
}

func (m *mergeCursor) Key() []byte {
	return m.key
}

func (m *mergeCursor) Value() string {
	return m.value
}
