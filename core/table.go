package core

import (
	"container/list"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

// Table is the in-memory mirror of a journal: the fold of every record
// replayed or written so far, last write per key wins.
//
// Keys keep the position of their first insertion, so iteration and
// Records follow insertion order. Table is not safe for concurrent use;
// DB serializes access to it.
type Table struct {
	order *list.List
	index map[string]*list.Element
}

type tableEntry struct {
	key   string
	value []byte
}

func NewTable() *Table {
	return &Table{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

func (t *Table) Get(key string) ([]byte, bool) {
	el, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*tableEntry).value, true
}

func (t *Table) Set(key string, value []byte) {
	if el, ok := t.index[key]; ok {
		el.Value.(*tableEntry).value = value
		return
	}
	t.index[key] = t.order.PushBack(&tableEntry{key: key, value: value})
}

// Delete removes key and returns the value it held.
func (t *Table) Delete(key string) ([]byte, bool) {
	el, ok := t.index[key]
	if !ok {
		return nil, false
	}
	delete(t.index, key)
	return t.order.Remove(el).(*tableEntry).value, true
}

// Merge applies recs in order.
func (t *Table) Merge(recs []record.Record) {
	for i := range recs {
		t.Apply(&recs[i])
	}
}

func (t *Table) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

func (t *Table) Len() int {
	return len(t.index)
}

func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.index))
	for el := t.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*tableEntry).key)
	}
	return keys
}

// Each calls fn for every entry in insertion order until fn returns false.
func (t *Table) Each(fn func(key string, value []byte) bool) {
	for el := t.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*tableEntry)
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (t *Table) Clear() {
	t.order.Init()
	clear(t.index)
}

// Records returns one upsert record per live key, in table order. This is
// the content of a compacted journal.
func (t *Table) Records() []record.Record {
	recs := make([]record.Record, 0, len(t.index))
	for el := t.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*tableEntry)
		recs = append(recs, record.New([]byte(e.key), e.value))
	}
	return recs
}

// Apply folds one replayed record into the table. A nil record is the reset
// signal sent before a replay from the start of the file.
func (t *Table) Apply(rec *record.Record) {
	switch {
	case rec == nil:
		t.Clear()
	case rec.Tombstone:
		t.Delete(string(rec.Key))
	default:
		t.Set(string(rec.Key), rec.Value)
	}
}
