package db

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
)

// MemoryDatabase is an in-process Database. Transactions run against a copy
// of the state that replaces the live state only when fn succeeds.
type MemoryDatabase struct {
	*memQueries
	mu sync.RWMutex
	st *memState
}

var _ Database = (*MemoryDatabase)(nil)

type seqBase struct {
	Base
	seq int64
}

type seqField struct {
	Field
	seq int64
}

type seqRecord struct {
	Record
	seq int64
}

type memState struct {
	seq     int64
	bases   map[string]seqBase
	fields  map[string]seqField
	options map[string]Option
	records map[string]seqRecord
	values  map[valueKey]Value
	users   map[string]User
}

type valueKey struct {
	recordID string
	fieldID  string
}

func newMemState() *memState {
	return &memState{
		bases:   make(map[string]seqBase),
		fields:  make(map[string]seqField),
		options: make(map[string]Option),
		records: make(map[string]seqRecord),
		values:  make(map[valueKey]Value),
		users:   make(map[string]User),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:     s.seq,
		bases:   make(map[string]seqBase, len(s.bases)),
		fields:  make(map[string]seqField, len(s.fields)),
		options: make(map[string]Option, len(s.options)),
		records: make(map[string]seqRecord, len(s.records)),
		values:  make(map[valueKey]Value, len(s.values)),
		users:   make(map[string]User, len(s.users)),
	}
	for k, v := range s.bases {
		c.bases[k] = v
	}
	for k, v := range s.fields {
		c.fields[k] = v
	}
	for k, v := range s.options {
		c.options[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

func (s *memState) next() int64 {
	s.seq++
	return s.seq
}

func NewMemoryDatabase() *MemoryDatabase {
	m := &MemoryDatabase{st: newMemState()}
	m.memQueries = &memQueries{db: m}
	return m
}

func (m *MemoryDatabase) InTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.st.clone()
	if err := fn(&memQueries{db: m, tx: staged}); err != nil {
		return err
	}
	m.st = staged
	return nil
}

func (m *MemoryDatabase) Close() {}

// PutUser registers a user projection. Accounts are owned by the auth service;
// this exists so the in-memory store can resolve user references.
func (m *MemoryDatabase) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.users[u.ID] = u
}

type memQueries struct {
	db *MemoryDatabase
	tx *memState
}

func (q *memQueries) view(fn func(st *memState) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	q.db.mu.RLock()
	defer q.db.mu.RUnlock()
	return fn(q.db.st)
}

func (q *memQueries) update(fn func(st *memState) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	return fn(q.db.st)
}

func (q *memQueries) InsertBase(_ context.Context, base Base) error {
	return q.update(func(st *memState) error {
		if _, ok := st.bases[base.ID]; ok {
			return ErrDuplicate
		}
		st.bases[base.ID] = seqBase{Base: base, seq: st.next()}
		return nil
	})
}

func (q *memQueries) GetBase(_ context.Context, id string) (Base, error) {
	var b Base
	err := q.view(func(st *memState) error {
		sb, ok := st.bases[id]
		if !ok {
			return ErrNotFound
		}
		b = sb.Base
		return nil
	})
	return b, err
}

func (q *memQueries) ListBases(_ context.Context) ([]Base, error) {
	var out []seqBase
	_ = q.view(func(st *memState) error {
		for _, b := range st.bases {
			out = append(out, b)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	bases := make([]Base, 0, len(out))
	for _, b := range out {
		bases = append(bases, b.Base)
	}
	return bases, nil
}

func (q *memQueries) DeleteBase(_ context.Context, id string) error {
	return q.update(func(st *memState) error {
		if _, ok := st.bases[id]; !ok {
			return ErrNotFound
		}
		for _, r := range st.records {
			if r.BaseID == id {
				return ErrForeignKey
			}
		}
		for fid, f := range st.fields {
			if f.BaseID == id {
				st.dropField(fid)
			}
		}
		delete(st.bases, id)
		return nil
	})
}

func (q *memQueries) InsertFields(_ context.Context, fields []Field) error {
	return q.update(func(st *memState) error {
		for _, f := range fields {
			if _, ok := st.bases[f.BaseID]; !ok {
				return ErrForeignKey
			}
			if _, ok := st.fields[f.ID]; ok {
				return ErrDuplicate
			}
		}
		for _, f := range fields {
			st.fields[f.ID] = seqField{Field: f, seq: st.next()}
		}
		return nil
	})
}

func (q *memQueries) GetField(_ context.Context, id string) (Field, error) {
	var f Field
	err := q.view(func(st *memState) error {
		sf, ok := st.fields[id]
		if !ok {
			return ErrNotFound
		}
		f = sf.Field
		return nil
	})
	return f, err
}

func (q *memQueries) ListFields(_ context.Context, baseID string) ([]Field, error) {
	var out []seqField
	_ = q.view(func(st *memState) error {
		for _, f := range st.fields {
			if f.BaseID == baseID {
				out = append(out, f)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	fields := make([]Field, 0, len(out))
	for _, f := range out {
		fields = append(fields, f.Field)
	}
	return fields, nil
}

func (q *memQueries) DeleteField(_ context.Context, id string) error {
	return q.update(func(st *memState) error {
		if _, ok := st.fields[id]; !ok {
			return ErrNotFound
		}
		st.dropField(id)
		return nil
	})
}

// dropField removes a field with its options and values.
func (st *memState) dropField(id string) {
	delete(st.fields, id)
	for oid, o := range st.options {
		if o.FieldID == id {
			delete(st.options, oid)
		}
	}
	for k := range st.values {
		if k.fieldID == id {
			delete(st.values, k)
		}
	}
}

func (q *memQueries) InsertOption(_ context.Context, opt Option) error {
	return q.update(func(st *memState) error {
		if _, ok := st.fields[opt.FieldID]; !ok {
			return ErrForeignKey
		}
		if st.optionNameTaken(opt) {
			return ErrDuplicate
		}
		st.options[opt.ID] = opt
		return nil
	})
}

func (st *memState) optionNameTaken(opt Option) bool {
	for _, o := range st.options {
		if o.FieldID == opt.FieldID && o.Name == opt.Name && o.ID != opt.ID {
			return true
		}
	}
	return false
}

func (q *memQueries) GetOption(_ context.Context, id string) (Option, error) {
	var o Option
	err := q.view(func(st *memState) error {
		var ok bool
		if o, ok = st.options[id]; !ok {
			return ErrNotFound
		}
		return nil
	})
	return o, err
}

func (q *memQueries) ListOptions(_ context.Context, fieldID string) ([]Option, error) {
	var opts []Option
	_ = q.view(func(st *memState) error {
		for _, o := range st.options {
			if o.FieldID == fieldID {
				opts = append(opts, o)
			}
		}
		return nil
	})
	sort.Slice(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
	return opts, nil
}

func (q *memQueries) FindOption(_ context.Context, fieldID, key string) (Option, error) {
	var found Option
	err := q.view(func(st *memState) error {
		if o, ok := st.options[key]; ok && o.FieldID == fieldID {
			found = o
			return nil
		}
		for _, o := range st.options {
			if o.FieldID == fieldID && o.Name == key {
				found = o
				return nil
			}
		}
		return ErrNotFound
	})
	return found, err
}

func (q *memQueries) UpdateOption(_ context.Context, opt Option) error {
	return q.update(func(st *memState) error {
		cur, ok := st.options[opt.ID]
		if !ok {
			return ErrNotFound
		}
		opt.FieldID = cur.FieldID
		if st.optionNameTaken(opt) {
			return ErrDuplicate
		}
		st.options[opt.ID] = opt
		return nil
	})
}

func (q *memQueries) DeleteOption(_ context.Context, id string) error {
	return q.update(func(st *memState) error {
		if _, ok := st.options[id]; !ok {
			return ErrNotFound
		}
		delete(st.options, id)
		return nil
	})
}

func (q *memQueries) InsertRecord(_ context.Context, rec Record) error {
	return q.update(func(st *memState) error {
		if _, ok := st.bases[rec.BaseID]; !ok {
			return ErrForeignKey
		}
		if _, ok := st.records[rec.ID]; ok {
			return ErrDuplicate
		}
		st.records[rec.ID] = seqRecord{Record: rec, seq: st.next()}
		return nil
	})
}

func (q *memQueries) GetRecord(_ context.Context, id string) (Record, error) {
	var r Record
	err := q.view(func(st *memState) error {
		sr, ok := st.records[id]
		if !ok {
			return ErrNotFound
		}
		r = sr.Record
		return nil
	})
	return r, err
}

func (q *memQueries) DeleteRecord(_ context.Context, id string) error {
	return q.update(func(st *memState) error {
		if _, ok := st.records[id]; !ok {
			return ErrNotFound
		}
		delete(st.records, id)
		for k := range st.values {
			if k.recordID == id {
				delete(st.values, k)
			}
		}
		return nil
	})
}

func (q *memQueries) CountRecords(_ context.Context, baseID string) (int, error) {
	n := 0
	_ = q.view(func(st *memState) error {
		for _, r := range st.records {
			if r.BaseID == baseID {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (st *memState) matching(rq RecordQuery) ([]seqRecord, error) {
	var out []seqRecord
	for _, r := range st.records {
		if r.BaseID != rq.BaseID {
			continue
		}
		ok, err := st.satisfies(r.ID, rq.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if rq.Sort == SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if rq.Sort == SortAsc {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})
	return out, nil
}

func (st *memState) satisfies(recordID string, filters []ValueFilter) (bool, error) {
	for _, f := range filters {
		v, ok := st.values[valueKey{recordID: recordID, fieldID: f.FieldID}]
		if !ok {
			return false, nil
		}
		eq, err := jsonEqual(v.Value, f.Value)
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// jsonEqual compares two JSON documents structurally, like jsonb equality.
func jsonEqual(a, b json.RawMessage) (bool, error) {
	var av, bv any
	if err := json.Unmarshal(orNull(a), &av); err != nil {
		return false, err
	}
	if err := json.Unmarshal(orNull(b), &bv); err != nil {
		return false, err
	}
	return reflect.DeepEqual(av, bv), nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func (q *memQueries) FindRecords(_ context.Context, rq RecordQuery) ([]Record, error) {
	var page []Record
	err := q.view(func(st *memState) error {
		all, err := st.matching(rq)
		if err != nil {
			return err
		}
		for i := max(rq.Offset, 0); i < len(all) && (rq.Limit <= 0 || len(page) < rq.Limit); i++ {
			page = append(page, all[i].Record)
		}
		return nil
	})
	return page, err
}

func (q *memQueries) CountMatching(_ context.Context, rq RecordQuery) (int, error) {
	n := 0
	err := q.view(func(st *memState) error {
		all, err := st.matching(rq)
		n = len(all)
		return err
	})
	return n, err
}

func (q *memQueries) ListRecordValues(_ context.Context, recordIDs []string) ([]FieldValue, error) {
	want := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		want[id] = true
	}
	type joined struct {
		fv  FieldValue
		seq int64
	}
	var out []joined
	_ = q.view(func(st *memState) error {
		for k, v := range st.values {
			if !want[k.recordID] {
				continue
			}
			f, ok := st.fields[k.fieldID]
			if !ok {
				continue
			}
			out = append(out, joined{fv: FieldValue{Value: v, Field: f.Field}, seq: f.seq})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].fv.Value.RecordID != out[j].fv.Value.RecordID {
			return out[i].fv.Value.RecordID < out[j].fv.Value.RecordID
		}
		return out[i].seq < out[j].seq
	})
	values := make([]FieldValue, 0, len(out))
	for _, j := range out {
		values = append(values, j.fv)
	}
	return values, nil
}

func (q *memQueries) InsertValues(_ context.Context, values []Value) error {
	return q.update(func(st *memState) error {
		for _, v := range values {
			if err := st.checkValueRefs(v); err != nil {
				return err
			}
			if _, ok := st.values[valueKey{v.RecordID, v.FieldID}]; ok {
				return ErrDuplicate
			}
		}
		for _, v := range values {
			st.values[valueKey{v.RecordID, v.FieldID}] = v
		}
		return nil
	})
}

func (st *memState) checkValueRefs(v Value) error {
	if _, ok := st.records[v.RecordID]; !ok {
		return ErrForeignKey
	}
	if _, ok := st.fields[v.FieldID]; !ok {
		return ErrForeignKey
	}
	return nil
}

func (q *memQueries) UpsertValue(_ context.Context, v Value) (Value, error) {
	var out Value
	err := q.update(func(st *memState) error {
		if err := st.checkValueRefs(v); err != nil {
			return err
		}
		key := valueKey{v.RecordID, v.FieldID}
		if cur, ok := st.values[key]; ok {
			cur.Value = v.Value
			cur.UpdatedBy = v.UpdatedBy
			cur.UpdatedAt = v.UpdatedAt
			st.values[key] = cur
			out = cur
			return nil
		}
		st.values[key] = v
		out = v
		return nil
	})
	return out, err
}

func (q *memQueries) GetUser(_ context.Context, id string) (User, error) {
	var u User
	err := q.view(func(st *memState) error {
		var ok bool
		if u, ok = st.users[id]; !ok {
			return ErrNotFound
		}
		return nil
	})
	return u, err
}
