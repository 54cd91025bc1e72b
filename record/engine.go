package record

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stevemurr/grocery-chat-server/index"
	"github.com/stevemurr/grocery-chat-server/keys"
	"github.com/stevemurr/grocery-chat-server/store"
)

// Engine provides CRUD over collections. The *Owned methods scope every
// call to an owner and maintain the owner index; FetchOwned is the only
// place ownership is checked.
type Engine struct {
	store  store.Store
	index  *index.Index
	scores *scorer
	newID  func() string
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for index scores.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.scores.now = now }
}

// WithIDGenerator sets the function that assigns record ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New returns an Engine over s. A nil logger means slog.Default().
func New(s store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  s,
		index:  index.New(s),
		scores: &scorer{now: time.Now},
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Index returns the owner index.
func (e *Engine) Index() *index.Index { return e.index }

// CreateOwned writes a new record owned by owner and indexes it. The index
// is only touched once the record is written.
func (e *Engine) CreateOwned(ctx context.Context, collection, owner string, fields map[string]string) (Record, error) {
	rec := make(Record, len(fields)+2)
	rec.merge(fields)
	rec[FieldID] = e.newID()
	rec[FieldOwner] = owner

	key := keys.Record(collection, rec.ID())
	if err := e.store.Put(ctx, key, rec); err != nil {
		return nil, unavailable("put", key, err)
	}
	if err := e.index.Add(ctx, owner, collection, key, e.scores.next()); err != nil {
		e.logger.Warn("record written but not indexed", "key", key, "owner", owner, "error", err)
		return nil, unavailable("index", key, err)
	}
	return rec, nil
}

// FetchOwned returns the record if it exists and belongs to owner.
func (e *Engine) FetchOwned(ctx context.Context, collection, owner, id string) (Record, error) {
	rec, err := e.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner() != owner {
		return nil, ErrUnauthorized
	}
	return rec, nil
}

// ListOwned returns owner's records, most recently modified first. Index
// entries whose record is missing or owned by someone else are skipped and
// left in place.
func (e *Engine) ListOwned(ctx context.Context, collection, owner string) ([]Record, error) {
	members, err := e.index.List(ctx, owner, collection)
	if err != nil {
		return nil, unavailable("list", index.Key(collection, owner), err)
	}
	docs, err := e.fetchAll(ctx, members)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for i, rec := range docs {
		if len(rec) == 0 || rec.Owner() != owner {
			DanglingEntries.WithLabelValues(collection).Inc()
			e.logger.DebugContext(ctx, "skipping dangling index entry",
				"collection", collection, "owner", owner, "key", members[i])
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateOwned merges changes into owner's record and moves it to the front
// of the owner's index. The id and owner fields cannot be changed.
func (e *Engine) UpdateOwned(ctx context.Context, collection, owner, id string, changes map[string]string) (Record, error) {
	rec, err := e.FetchOwned(ctx, collection, owner, id)
	if err != nil {
		return nil, err
	}
	rec.merge(changes)

	key := keys.Record(collection, id)
	if err := e.store.Put(ctx, key, rec); err != nil {
		return nil, unavailable("put", key, err)
	}
	if err := e.index.Add(ctx, owner, collection, key, e.scores.next()); err != nil {
		return nil, unavailable("index", key, err)
	}
	return rec, nil
}

// DeleteOwned removes owner's record, then its index entry.
func (e *Engine) DeleteOwned(ctx context.Context, collection, owner, id string) error {
	if _, err := e.FetchOwned(ctx, collection, owner, id); err != nil {
		return err
	}
	key := keys.Record(collection, id)
	if _, err := e.store.Delete(ctx, key); err != nil {
		return unavailable("delete", key, err)
	}
	if err := e.index.Remove(ctx, owner, collection, key); err != nil {
		return unavailable("unindex", key, err)
	}
	return nil
}

// DeleteAllOwned drains owner's index, then deletes the records it listed.
// It returns the number of records deleted.
func (e *Engine) DeleteAllOwned(ctx context.Context, collection, owner string) (int, error) {
	ixKey := index.Key(collection, owner)
	members, err := e.index.Clear(ctx, owner, collection)
	if err != nil {
		return 0, unavailable("clear", ixKey, err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	ops := make([]store.Op, len(members))
	for i, k := range members {
		ops[i] = store.DeleteOp(k)
	}
	results, err := e.store.Batch(ctx, ops)
	if err != nil {
		return 0, unavailable("batch delete", ixKey, err)
	}
	var (
		n    int
		errs []error
	)
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, unavailable("delete", members[i], r.Err))
			continue
		}
		n += int(r.Count)
	}
	if len(errs) > 0 {
		e.logger.Warn("records leaked by delete-all", "collection", collection, "owner", owner, "failed", len(errs))
	}
	return n, errors.Join(errs...)
}

// Create writes a new record that has no owner.
func (e *Engine) Create(ctx context.Context, collection string, fields map[string]string) (Record, error) {
	rec := make(Record, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec[FieldID] = e.newID()
	key := keys.Record(collection, rec.ID())
	if err := e.store.Put(ctx, key, rec); err != nil {
		return nil, unavailable("put", key, err)
	}
	return rec, nil
}

// CreateMany writes several unowned records in one batch. It returns the
// records that were written and the errors of those that were not.
func (e *Engine) CreateMany(ctx context.Context, collection string, items []map[string]string) ([]Record, error) {
	recs := make([]Record, len(items))
	ops := make([]store.Op, len(items))
	for i, fields := range items {
		rec := make(Record, len(fields)+1)
		for k, v := range fields {
			rec[k] = v
		}
		rec[FieldID] = e.newID()
		recs[i] = rec
		ops[i] = store.PutOp(keys.Record(collection, rec.ID()), rec)
	}
	if len(ops) == 0 {
		return nil, nil
	}
	results, err := e.store.Batch(ctx, ops)
	if err != nil {
		return nil, unavailable("batch put", keys.Prefix(collection), err)
	}
	var (
		out  []Record
		errs []error
	)
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, unavailable("put", ops[i].Key, r.Err))
			continue
		}
		out = append(out, recs[i])
	}
	return out, errors.Join(errs...)
}

// Get returns the record without any ownership check. An id that cannot
// be a record id is reported as ErrNotFound.
func (e *Engine) Get(ctx context.Context, collection, id string) (Record, error) {
	if !keys.ValidID(id) {
		return nil, ErrNotFound
	}
	key := keys.Record(collection, id)
	fields, err := e.store.GetAll(ctx, key)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return Record(fields), nil
}

// Set creates or merges into the record at collection:id. The id field is
// always id.
func (e *Engine) Set(ctx context.Context, collection, id string, fields map[string]string) (Record, error) {
	if !keys.ValidID(id) {
		return nil, ErrInvalidID
	}
	rec := make(Record, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec[FieldID] = id
	key := keys.Record(collection, id)
	if err := e.store.Put(ctx, key, rec); err != nil {
		return nil, unavailable("put", key, err)
	}
	return rec, nil
}

// Update merges changes into an existing record. The id field is preserved.
func (e *Engine) Update(ctx context.Context, collection, id string, changes map[string]string) (Record, error) {
	rec, err := e.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	for k, v := range changes {
		if k != FieldID {
			rec[k] = v
		}
	}
	key := keys.Record(collection, id)
	if err := e.store.Put(ctx, key, rec); err != nil {
		return nil, unavailable("put", key, err)
	}
	return rec, nil
}

// Delete removes a record by id. It reports ErrNotFound if nothing was there.
func (e *Engine) Delete(ctx context.Context, collection, id string) error {
	if !keys.ValidID(id) {
		return ErrNotFound
	}
	key := keys.Record(collection, id)
	n, err := e.store.Delete(ctx, key)
	if err != nil {
		return unavailable("delete", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan returns every record of collection in key order. Keys under the
// collection prefix that are not primary keys are ignored.
func (e *Engine) Scan(ctx context.Context, collection string) ([]Record, error) {
	prefix := keys.Prefix(collection)
	ks, err := e.store.Keys(ctx, prefix)
	if err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	var primary []string
	for _, k := range ks {
		if c, _, ok := keys.ParseRecord(k); ok && c == collection {
			primary = append(primary, k)
		}
	}
	docs, err := e.fetchAll(ctx, primary)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, rec := range docs {
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fetchAll reads every key in one batch. Missing records come back empty.
func (e *Engine) fetchAll(ctx context.Context, ks []string) ([]Record, error) {
	if len(ks) == 0 {
		return nil, nil
	}
	ops := make([]store.Op, len(ks))
	for i, k := range ks {
		ops[i] = store.GetAllOp(k)
	}
	results, err := e.store.Batch(ctx, ops)
	if err != nil {
		return nil, unavailable("batch get", ks[0], err)
	}
	docs := make([]Record, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, unavailable("get", ks[i], r.Err)
		}
		docs[i] = Record(r.Fields)
	}
	return docs, nil
}
