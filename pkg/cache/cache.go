// Package cache implements the embedded primary + secondary index cache
// that query endpoints are served from: one record database keyed by a
// monotonic record id, a primary-key-to-id lookup database, and zero or
// more secondary index databases (sorted-inverted or full-text) derived
// from the endpoint's schema.
package cache

import (
	"fmt"
	"sync"

	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/log"
	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/recordstore"
	"github.com/cuemby/weir/pkg/types"
)

const schemaDBName = "schema"
const idLookupDBName = "primary_key_lookup"
const recordDBName = "records"

// Config controls a Cache's secondary-index maintenance strategy.
type Config struct {
	// AsyncIndexing, when true, queues secondary index maintenance onto a
	// background worker instead of doing it inline with the record write.
	// Commit still blocks until that work has drained (see WaitUntilCatchUp),
	// so correctness is unaffected; only write latency changes.
	AsyncIndexing bool
}

// RecordMeta describes the identity and version of a cached record,
// returned from Insert/Delete so callers can observe what changed without
// re-reading the record.
type RecordMeta struct {
	ID      uint64
	Version uint64
}

// ResultKind tags the variant of an InsertResult.
type ResultKind int

const (
	Inserted ResultKind = iota
	Updated
)

// InsertResult reports whether Insert created a new record or replaced an
// existing one sharing the same primary key.
type InsertResult struct {
	Kind    ResultKind
	OldMeta *RecordMeta // set when Kind == Updated
	NewMeta RecordMeta
}

type indexJob struct {
	id  uint64
	old *types.Record
	new *types.Record // nil on a pure delete
}

// Cache is one build generation of an endpoint's query cache: a schema, its
// secondary indexes, and the on-disk databases that back them.
type Cache struct {
	endpoint string
	env      *kvstore.Env

	schema  types.Schema
	indexes []IndexDef

	records  *recordstore.Store
	idLookup *kvstore.DB
	indexDBs []*kvstore.DB
	schemaDB *kvstore.DB

	cfg Config

	// async indexing bookkeeping; unused when cfg.AsyncIndexing is false.
	mu        sync.Mutex
	cond      *sync.Cond
	submitted uint64
	indexed   uint64
	jobs      chan indexJob
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// Open creates or attaches to the on-disk databases for one cache build
// generation within env, persisting the schema and index definitions so a
// later process can reopen the same cache without being told them again.
func Open(env *kvstore.Env, endpoint string, schema types.Schema, indexes []IndexDef, cfg Config) (*Cache, error) {
	records, err := recordstore.Open(env, recordDBName)
	if err != nil {
		return nil, err
	}
	idLookup, err := kvstore.CreateOrOpenDB(env, idLookupDBName, kvstore.DBOptions{})
	if err != nil {
		return nil, fmt.Errorf("open id lookup db: %w", err)
	}
	schemaDB, err := kvstore.CreateOrOpenDB(env, schemaDBName, kvstore.DBOptions{})
	if err != nil {
		return nil, fmt.Errorf("open schema db: %w", err)
	}

	indexDBs := make([]*kvstore.DB, len(indexes))
	for i := range indexes {
		name := indexDBName(schema.ID, schema.Version, i)
		db, err := kvstore.CreateOrOpenDB(env, name, kvstore.DBOptions{AllowDup: true})
		if err != nil {
			return nil, fmt.Errorf("open index db %d: %w", i, err)
		}
		indexDBs[i] = db
	}

	c := &Cache{
		endpoint: endpoint,
		env:      env,
		schema:   schema,
		indexes:  indexes,
		records:  records,
		idLookup: idLookup,
		indexDBs: indexDBs,
		schemaDB: schemaDB,
		cfg:      cfg,
	}
	c.cond = sync.NewCond(&c.mu)

	if err := c.persistSchema(); err != nil {
		return nil, err
	}

	if cfg.AsyncIndexing {
		c.jobs = make(chan indexJob, 1024)
		c.stopCh = make(chan struct{})
		go c.indexWorker()
	}

	return c, nil
}

func (c *Cache) persistSchema() error {
	tx, err := kvstore.BeginRW(c.env)
	if err != nil {
		return err
	}
	blob, err := encodeSchemaEnvelope(c.schema, c.indexes)
	if err != nil {
		tx.Abort()
		return err
	}
	if err := tx.Put(c.schemaDB, []byte(c.endpoint), blob, kvstore.PutOptions{}); err != nil {
		tx.Abort()
		return fmt.Errorf("persist schema: %w", err)
	}
	return tx.Commit()
}

// OpenExisting reopens a cache whose schema and indexes were previously
// persisted by Open, reading them back instead of requiring the caller to
// supply them again.
func OpenExisting(env *kvstore.Env, endpoint string, cfg Config) (*Cache, error) {
	schemaDB, err := kvstore.CreateOrOpenDB(env, schemaDBName, kvstore.DBOptions{})
	if err != nil {
		return nil, fmt.Errorf("open schema db: %w", err)
	}
	ro, err := kvstore.BeginRO(env)
	if err != nil {
		return nil, err
	}
	blob, err := ro.Get(schemaDB, []byte(endpoint))
	ro.Abort()
	if err != nil {
		return nil, fmt.Errorf("read persisted schema for %q: %w", endpoint, err)
	}
	schema, indexes, err := decodeSchemaEnvelope(blob)
	if err != nil {
		return nil, err
	}
	return Open(env, endpoint, schema, indexes, cfg)
}

// Close stops the async indexing worker, if any. The underlying Env is
// owned by the caller and is not closed here.
func (c *Cache) Close() {
	if c.cfg.AsyncIndexing {
		c.stopOnce.Do(func() { close(c.stopCh) })
	}
}

// Insert stores a record under its primary key, creating a fresh record if
// no record with that primary key currently exists, or replacing the prior
// value (and bumping its version) if one does. Secondary indexes are
// updated to match, either inline or via the async worker per Config.
func (c *Cache) Insert(record types.Record) (InsertResult, error) {
	timer := metrics.NewTimer()
	if err := c.schema.Validate(record.Values); err != nil {
		return InsertResult{}, err
	}
	pkKey := types.EncodeComposite(c.schema.PrimaryKeyValues(record.Values))

	tx, err := kvstore.BeginRW(c.env)
	if err != nil {
		return InsertResult{}, err
	}

	existingID, existed, err := c.lookupID(tx, pkKey)
	if err != nil {
		tx.Abort()
		return InsertResult{}, err
	}

	var old *types.Record
	var result InsertResult
	if existed {
		oldBytes, err := c.records.Get(tx, existingID)
		if err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		oldRecord, err := decodeRecord(oldBytes)
		if err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		old = &oldRecord
		record.Version = oldRecord.Version + 1
		result = InsertResult{
			Kind:    Updated,
			OldMeta: &RecordMeta{ID: existingID, Version: oldRecord.Version},
			NewMeta: RecordMeta{ID: existingID, Version: record.Version},
		}
		blob, err := encodeRecord(record)
		if err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		if err := c.records.Put(tx, existingID, blob); err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
	} else {
		id, err := c.records.NextID(tx)
		if err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		record.Version = 1
		blob, err := encodeRecord(record)
		if err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		if err := c.records.Put(tx, id, blob); err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		if err := tx.Put(c.idLookup, pkKey, recordstore.EncodeID(id), kvstore.PutOptions{}); err != nil {
			tx.Abort()
			return InsertResult{}, err
		}
		result = InsertResult{Kind: Inserted, NewMeta: RecordMeta{ID: id, Version: 1}}
	}

	id := result.NewMeta.ID
	if c.cfg.AsyncIndexing {
		c.enqueueIndexJob(indexJob{id: id, old: old, new: &record})
	} else if err := c.applyIndexDelta(tx, id, old, &record); err != nil {
		tx.Abort()
		return InsertResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}

	if result.Kind == Inserted {
		metrics.CacheRecordsTotal.WithLabelValues(c.endpoint).Inc()
	}
	timer.ObserveDurationVec(metrics.CacheWriteDuration, c.endpoint, "insert")
	return result, nil
}

// Delete removes the record whose primary key matches pkValues, returning
// its prior metadata. Returns types.ErrNotFound if no such record exists.
func (c *Cache) Delete(pkValues []types.Field) (RecordMeta, error) {
	timer := metrics.NewTimer()
	pkKey := types.EncodeComposite(pkValues)

	tx, err := kvstore.BeginRW(c.env)
	if err != nil {
		return RecordMeta{}, err
	}

	id, existed, err := c.lookupID(tx, pkKey)
	if err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}
	if !existed {
		tx.Abort()
		return RecordMeta{}, types.ErrNotFound
	}

	oldBytes, err := c.records.Get(tx, id)
	if err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}
	oldRecord, err := decodeRecord(oldBytes)
	if err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}

	if err := tx.Del(c.idLookup, pkKey, nil); err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}
	if err := c.records.Delete(tx, id); err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}

	if c.cfg.AsyncIndexing {
		c.enqueueIndexJob(indexJob{id: id, old: &oldRecord, new: nil})
	} else if err := c.applyIndexDelta(tx, id, &oldRecord, nil); err != nil {
		tx.Abort()
		return RecordMeta{}, err
	}

	if err := tx.Commit(); err != nil {
		return RecordMeta{}, err
	}

	metrics.CacheRecordsTotal.WithLabelValues(c.endpoint).Dec()
	timer.ObserveDurationVec(metrics.CacheWriteDuration, c.endpoint, "delete")
	return RecordMeta{ID: id, Version: oldRecord.Version}, nil
}

// Get reads the current record for a primary key.
func (c *Cache) Get(pkValues []types.Field) (types.Record, RecordMeta, error) {
	pkKey := types.EncodeComposite(pkValues)
	tx, err := kvstore.BeginRO(c.env)
	if err != nil {
		return types.Record{}, RecordMeta{}, err
	}
	defer tx.Abort()

	id, existed, err := c.lookupID(tx, pkKey)
	if err != nil {
		return types.Record{}, RecordMeta{}, err
	}
	if !existed {
		return types.Record{}, RecordMeta{}, types.ErrNotFound
	}
	blob, err := c.records.Get(tx, id)
	if err != nil {
		return types.Record{}, RecordMeta{}, err
	}
	record, err := decodeRecord(blob)
	if err != nil {
		return types.Record{}, RecordMeta{}, err
	}
	return record, RecordMeta{ID: id, Version: record.Version}, nil
}

// Commit blocks until all record writes performed before this call and any
// secondary-index maintenance they triggered — synchronous or queued onto
// the async worker — have durably completed. With AsyncIndexing disabled
// (the default) every write is already synchronous, so this returns
// immediately; it exists so callers don't need to special-case the mode.
func (c *Cache) Commit() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CacheCommitDuration)
	return c.WaitUntilCatchUp()
}

// WaitUntilCatchUp blocks until every secondary-index job enqueued so far
// has been applied. A no-op when AsyncIndexing is disabled.
func (c *Cache) WaitUntilCatchUp() error {
	if !c.cfg.AsyncIndexing {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.submitted
	for c.indexed < target {
		c.cond.Wait()
	}
	return nil
}

func (c *Cache) enqueueIndexJob(job indexJob) {
	c.mu.Lock()
	c.submitted++
	c.mu.Unlock()
	c.jobs <- job
}

func (c *Cache) indexWorker() {
	logger := log.WithComponent("cache").With().Str("endpoint", c.endpoint).Logger()
	for {
		select {
		case job := <-c.jobs:
			tx, err := kvstore.BeginRW(c.env)
			if err != nil {
				logger.Error().Err(err).Msg("async index worker: begin txn")
			} else if err := c.applyIndexDelta(tx, job.id, job.old, job.new); err != nil {
				tx.Abort()
				logger.Error().Err(err).Uint64("record_id", job.id).Msg("async index worker: apply delta")
			} else if err := tx.Commit(); err != nil {
				logger.Error().Err(err).Msg("async index worker: commit")
			}
			c.mu.Lock()
			c.indexed++
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// applyIndexDelta removes old's postings and adds new's postings across
// every secondary index. Either old or new may be nil (pure insert / pure
// delete) but not both.
func (c *Cache) applyIndexDelta(tx *kvstore.Txn, id uint64, old, new *types.Record) error {
	idBytes := recordstore.EncodeID(id)
	for i, def := range c.indexes {
		db := c.indexDBs[i]
		if old != nil {
			for _, key := range def.Keys(c.schema, old.Values) {
				if err := tx.Del(db, key, idBytes); err != nil {
					return fmt.Errorf("remove index %d posting: %w", i, err)
				}
			}
		}
		if new != nil {
			for _, key := range def.Keys(c.schema, new.Values) {
				if err := tx.Put(db, key, idBytes, kvstore.PutOptions{}); err != nil {
					return fmt.Errorf("add index %d posting: %w", i, err)
				}
			}
		}
	}
	return nil
}

func (c *Cache) lookupID(tx *kvstore.Txn, pkKey []byte) (id uint64, existed bool, err error) {
	raw, err := tx.Get(c.idLookup, pkKey)
	if err == types.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return recordstore.DecodeID(raw), true, nil
}

// Endpoint returns the endpoint name this cache was opened for.
func (c *Cache) Endpoint() string { return c.endpoint }

// Schema returns the schema this cache was opened with.
func (c *Cache) Schema() types.Schema { return c.schema }

// Indexes returns the secondary index definitions this cache was opened
// with, in the same order as their on-disk databases.
func (c *Cache) Indexes() []IndexDef { return c.indexes }

// IndexDB returns the on-disk database backing secondary index n, for use
// by pkg/query's IndexScan plans.
func (c *Cache) IndexDB(n int) *kvstore.DB { return c.indexDBs[n] }

// RecordEnv exposes the underlying Env so pkg/query can open its own
// cursors over the record and index databases within a shared transaction.
func (c *Cache) RecordEnv() *kvstore.Env { return c.env }

// Records exposes the record store so pkg/query can resolve index
// postings (record ids) back to full records.
func (c *Cache) Records() *recordstore.Store { return c.records }

// RecordsRawDB exposes the record store's underlying database for a
// SeqScan's direct id-order cursor.
func (c *Cache) RecordsRawDB() *kvstore.DB { return c.records.DB() }

// DecodeRecord exposes the record codec to pkg/query.
func DecodeRecord(b []byte) (types.Record, error) { return decodeRecord(b) }
