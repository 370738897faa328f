package kvstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/weir/pkg/log"
	"github.com/cuemby/weir/pkg/metrics"
	"go.etcd.io/bbolt"
)

// EnvOptions configures an Env at open time.
type EnvOptions struct {
	MaxDBs         int
	MaxReaders     int // accepted for config-surface parity; bbolt's MVCC readers are not slot-limited
	MapSizeBytes   int64
	NoSync         bool
	NoLock         bool
	WritableMemMap bool
}

// DefaultEnvOptions returns conservative defaults suitable for a single
// pipeline's cache directory.
func DefaultEnvOptions() EnvOptions {
	return EnvOptions{
		MaxDBs:       16,
		MaxReaders:   126,
		MapSizeBytes: 1 << 30, // 1 GiB
	}
}

// Env is an open memory-mapped key/value environment: one bbolt file
// holding every named database for a single cache or record store.
type Env struct {
	path string
	opts EnvOptions
	db   *bbolt.DB

	mu  sync.RWMutex
	dbs map[string]*DB
}

// OpenEnv opens (creating if necessary) the environment at path.
func OpenEnv(path string, opts EnvOptions) (*Env, error) {
	boltOpts := &bbolt.Options{
		Timeout:      2 * time.Second,
		NoSync:       opts.NoSync,
		NoGrowSync:   opts.NoSync,
		ReadOnly:     false,
		NoFreelistSync: opts.NoSync,
	}
	if opts.MaxReaders > 0 {
		log.WithComponent("kvstore").Debug().
			Int("max_readers", opts.MaxReaders).
			Msg("max_readers accepted for config parity; bbolt readers are not slot-limited")
	}

	db, err := bbolt.Open(path, 0o600, boltOpts)
	if err != nil {
		metrics.RegisterComponent("kvstore", false, err.Error())
		return nil, fmt.Errorf("open env %s: %w", path, err)
	}
	metrics.RegisterComponent("kvstore", true, "open: "+path)

	return &Env{
		path: path,
		opts: opts,
		db:   db,
		dbs:  make(map[string]*DB),
	}, nil
}

// Path returns the environment's backing file path.
func (e *Env) Path() string { return e.path }

// Close releases the environment's file handle. Any in-flight transaction
// must have been committed or aborted first.
func (e *Env) Close() error {
	err := e.db.Close()
	if err != nil {
		metrics.UpdateComponent("kvstore", false, err.Error())
	} else {
		metrics.UpdateComponent("kvstore", false, "closed: "+e.path)
	}
	return err
}

// lookupDB returns an already-opened DB descriptor, if any.
func (e *Env) lookupDB(name string) (*DB, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.dbs[name]
	return d, ok
}
