package core

import (
	"errors"
	"sync"
)

// Registry tracks open databases so an application can close all of them
// from its shutdown path. A DB opened WithRegistry adds itself and is
// removed again when closed.
type Registry struct {
	mu  sync.Mutex
	dbs map[*DB]struct{}
}

func NewRegistry() *Registry {
	return &Registry{dbs: make(map[*DB]struct{})}
}

func (r *Registry) Register(db *DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbs[db] = struct{}{}
}

func (r *Registry) Unregister(db *DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dbs, db)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dbs)
}

// CloseAll flushes and closes every registered database and returns the
// joined errors of the ones that failed.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	dbs := make([]*DB, 0, len(r.dbs))
	for db := range r.dbs {
		dbs = append(dbs, db)
	}
	r.mu.Unlock()

	var errs []error
	for _, db := range dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
