// Package memory provides in-memory FHIR resource providers and a system
// provider backed by a shared versioned store. They exist so the server can
// be run and exercised end to end; nothing is persisted.
package memory

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

type record struct {
	versions []fhir.Resource
	deleted  bool
}

func (r *record) current() fhir.Resource { return r.versions[len(r.versions)-1] }

// Store holds every version of every resource, keyed by type and id.
type Store struct {
	mu    sync.RWMutex
	types map[string]map[string]*record
	// log is the system-wide history, oldest first.
	log []fhir.Resource
	now func() time.Time
	id  func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		types: make(map[string]map[string]*record),
		now:   time.Now,
		id:    uuid.NewString,
	}
}

func (s *Store) lookup(rt, id string) (*record, error) {
	rec, ok := s.types[rt][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", fhirservice.ErrResourceNotFound, rt, id)
	}
	if rec.deleted {
		return nil, fmt.Errorf("%w: %s/%s", fhirservice.ErrResourceGone, rt, id)
	}
	return rec, nil
}

func (s *Store) read(rt, id string) (fhir.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(rt, id)
	if err != nil {
		return nil, err
	}
	return rec.current().Clone(), nil
}

func (s *Store) vread(rt, id, vid string) (fhir.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.types[rt][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", fhirservice.ErrResourceNotFound, rt, id)
	}
	n, err := strconv.Atoi(vid)
	if err != nil || n < 1 || n > len(rec.versions) {
		return nil, fmt.Errorf("%w: %s/%s/_history/%s", fhirservice.ErrResourceNotFound, rt, id, vid)
	}
	return rec.versions[n-1].Clone(), nil
}

// put stores res as the next version of rt/id. Callers hold s.mu.
func (s *Store) put(rt, id string, res fhir.Resource) (fhir.Resource, bool) {
	byID, ok := s.types[rt]
	if !ok {
		byID = make(map[string]*record)
		s.types[rt] = byID
	}
	rec, existed := byID[id]
	created := !existed || rec.deleted
	if !existed {
		rec = &record{}
		byID[id] = rec
	}
	out := res.Clone()
	out["resourceType"] = rt
	out["id"] = id
	out["meta"] = map[string]any{
		"versionId":   strconv.Itoa(len(rec.versions) + 1),
		"lastUpdated": s.now().UTC().Format(time.RFC3339Nano),
	}
	rec.versions = append(rec.versions, out)
	rec.deleted = false
	s.log = append(s.log, out)
	return out.Clone(), created
}

func (s *Store) create(rt string, res fhir.Resource) fhir.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, _ := s.put(rt, s.id(), res)
	return out
}

func (s *Store) update(rt, id string, res fhir.Resource) (fhir.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(rt, id, res)
}

// remove marks rt/id deleted. Callers hold s.mu.
func (s *Store) remove(rt, id string) error {
	rec, err := s.lookup(rt, id)
	if err != nil {
		return err
	}
	rec.deleted = true
	return nil
}

func (s *Store) delete(rt, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(rt, id)
}

// live returns the current version of every non-deleted resource of rt,
// ordered by id.
func (s *Store) live(rt string) []fhir.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.types[rt]))
	for id, rec := range s.types[rt] {
		if !rec.deleted {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]fhir.Resource, len(ids))
	for i, id := range ids {
		out[i] = s.types[rt][id].current().Clone()
	}
	return out
}

// history returns versions newest first, filtered by match.
func (s *Store) history(match func(fhir.Resource) bool) []fhir.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fhir.Resource
	for i := len(s.log) - 1; i >= 0; i-- {
		if match(s.log[i]) {
			out = append(out, s.log[i].Clone())
		}
	}
	return out
}

// snapshot captures enough state to undo a failed transaction. Callers
// hold s.mu.
func (s *Store) snapshot() func() {
	logLen := len(s.log)
	saved := make(map[string]map[string]record, len(s.types))
	for rt, byID := range s.types {
		m := make(map[string]record, len(byID))
		for id, rec := range byID {
			m[id] = record{versions: slices.Clone(rec.versions), deleted: rec.deleted}
		}
		saved[rt] = m
	}
	return func() {
		s.log = s.log[:logLen]
		s.types = make(map[string]map[string]*record, len(saved))
		for rt, byID := range saved {
			m := make(map[string]*record, len(byID))
			for id, rec := range byID {
				m[id] = &rec
			}
			s.types[rt] = m
		}
	}
}
