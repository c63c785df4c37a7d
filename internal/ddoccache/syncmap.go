package ddoccache

import "sync"

// syncMap is a minimal type-safe wrapper around sync.Map for Key →
// *entryRecord.  Kept tiny and unexported: the point is to get sync.Map's
// lock-free-read behavior without sprinkling type assertions through
// index.go.
type syncMap struct {
	m sync.Map
}

func (s *syncMap) Load(k Key) (*entryRecord, bool) {
	v, ok := s.m.Load(k)
	if !ok {
		return nil, false
	}
	return v.(*entryRecord), true
}

func (s *syncMap) LoadOrStore(k Key, rec *entryRecord) (*entryRecord, bool) {
	v, loaded := s.m.LoadOrStore(k, rec)
	return v.(*entryRecord), loaded
}

func (s *syncMap) CompareAndDelete(k Key, old *entryRecord) bool {
	return s.m.CompareAndDelete(k, old)
}

func (s *syncMap) Range(f func(Key, *entryRecord) bool) {
	s.m.Range(func(k, v any) bool {
		return f(k.(Key), v.(*entryRecord))
	})
}
