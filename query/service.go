package query

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Resolver answers a single lookup into a caller-provided buffer. The
// returned required size is the true value length whenever the key
// exists, regardless of status; it is 0 for NotFound.
type Resolver interface {
	Resolve(key, dst []byte) (status Status, written int, required uint32)
}

// Service is the host side of the protocol: a resident key/value table
// shared by every guest the host runs, safe for concurrent resolution.
type Service struct {
	table cmap.ConcurrentMap[string, []byte]
}

// NewService returns an empty table.
func NewService() *Service {
	return &Service{table: cmap.New[[]byte]()}
}

// Insert stores a copy of value under key, replacing any earlier value.
func (s *Service) Insert(key, value []byte) {
	s.table.Set(string(key), append([]byte(nil), value...))
}

// Load bulk-inserts pairs, copying each value.
func (s *Service) Load(pairs map[string][]byte) {
	for k, v := range pairs {
		s.table.Set(k, append([]byte(nil), v...))
	}
	Logger().Debug("query table loaded",
		zap.Int("pairs", len(pairs)),
		zap.Int("total", s.table.Count()))
}

// Len reports the number of resident pairs.
func (s *Service) Len() int {
	return s.table.Count()
}

// Resolve implements Resolver against the resident table. On
// BufferTooSmall nothing is written and required still carries the value
// length, so the caller can retry with an exact-size buffer.
func (s *Service) Resolve(key, dst []byte) (Status, int, uint32) {
	v, ok := s.table.Get(string(key))
	if !ok {
		return NotFound, 0, 0
	}
	if len(v) > len(dst) {
		return BufferTooSmall, 0, uint32(len(v))
	}
	return Success, copy(dst, v), uint32(len(v))
}
