package api

import "sync"

// PredictionStore keeps the most recent prediction summaries in memory.
// Once full, the oldest entry is evicted.
type PredictionStore struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]Prediction
}

func NewPredictionStore(limit int) *PredictionStore {
	if limit < 1 {
		limit = 1
	}
	return &PredictionStore{limit: limit, byID: make(map[string]Prediction)}
}

func (s *PredictionStore) Save(p Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.byID[p.ID] = p
	for len(s.order) > s.limit {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *PredictionStore) Get(id string) (Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}

func (s *PredictionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the stored predictions, newest first.
func (s *PredictionStore) List() []Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Prediction, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}
