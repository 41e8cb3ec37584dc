package restserver

import (
	"net/http"
	"sync/atomic"
)

// Swappable serves through whichever Handler was installed last. Requests
// already in flight finish on the Handler they started with.
type Swappable struct {
	cur atomic.Pointer[Handler]
}

var _ http.Handler = (*Swappable)(nil)

// NewSwappable returns a Swappable serving h.
func NewSwappable(h *Handler) *Swappable {
	s := &Swappable{}
	s.cur.Store(h)
	return s
}

// Swap installs h and returns the Handler it replaces. The caller owns the
// old Handler's server and closes it when convenient.
func (s *Swappable) Swap(h *Handler) *Handler {
	return s.cur.Swap(h)
}

// Current returns the installed Handler.
func (s *Swappable) Current() *Handler { return s.cur.Load() }

func (s *Swappable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := s.cur.Load()
	if h == nil {
		http.Error(w, "server is starting", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}
