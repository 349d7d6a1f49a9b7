package premium

import (
	"sort"
	"sync"

	"github.com/suwandre/fundingarb/internal/models"
)

// Key identifies one premium series.
type Key struct {
	Exchange string
	Symbol   string
}

func (k Key) String() string {
	return k.Exchange + ":" + k.Symbol
}

// Ring is a bounded FIFO of premium samples. When full, appending evicts the oldest
// sample. A Ring is not safe for concurrent use; History serializes access per key.
type Ring struct {
	buf   []models.PremiumSample
	start int
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]models.PremiumSample, capacity)}
}

func (r *Ring) Cap() int { return len(r.buf) }
func (r *Ring) Len() int { return r.size }

func (r *Ring) Append(s models.PremiumSample) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Last returns up to n of the newest samples, oldest first. n <= 0 returns all.
func (r *Ring) Last(n int) []models.PremiumSample {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]models.PremiumSample, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

type series struct {
	mu   sync.Mutex
	ring *Ring
}

// History holds one Ring per (exchange, symbol). Appends and reads on the same key
// are serialized; different keys proceed independently.
type History struct {
	capacity int

	mu     sync.RWMutex
	series map[Key]*series
}

func NewHistory(capacity int) *History {
	return &History{
		capacity: capacity,
		series:   make(map[Key]*series),
	}
}

func (h *History) Capacity() int {
	return h.capacity
}

func (h *History) get(k Key, create bool) *series {
	h.mu.RLock()
	s, ok := h.series[k]
	h.mu.RUnlock()
	if ok || !create {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.series[k]; !ok {
		s = &series{ring: NewRing(h.capacity)}
		h.series[k] = s
	}
	return s
}

func (h *History) Append(s models.PremiumSample) {
	ser := h.get(Key{Exchange: s.Exchange, Symbol: s.Symbol}, true)
	ser.mu.Lock()
	ser.ring.Append(s)
	ser.mu.Unlock()
}

// Window returns up to n of the newest samples for k, oldest first.
func (h *History) Window(k Key, n int) []models.PremiumSample {
	ser := h.get(k, false)
	if ser == nil {
		return nil
	}
	ser.mu.Lock()
	defer ser.mu.Unlock()
	return ser.ring.Last(n)
}

func (h *History) Len(k Key) int {
	ser := h.get(k, false)
	if ser == nil {
		return 0
	}
	ser.mu.Lock()
	defer ser.mu.Unlock()
	return ser.ring.Len()
}

// Keys lists every series with at least one sample, sorted.
func (h *History) Keys() []Key {
	h.mu.RLock()
	keys := make([]Key, 0, len(h.series))
	for k := range h.series {
		keys = append(keys, k)
	}
	h.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}

// TWAP is the linear-weight average over the newest window samples of k.
func (h *History) TWAP(k Key, window int) (float64, error) {
	return TWAP(h.Window(k, window))
}
