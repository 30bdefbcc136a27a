package pipeline

import (
	"sync"

	"github.com/tphakala/imagelens/internal/vision"
)

// Progress is emitted after each layer of a run lands.
type Progress struct {
	ImageHash    string       `json:"imageHash"`
	CurrentLayer vision.Layer `json:"currentLayer"`
	Completed    int          `json:"completed"`
	Total        int          `json:"total"`
	Fraction     float64      `json:"fraction"`
	Failed       bool         `json:"failed"`
}

const subscriberBuffer = 16

// broadcaster fans progress events out to subscribers. Slow subscribers miss
// events rather than stalling the run.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Progress
}

func (b *broadcaster) subscribe() (<-chan Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[int]chan Progress{}
	}
	id := b.next
	b.next++
	ch := make(chan Progress, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// tracker counts completed layers of one run.
type tracker struct {
	hash      string
	total     int
	completed int
	emit      func(Progress)
}

func (t *tracker) landed(layer vision.Layer, failed bool) {
	t.completed++
	p := Progress{
		ImageHash:    t.hash,
		CurrentLayer: layer,
		Completed:    t.completed,
		Total:        t.total,
		Failed:       failed,
	}
	if t.total > 0 {
		p.Fraction = float64(t.completed) / float64(t.total)
	}
	t.emit(p)
}
