package monitor

import (
	"sync"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/pkg/textsim"
)

// noveltyFilter suppresses descriptions that repeat the last spoken one.
// A description is a repeat when its similarity to the baseline meets the
// threshold AND the baseline is younger than the window. Suppression does
// not refresh the baseline, so a genuinely persistent scene still gets
// re-spoken once the window expires.
type noveltyFilter struct {
	threshold float64
	window    time.Duration

	mu       sync.Mutex
	lastText string
	lastTime time.Time
}

func newNoveltyFilter(threshold float64, window time.Duration) *noveltyFilter {
	return &noveltyFilter{threshold: threshold, window: window}
}

// shouldSpeak reports whether text is novel enough to speak at now.
func (n *noveltyFilter) shouldSpeak(text string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lastText == "" {
		return true
	}

	similar := textsim.Ratio(text, n.lastText) >= n.threshold
	recent := now.Sub(n.lastTime) < n.window
	return !(similar && recent)
}

// spoke records text as the new baseline. Call only after a successful
// speak.
func (n *noveltyFilter) spoke(text string, now time.Time) {
	n.mu.Lock()
	n.lastText = text
	n.lastTime = now
	n.mu.Unlock()
}
