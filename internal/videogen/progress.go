// SPDX-License-Identifier: MIT

// Package videogen turns a finalized recording file into a transparent
// video through a render-then-encode pipeline.
package videogen

import "sync"

// Step identifies a pipeline stage. A successful run moves strictly
// parsing → rendering → encoding → cleanup → complete; any stage can
// transition to error.
type Step string

const (
	StepParsing   Step = "parsing"
	StepRendering Step = "rendering"
	StepEncoding  Step = "encoding"
	StepCleanup   Step = "cleanup"
	StepComplete  Step = "complete"
	StepError     Step = "error"
)

// Progress is one progress event emitted during a generation run.
// OverallProgress is monotonically non-decreasing across a run.
type Progress struct {
	Step            Step   `json:"step"`
	StepProgress    int    `json:"stepProgress"`    // 0-100 within the step
	OverallProgress int    `json:"overallProgress"` // 0-100 across the run
	Message         string `json:"message"`
	CurrentFrame    int    `json:"currentFrame,omitempty"`
	TotalFrames     int    `json:"totalFrames,omitempty"`
	Error           string `json:"error,omitempty"`
}

// progressFanout pushes progress events to any number of listeners
// without ever blocking the pipeline. A listener that falls behind its
// buffer loses the oldest pending event.
type progressFanout struct {
	mu   sync.Mutex
	subs map[chan Progress]struct{}
}

const progressBuffer = 64

func newProgressFanout() *progressFanout {
	return &progressFanout{subs: make(map[chan Progress]struct{})}
}

func (f *progressFanout) subscribe() chan Progress {
	ch := make(chan Progress, progressBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *progressFanout) unsubscribe(ch chan Progress) {
	f.mu.Lock()
	_, ok := f.subs[ch]
	if ok {
		delete(f.subs, ch)
	}
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (f *progressFanout) publish(p Progress) {
	f.mu.Lock()
	for ch := range f.subs {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
	f.mu.Unlock()
}
