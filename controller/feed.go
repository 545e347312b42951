package controller

import (
	"sync"

	"utter/recognizer"
)

// maxPreroll bounds audio buffered between capture start and task
// registration (two seconds of PCM16 mono at 16 kHz).
const maxPreroll = 2 * 32000

// feed routes capture buffers to the active task. Audio that arrives before
// the task exists is held and flushed on attach, in order.
type feed struct {
	mu      sync.Mutex
	open    bool
	task    recognizer.Task
	preroll []byte
}

func (f *feed) begin() {
	f.mu.Lock()
	f.open, f.task, f.preroll = true, nil, nil
	f.mu.Unlock()
}

func (f *feed) attach(t recognizer.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return
	}
	if len(f.preroll) > 0 {
		t.Append(f.preroll)
		f.preroll = nil
	}
	f.task = t
}

func (f *feed) detach() {
	f.mu.Lock()
	f.open, f.task, f.preroll = false, nil, nil
	f.mu.Unlock()
}

func (f *feed) write(data []byte, _ uint32) {
	if len(data) == 0 {
		return
	}
	pcm := make([]byte, len(data))
	copy(pcm, data)

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return
	}
	t := f.task
	if t == nil {
		if len(f.preroll)+len(pcm) <= maxPreroll {
			f.preroll = append(f.preroll, pcm...)
		}
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	t.Append(pcm)
}
