package recognizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Fake struct {
	mu       sync.Mutex
	availErr error
	tasks    []*FakeTask
	created  chan *FakeTask
}

func NewFake() *Fake {
	return &Fake{created: make(chan *FakeTask, 16)}
}

func (f *Fake) Name() string   { return "fake" }
func (f *Fake) Locale() string { return "en" }

// SetAvailable makes Available fail with ErrTemporarilyUnavailable when err is non-nil.
func (f *Fake) SetAvailable(err error) {
	f.mu.Lock()
	f.availErr = err
	f.mu.Unlock()
}

func (f *Fake) Available(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.availErr != nil {
		return fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, f.availErr)
	}
	return nil
}

func (f *Fake) NewTask(context.Context) (Task, error) {
	t := &FakeTask{out: newEmitter()}
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	select {
	case f.created <- t:
	default:
	}
	return t, nil
}

func (f *Fake) Tasks() []*FakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTask(nil), f.tasks...)
}

// Current returns the most recently created task, or nil.
func (f *Fake) Current() *FakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return nil
	}
	return f.tasks[len(f.tasks)-1]
}

func (f *Fake) TaskCreated() <-chan *FakeTask { return f.created }

type FakeTask struct {
	out *emitter

	mu       sync.Mutex
	words    []string
	bytes    int
	finished bool
	canceled bool
}

func (t *FakeTask) Append(pcm []byte) {
	t.mu.Lock()
	t.bytes += len(pcm)
	t.mu.Unlock()
}

func (t *FakeTask) Updates() <-chan Update { return t.out.updates }

// Say extends the running transcript with the words of text and emits it
// as a partial transcription.
func (t *FakeTask) Say(text string) {
	t.mu.Lock()
	t.words = append(t.words, strings.Fields(text)...)
	tr := t.transcriptionLocked()
	t.mu.Unlock()
	t.out.partial(tr)
}

// Fail terminates the task with a recognition error.
func (t *FakeTask) Fail(err error) {
	t.out.fail(fmt.Errorf("%w: %v", ErrRecognition, err))
}

func (t *FakeTask) Finish() {
	t.mu.Lock()
	t.finished = true
	tr := t.transcriptionLocked()
	t.mu.Unlock()
	t.out.final(tr)
}

func (t *FakeTask) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
	t.out.fail(context.Canceled)
}

func (t *FakeTask) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

func (t *FakeTask) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (t *FakeTask) BytesAppended() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

func (t *FakeTask) transcriptionLocked() Transcription {
	text := strings.Join(t.words, " ")
	offsets := Offsets(text, t.words)
	segs := make([]Segment, len(t.words))
	for i, w := range t.words {
		segs[i] = Segment{Text: w, Offset: offsets[i]}
	}
	return Transcription{Text: text, Segments: segs}
}
