package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnavailable            = errors.New("recognizer unavailable")
	ErrTemporarilyUnavailable = errors.New("recognizer temporarily unavailable")
	ErrRecognition            = errors.New("recognition failed")
)

// Segment is one recognised word span. Offset is the byte position of the
// word inside the formatted transcript.
type Segment struct {
	Text   string
	Offset int
	Start  float64
	End    float64
}

type Transcription struct {
	Text     string
	Segments []Segment
	Final    bool
}

// Update is one delivery from a recognition task: a transcription, or a
// terminal error when Err is set.
type Update struct {
	Transcription
	Err error
}

type Recognizer interface {
	Name() string
	Locale() string
	Available(ctx context.Context) error
	NewTask(ctx context.Context) (Task, error)
}

// Task is one streaming recognition session. Updates delivers any number of
// partial transcriptions followed by exactly one final transcription or one
// error, then closes. Finish and Cancel may be called more than once.
type Task interface {
	Append(pcm []byte)
	Updates() <-chan Update
	Finish()
	Cancel()
}

type Config struct {
	Provider    string // "deepgram", "groq", "fake" or "" for the first with a key
	Language    string
	DeepgramKey string
	GroqKey     string
}

// HasCredential reports whether the selected provider has what it needs to
// authenticate.
func (c Config) HasCredential() bool {
	switch c.Provider {
	case "":
		return c.DeepgramKey != "" || c.GroqKey != ""
	case "deepgram":
		return c.DeepgramKey != ""
	case "groq":
		return c.GroqKey != ""
	case "fake":
		return true
	default:
		return false
	}
}

var locales = map[string][]string{
	"deepgram": {"en", "en-US", "en-GB", "en-AU", "en-IN", "en-NZ"},
	"groq":     {"", "en"},
	"fake":     {"", "en", "en-US"},
}

func localeSupported(provider, lang string) bool {
	return slices.Contains(locales[provider], lang)
}

// New returns the configured recognizer. It fails with ErrUnavailable when
// the provider has no credential or does not support the language.
func New(cfg Config) (Recognizer, error) {
	provider := cfg.Provider
	if provider == "" {
		switch {
		case cfg.DeepgramKey != "":
			provider = "deepgram"
		case cfg.GroqKey != "":
			provider = "groq"
		default:
			return nil, fmt.Errorf("%w: set DEEPGRAM_API_KEY or GROQ_API_KEY", ErrUnavailable)
		}
	}

	if !localeSupported(provider, cfg.Language) {
		return nil, fmt.Errorf("%w: %s does not support locale %q", ErrUnavailable, provider, cfg.Language)
	}

	switch provider {
	case "deepgram":
		if cfg.DeepgramKey == "" {
			return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY not set", ErrUnavailable)
		}
		return NewDeepgram(cfg.DeepgramKey, cfg.Language), nil
	case "groq":
		if cfg.GroqKey == "" {
			return nil, fmt.Errorf("%w: GROQ_API_KEY not set", ErrUnavailable)
		}
		return NewGroq(cfg.GroqKey, cfg.Language), nil
	case "fake":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, provider)
	}
}

// Offsets places each word, in order, inside text. A word that cannot be
// found is anchored at the current scan position.
func Offsets(text string, words []string) []int {
	offsets := make([]int, len(words))
	pos := 0
	for i, w := range words {
		idx := strings.Index(text[pos:], w)
		if idx < 0 || w == "" {
			offsets[i] = pos
			continue
		}
		offsets[i] = pos + idx
		pos += idx + len(w)
	}
	return offsets
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        2,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// probe reports whether endpoint answers at all. Any HTTP response below 500
// counts as reachable.
func probe(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %d", ErrTemporarilyUnavailable, endpoint, resp.StatusCode)
	}
	return nil
}

// emitter owns a task's Updates channel. When the consumer lags, the oldest
// queued partial makes room for the newest one; the terminal update is
// always delivered, exactly once, and the channel is then closed. No send
// ever blocks.
type emitter struct {
	mu      sync.Mutex
	closed  bool
	updates chan Update
}

func newEmitter() *emitter {
	return &emitter{updates: make(chan Update, 32)}
}

// push sends u, discarding the oldest queued update if the buffer is full.
// Callers hold mu, and only queued partials can be discarded.
func (e *emitter) push(u Update) {
	for {
		select {
		case e.updates <- u:
			return
		default:
		}
		select {
		case <-e.updates:
		default:
		}
	}
}

func (e *emitter) partial(tr Transcription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.push(Update{Transcription: tr})
}

func (e *emitter) terminate(u Update) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	e.push(u)
	close(e.updates)
	return true
}

func (e *emitter) final(tr Transcription) bool {
	tr.Final = true
	return e.terminate(Update{Transcription: tr})
}

func (e *emitter) fail(err error) bool {
	return e.terminate(Update{Err: err})
}

func (e *emitter) terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
