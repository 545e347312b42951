package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"utter/encoder"
	"utter/log"
)

const (
	deepgramHost      = "https://api.deepgram.com"
	deepgramStreamURL = "wss://api.deepgram.com/v1/listen"

	streamChunkMs    = 200
	streamChunkBytes = encoder.BytesPerSec * streamChunkMs / 1000
	finishTimeout    = 3 * time.Second
)

type Deepgram struct {
	apiKey string
	lang   string
	client *http.Client
	dialer *websocket.Dialer
	url    string // overridable for tests
}

func NewDeepgram(apiKey, lang string) *Deepgram {
	return &Deepgram{
		apiKey: apiKey,
		lang:   lang,
		client: newHTTPClient(),
		dialer: websocket.DefaultDialer,
		url:    deepgramStreamURL,
	}
}

func (d *Deepgram) Name() string   { return "deepgram" }
func (d *Deepgram) Locale() string { return d.lang }

func (d *Deepgram) Available(ctx context.Context) error {
	return probe(ctx, d.client, deepgramHost)
}

type deepgramWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string         `json:"transcript"`
			Words      []deepgramWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *Deepgram) streamURL() (string, error) {
	endpoint, err := url.Parse(d.url)
	if err != nil {
		return "", err
	}
	q := endpoint.Query()
	q.Set("model", "nova-3")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", encoder.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", encoder.Channels))
	q.Set("interim_results", "true")
	if d.lang != "" {
		q.Set("language", d.lang)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) NewTask(ctx context.Context) (Task, error) {
	endpoint, err := d.streamURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, _, err := d.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: deepgram dial: %v", ErrTemporarilyUnavailable, err)
	}

	t := &deepgramTask{
		conn:    conn,
		out:     newEmitter(),
		audioCh: make(chan []byte, 128),
		stopped: make(chan struct{}),
	}
	go t.runSender()
	go t.runReceiver()
	return t, nil
}

type deepgramTask struct {
	conn    *websocket.Conn
	out     *emitter
	audioCh chan []byte

	feedMu   sync.Mutex
	feedBuf  []byte
	tail     []byte // leftover audio sent after audioCh drains
	finished bool
	dropped  int

	mu        sync.Mutex
	committed []deepgramWord
	text      string
	closing   bool

	stopOnce sync.Once
	stopped  chan struct{}
}

func (t *deepgramTask) Append(pcm []byte) {
	t.feedMu.Lock()
	defer t.feedMu.Unlock()
	if t.finished {
		return
	}
	t.feedBuf = append(t.feedBuf, pcm...)
	for len(t.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, t.feedBuf[:streamChunkBytes])
		t.feedBuf = t.feedBuf[streamChunkBytes:]
		select {
		case t.audioCh <- chunk:
		default:
			// the sender is stalled on the socket; Append runs on the
			// caller's loop and must not wait for it
			if t.dropped == 0 {
				log.Warn("deepgram sender stalled, dropping audio")
			}
			t.dropped++
		}
	}
}

func (t *deepgramTask) Updates() <-chan Update { return t.out.updates }

func (t *deepgramTask) Finish() {
	t.feedMu.Lock()
	if t.finished {
		t.feedMu.Unlock()
		return
	}
	t.finished = true
	t.tail, t.feedBuf = t.feedBuf, nil
	close(t.audioCh)
	t.feedMu.Unlock()

	go func() {
		select {
		case <-t.stopped:
		case <-time.After(finishTimeout):
			log.Warn("deepgram finalize timeout")
			t.out.final(t.snapshot(nil))
			t.stop()
		}
	}()
}

func (t *deepgramTask) Cancel() {
	t.feedMu.Lock()
	if !t.finished {
		t.finished = true
		close(t.audioCh)
	}
	t.feedMu.Unlock()
	t.out.fail(context.Canceled)
	t.stop()
}

func (t *deepgramTask) stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		t.mu.Unlock()
		close(t.stopped)
		t.conn.Close()
	})
}

func (t *deepgramTask) runSender() {
	for chunk := range t.audioCh {
		if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.out.fail(fmt.Errorf("%w: deepgram send: %v", ErrRecognition, err))
			t.stop()
			return
		}
	}
	t.feedMu.Lock()
	tail := t.tail
	t.tail = nil
	t.feedMu.Unlock()
	if len(tail) > 0 {
		if err := t.conn.WriteMessage(websocket.BinaryMessage, tail); err != nil {
			t.out.fail(fmt.Errorf("%w: deepgram send: %v", ErrRecognition, err))
			t.stop()
			return
		}
	}
	for _, msg := range []string{`{"type":"Finalize"}`, `{"type":"CloseStream"}`} {
		if err := t.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.out.fail(fmt.Errorf("%w: deepgram close: %v", ErrRecognition, err))
			t.stop()
			return
		}
	}
}

func (t *deepgramTask) runReceiver() {
	defer t.stop()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closing := t.closing
			t.mu.Unlock()
			t.feedMu.Lock()
			finished := t.finished
			t.feedMu.Unlock()
			if closing || (finished && websocket.IsCloseError(err, websocket.CloseNormalClosure)) {
				t.out.final(t.snapshot(nil))
				return
			}
			t.out.fail(fmt.Errorf("%w: %v", ErrRecognition, err))
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("deepgram: bad message: %v", err)
			continue
		}

		switch msg.Type {
		case "Metadata":
			t.feedMu.Lock()
			finished := t.finished
			t.feedMu.Unlock()
			if finished {
				t.out.final(t.snapshot(nil))
				return
			}
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			if msg.IsFinal || msg.SpeechFinal {
				t.commit(alt.Words)
				t.out.partial(t.snapshot(nil))
			} else {
				t.out.partial(t.snapshot(alt.Words))
			}
		}
	}
}

func (t *deepgramTask) commit(words []deepgramWord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = append(t.committed, words...)
}

// snapshot builds the best transcript so far: committed words followed by
// the current interim words.
func (t *deepgramTask) snapshot(interim []deepgramWord) Transcription {
	t.mu.Lock()
	words := make([]deepgramWord, 0, len(t.committed)+len(interim))
	words = append(words, t.committed...)
	t.mu.Unlock()
	words = append(words, interim...)
	return transcriptionFromWords(words)
}

func transcriptionFromWords(words []deepgramWord) Transcription {
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Word
	}
	text := strings.Join(texts, " ")
	offsets := Offsets(text, texts)

	segs := make([]Segment, len(words))
	for i, w := range words {
		segs[i] = Segment{Text: w.Word, Offset: offsets[i], Start: w.Start, End: w.End}
	}
	return Transcription{Text: text, Segments: segs}
}
