package recognizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func collect(t *testing.T, task Task) []Update {
	t.Helper()
	var got []Update
	timeout := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-task.Updates():
			if !ok {
				return got
			}
			got = append(got, u)
		case <-timeout:
			t.Fatalf("timed out; updates so far: %+v", got)
		}
	}
}

func TestOffsets(t *testing.T) {
	tests := []struct {
		text  string
		words []string
		want  []int
	}{
		{"make it blue", []string{"make", "it", "blue"}, []int{0, 5, 8}},
		{"blue blue", []string{"blue", "blue"}, []int{0, 5}},
		{"Blue.", []string{"Blue"}, []int{0}},
		{"red", []string{"green"}, []int{0}},
		{"", nil, []int{}},
	}
	for _, tt := range tests {
		got := Offsets(tt.text, tt.words)
		if len(got) != len(tt.want) {
			t.Fatalf("Offsets(%q) = %v, want %v", tt.text, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Offsets(%q)[%d] = %d, want %d", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no keys", Config{Language: "en"}},
		{"deepgram without key", Config{Provider: "deepgram", Language: "en"}},
		{"unsupported locale", Config{Provider: "deepgram", Language: "xx-XX", DeepgramKey: "k"}},
		{"unknown provider", Config{Provider: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestNewSelectsProvider(t *testing.T) {
	r, err := New(Config{Language: "en", DeepgramKey: "dg", GroqKey: "gq"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != "deepgram" {
		t.Errorf("Name = %q, want deepgram", r.Name())
	}

	r, err = New(Config{Language: "en", GroqKey: "gq"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != "groq" || r.Locale() != "en" {
		t.Errorf("got %s/%s, want groq/en", r.Name(), r.Locale())
	}
}

func TestEmitterTerminatesOnce(t *testing.T) {
	e := newEmitter()
	e.partial(Transcription{Text: "a"})
	if !e.final(Transcription{Text: "a b"}) {
		t.Fatal("first final should win")
	}
	if e.fail(errors.New("late")) {
		t.Error("fail after final should be ignored")
	}
	e.partial(Transcription{Text: "ignored"})

	var got []Update
	for u := range e.updates {
		got = append(got, u)
	}
	if len(got) != 2 {
		t.Fatalf("got %d updates, want 2: %+v", len(got), got)
	}
	if !got[1].Final || got[1].Text != "a b" || got[1].Err != nil {
		t.Errorf("terminal update = %+v", got[1])
	}
}

func TestEmitterKeepsNewestPartial(t *testing.T) {
	e := newEmitter()
	for i := 0; i < cap(e.updates); i++ {
		e.partial(Transcription{Text: "um"})
	}
	e.partial(Transcription{Text: "um blue"})

	if n := len(e.updates); n != cap(e.updates) {
		t.Fatalf("queued %d updates, want %d", n, cap(e.updates))
	}
	var last Update
	for i := 0; i < cap(e.updates); i++ {
		last = <-e.updates
	}
	if last.Text != "um blue" {
		t.Errorf("newest queued partial = %q, want %q", last.Text, "um blue")
	}
}

func TestEmitterTerminalWithoutReader(t *testing.T) {
	e := newEmitter()
	for i := 0; i < cap(e.updates)+5; i++ {
		e.partial(Transcription{Text: "red"})
	}
	done := make(chan struct{})
	go func() {
		e.fail(errors.New("dropped"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fail blocked on a full channel with no reader")
	}

	var got []Update
	for u := range e.updates {
		got = append(got, u)
	}
	if len(got) != cap(e.updates) {
		t.Fatalf("got %d updates, want %d", len(got), cap(e.updates))
	}
	if got[len(got)-1].Err == nil {
		t.Errorf("last update = %+v, want the error", got[len(got)-1])
	}
}

func TestFakeTask(t *testing.T) {
	f := NewFake()
	task, err := f.NewTask(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ft := f.Current()
	if ft == nil {
		t.Fatal("Current() = nil")
	}

	task.Append(make([]byte, 320))
	ft.Say("make it")
	ft.Say("blue")
	task.Finish()
	task.Finish()

	got := collect(t, task)
	if len(got) != 3 {
		t.Fatalf("got %d updates, want 3", len(got))
	}
	last := got[2]
	if !last.Final || last.Text != "make it blue" {
		t.Errorf("final = %+v", last)
	}
	if n := len(last.Segments); n != 3 || last.Segments[n-1].Offset != 8 {
		t.Errorf("segments = %+v", last.Segments)
	}
	if ft.BytesAppended() != 320 {
		t.Errorf("BytesAppended = %d", ft.BytesAppended())
	}
}

func TestFakeUnavailable(t *testing.T) {
	f := NewFake()
	f.SetAvailable(errors.New("offline"))
	if err := f.Available(context.Background()); !errors.Is(err, ErrTemporarilyUnavailable) {
		t.Errorf("err = %v, want ErrTemporarilyUnavailable", err)
	}
}

func TestProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	if err := probe(context.Background(), ok.Client(), ok.URL); err != nil {
		t.Errorf("probe 404: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := probe(context.Background(), down.Client(), down.URL); !errors.Is(err, ErrTemporarilyUnavailable) {
		t.Errorf("probe 503 = %v, want ErrTemporarilyUnavailable", err)
	}

	gone := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := gone.URL
	gone.Close()
	if err := probe(context.Background(), http.DefaultClient, url); !errors.Is(err, ErrTemporarilyUnavailable) {
		t.Errorf("probe closed = %v, want ErrTemporarilyUnavailable", err)
	}
}

func deepgramServer(t *testing.T, script func(conn *websocket.Conn)) *Deepgram {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)

	d := NewDeepgram("test-key", "en")
	d.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return d
}

const (
	interimBlue = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"make it blu","words":[{"word":"make"},{"word":"it"},{"word":"blu"}]}]}}`
	finalBlue   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"make it blue","words":[{"word":"make","start":0.1,"end":0.3},{"word":"it","start":0.3,"end":0.4},{"word":"blue","start":0.4,"end":0.8}]}]}}`
)

func TestDeepgramStream(t *testing.T) {
	d := deepgramServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(interimBlue))
		conn.WriteMessage(websocket.TextMessage, []byte(finalBlue))
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && strings.Contains(string(data), "CloseStream") {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	})

	task, err := d.NewTask(context.Background())
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	task.Append(make([]byte, streamChunkBytes))

	time.Sleep(100 * time.Millisecond)
	task.Finish()

	got := collect(t, task)
	if len(got) < 2 {
		t.Fatalf("got %d updates, want at least 2: %+v", len(got), got)
	}
	last := got[len(got)-1]
	if last.Err != nil || !last.Final {
		t.Fatalf("terminal update = %+v", last)
	}
	if last.Text != "make it blue" {
		t.Errorf("final text = %q", last.Text)
	}
	segs := last.Segments
	if len(segs) != 3 || segs[2].Offset != 8 || segs[2].End != 0.8 {
		t.Errorf("segments = %+v", segs)
	}
	for _, u := range got[:len(got)-1] {
		if u.Final {
			t.Errorf("non-terminal update marked final: %+v", u)
		}
	}
}

func TestDeepgramStalledSenderDoesNotBlock(t *testing.T) {
	task := &deepgramTask{
		out:     newEmitter(),
		audioCh: make(chan []byte, 1),
		stopped: make(chan struct{}),
	}
	defer close(task.stopped)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			task.Append(make([]byte, streamChunkBytes))
		}
		task.Append(make([]byte, 10))
		task.Finish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append/Finish blocked on a stalled sender")
	}

	task.feedMu.Lock()
	defer task.feedMu.Unlock()
	if task.dropped != 3 {
		t.Errorf("dropped = %d, want 3", task.dropped)
	}
	if len(task.tail) != 10 {
		t.Errorf("tail = %d bytes, want 10", len(task.tail))
	}
}

func TestDeepgramServerDrop(t *testing.T) {
	d := deepgramServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
	})

	task, err := d.NewTask(context.Background())
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	task.Append(make([]byte, streamChunkBytes))

	got := collect(t, task)
	if len(got) == 0 {
		t.Fatal("no updates")
	}
	if last := got[len(got)-1]; !errors.Is(last.Err, ErrRecognition) {
		t.Errorf("terminal = %+v, want ErrRecognition", last)
	}
	task.Cancel()
}

func TestDeepgramDialFailure(t *testing.T) {
	d := NewDeepgram("wrong", "en")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	d.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := d.NewTask(context.Background()); !errors.Is(err, ErrTemporarilyUnavailable) {
		t.Errorf("err = %v, want ErrTemporarilyUnavailable", err)
	}
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("response_format") != "verbose_json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" turn it red","words":[{"word":"turn","start":0,"end":0.2},{"word":"it","start":0.2,"end":0.3},{"word":"red","start":0.3,"end":0.6}]}`))
	}))
	defer srv.Close()

	g := NewGroq("key", "en")
	g.apiURL = srv.URL

	task, err := g.NewTask(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	task.Append(make([]byte, 3200))
	task.Finish()

	got := collect(t, task)
	if len(got) != 1 {
		t.Fatalf("got %d updates, want 1", len(got))
	}
	u := got[0]
	if u.Err != nil || !u.Final || u.Text != "turn it red" {
		t.Fatalf("update = %+v", u)
	}
	if u.Segments[2].Offset != 8 {
		t.Errorf("last offset = %d, want 8", u.Segments[2].Offset)
	}
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	g := NewGroq("key", "")
	g.apiURL = srv.URL
	task, _ := g.NewTask(context.Background())
	task.Finish()

	got := collect(t, task)
	if len(got) != 1 || !errors.Is(got[0].Err, ErrRecognition) {
		t.Fatalf("updates = %+v, want one ErrRecognition", got)
	}
}

func TestHasCredential(t *testing.T) {
	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{}, false},
		{Config{GroqKey: "g"}, true},
		{Config{Provider: "deepgram", GroqKey: "g"}, false},
		{Config{Provider: "deepgram", DeepgramKey: "d"}, true},
		{Config{Provider: "fake"}, true},
		{Config{Provider: "other", DeepgramKey: "d"}, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.HasCredential(); got != tt.want {
			t.Errorf("%+v.HasCredential() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
