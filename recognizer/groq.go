package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"utter/encoder"
)

const (
	groqHost   = "https://api.groq.com"
	groqAPIURL = "https://api.groq.com/openai/v1/audio/transcriptions"
)

// Groq transcribes the whole utterance once the task is finished, so a task
// delivers no partials, only the final transcription.
type Groq struct {
	apiKey string
	lang   string
	client *http.Client
	apiURL string
}

func NewGroq(apiKey, lang string) *Groq {
	return &Groq{
		apiKey: apiKey,
		lang:   lang,
		client: newHTTPClient(),
		apiURL: groqAPIURL,
	}
}

func (g *Groq) Name() string   { return "groq" }
func (g *Groq) Locale() string { return g.lang }

func (g *Groq) Available(ctx context.Context) error {
	return probe(ctx, g.client, groqHost)
}

func (g *Groq) NewTask(_ context.Context) (Task, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &groqTask{g: g, out: newEmitter(), ctx: ctx, cancel: cancel}, nil
}

type groqResponse struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

type groqTask struct {
	g      *Groq
	out    *emitter
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pcm      []byte
	finished bool
}

func (t *groqTask) Append(pcm []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.pcm = append(t.pcm, pcm...)
}

func (t *groqTask) Updates() <-chan Update { return t.out.updates }

func (t *groqTask) Finish() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	pcm := t.pcm
	t.pcm = nil
	t.mu.Unlock()

	go func() {
		tr, err := t.g.transcribe(t.ctx, pcm)
		if err != nil {
			t.out.fail(fmt.Errorf("%w: %v", ErrRecognition, err))
			return
		}
		t.out.final(tr)
	}()
}

func (t *groqTask) Cancel() {
	t.mu.Lock()
	t.finished = true
	t.pcm = nil
	t.mu.Unlock()
	t.cancel()
	t.out.fail(context.Canceled)
}

func (g *Groq) transcribe(ctx context.Context, pcm []byte) (Transcription, error) {
	enc, err := encoder.NewFlac()
	if err != nil {
		return Transcription{}, err
	}
	if err := encoder.EncodeAll(enc, encoder.Samples(pcm)); err != nil {
		return Transcription{}, fmt.Errorf("encoding flac: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return Transcription{}, err
	}
	if _, err := part.Write(enc.Bytes()); err != nil {
		return Transcription{}, err
	}
	writer.WriteField("model", "whisper-large-v3-turbo")
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("timestamp_granularities[]", "word")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return Transcription{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcription{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Transcription{}, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(respBody))
	}

	var gResp groqResponse
	if err := json.Unmarshal(respBody, &gResp); err != nil {
		return Transcription{}, fmt.Errorf("groq response parse error: %w", err)
	}

	text := strings.TrimSpace(gResp.Text)
	words := make([]string, len(gResp.Words))
	for i, w := range gResp.Words {
		words[i] = strings.TrimSpace(w.Word)
	}
	offsets := Offsets(text, words)
	segs := make([]Segment, len(words))
	for i, w := range gResp.Words {
		segs[i] = Segment{Text: words[i], Offset: offsets[i], Start: w.Start, End: w.End}
	}
	return Transcription{Text: text, Segments: segs}, nil
}
