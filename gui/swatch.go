//go:build gui

package gui

import (
	"image/color"
	"math"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

const (
	swatchWidth  = 320
	swatchHeight = 200
	ringWidth    = 6
)

var (
	ringIdle      = color.RGBA{128, 128, 128, 255}
	ringRecording = color.RGBA{255, 0, 0, 255}
)

// SwatchWidget is the colour panel. Its border doubles as the recording
// indicator and pulses while capture is live.
type SwatchWidget struct {
	widget.BaseWidget
	mu        sync.Mutex
	frame     int
	fill      color.RGBA
	recording bool
	stopCh    chan struct{}
}

func NewSwatchWidget(fill color.RGBA) *SwatchWidget {
	s := &SwatchWidget{fill: fill, stopCh: make(chan struct{})}
	s.ExtendBaseWidget(s)
	go s.animate()
	return s
}

func (s *SwatchWidget) SetFill(c color.RGBA) {
	s.mu.Lock()
	s.fill = c
	s.mu.Unlock()
}

func (s *SwatchWidget) SetRecording(r bool) {
	s.mu.Lock()
	s.recording = r
	s.mu.Unlock()
}

func (s *SwatchWidget) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *SwatchWidget) animate() {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame++
			s.mu.Unlock()
			fyne.Do(func() {
				s.Refresh()
			})
		}
	}
}

func (s *SwatchWidget) MinSize() fyne.Size {
	return fyne.NewSize(swatchWidth, swatchHeight)
}

func (s *SwatchWidget) CreateRenderer() fyne.WidgetRenderer {
	panel := canvas.NewRectangle(s.fill)
	panel.StrokeWidth = ringWidth
	panel.StrokeColor = ringIdle
	panel.CornerRadius = 8
	return &swatchRenderer{swatch: s, panel: panel}
}

type swatchRenderer struct {
	swatch *SwatchWidget
	panel  *canvas.Rectangle
}

func (r *swatchRenderer) Layout(size fyne.Size) {
	r.panel.Move(fyne.NewPos(0, 0))
	r.panel.Resize(size)
}

func (r *swatchRenderer) MinSize() fyne.Size {
	return r.swatch.MinSize()
}

func (r *swatchRenderer) Refresh() {
	r.swatch.mu.Lock()
	frame := r.swatch.frame
	fill := r.swatch.fill
	recording := r.swatch.recording
	r.swatch.mu.Unlock()

	r.panel.FillColor = fill
	r.panel.StrokeColor = ringColor(frame, recording)
	r.panel.Refresh()
}

// ringColor is solid gray when idle and a slow red pulse while recording.
func ringColor(frame int, recording bool) color.RGBA {
	if !recording {
		return ringIdle
	}
	pulse := 0.75 + math.Sin(float64(frame)*0.15)*0.25
	c := ringRecording
	c.R = uint8(float64(c.R) * pulse)
	return c
}

func (r *swatchRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.panel}
}

func (r *swatchRenderer) Destroy() {
	r.swatch.Stop()
}
