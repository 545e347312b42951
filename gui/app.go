//go:build gui

package gui

import (
	"context"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/go-gl/glfw/v3.3/glfw"

	"utter/palette"
)

const (
	labelRecord = "Record"
	labelStop   = "Stop"
)

// App is the desktop window: a record button, the transcript label and the
// colour swatch. It satisfies the controller's view; every call is
// marshalled onto the Fyne goroutine.
type App struct {
	fyneApp fyne.App
	window  fyne.Window
	swatch  *SwatchWidget
	button  *widget.Button
	label   *widget.Label

	onReady func()

	mu       sync.Mutex
	onToggle func()

	quit     chan struct{}
	quitOnce sync.Once
}

func NewApp(onReady func()) *App {
	return &App{onReady: onReady, quit: make(chan struct{})}
}

// Run owns the calling (main) thread until the window is closed or Quit is
// called. onReady runs on its own goroutine once the widgets exist.
func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.utter.gui")
	a.fyneApp.Settings().SetTheme(&darkTheme{})
	icon := appIcon()
	a.fyneApp.SetIcon(icon)

	if desk, ok := a.fyneApp.(desktop.App); ok {
		menu := fyne.NewMenu("utter",
			fyne.NewMenuItem("Toggle Recording", a.toggle),
			fyne.NewMenuItem("Quit", func() {
				a.fyneApp.Quit()
			}),
		)
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(icon)
	}

	a.window = a.fyneApp.NewWindow("utter")
	a.window.SetMaster()

	a.swatch = NewSwatchWidget(palette.Initial.RGBA)
	a.label = widget.NewLabel("")
	a.label.Wrapping = fyne.TextWrapWord
	a.label.Alignment = fyne.TextAlignCenter
	a.button = widget.NewButton(labelRecord, a.toggle)
	a.button.Importance = widget.LowImportance
	a.button.Disable()

	a.window.SetContent(container.NewBorder(
		nil,
		container.NewVBox(a.label, a.button),
		nil, nil,
		a.swatch,
	))
	a.window.Resize(fyne.NewSize(swatchWidth+40, swatchHeight+140))
	a.window.CenterOnScreen()
	a.window.Show()

	go a.onReady()

	a.fyneApp.Run()
	a.quitOnce.Do(func() { close(a.quit) })
	a.swatch.Stop()
	return nil
}

// Run blocks until the window goes away or ctx is done.
func (a *App) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		a.Quit()
	case <-a.quit:
	}
	return nil
}

func (a *App) OnToggle(fn func()) {
	a.mu.Lock()
	a.onToggle = fn
	a.mu.Unlock()
}

func (a *App) toggle() {
	a.mu.Lock()
	fn := a.onToggle
	a.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(func() { a.fyneApp.Quit() })
	}
}

func (a *App) SetControlEnabled(enabled bool) {
	fyne.Do(func() {
		if enabled {
			a.button.Enable()
		} else {
			a.button.Disable()
		}
	})
}

func (a *App) SetRecording(recording bool) {
	a.swatch.SetRecording(recording)
	fyne.Do(func() {
		if recording {
			a.button.SetText(labelStop)
			a.button.Importance = widget.DangerImportance
		} else {
			a.button.SetText(labelRecord)
			a.button.Importance = widget.LowImportance
		}
		a.button.Refresh()
		a.raise(recording)
	})
}

func (a *App) SetText(text string) {
	fyne.Do(func() {
		a.label.SetText(text)
	})
}

func (a *App) SetColor(c palette.Color) {
	a.swatch.SetFill(c.RGBA)
}

func (a *App) Alert(title, message string) {
	fyne.Do(func() {
		dialog.ShowInformation(title, message, a.window)
	})
}

// raise keeps the window above others while recording so the swatch stays
// visible when the hotkey is used from another application.
func (a *App) raise(on bool) {
	glfwWin := glfw.GetCurrentContext()
	if glfwWin == nil {
		return
	}
	if on {
		glfwWin.SetAttrib(glfw.Floating, glfw.True)
	} else {
		glfwWin.SetAttrib(glfw.Floating, glfw.False)
	}
}
