package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"utter/audio"
	"utter/auth"
	"utter/beep"
	"utter/config"
	"utter/controller"
	"utter/doctor"
	"utter/encoder"
	"utter/hotkey"
	"utter/log"
	"utter/recognizer"
	"utter/shutdown"
)

var version = "dev"

const toggleDebounce = 250 * time.Millisecond

// frontEnd is an interactive surface the controller draws on. Run blocks
// until the user quits or ctx is done.
type frontEnd interface {
	controller.View
	OnToggle(fn func())
	Run(ctx context.Context) error
}

type options struct {
	configPath string
	provider   string
	lang       string
	device     string
	setup      bool
	logPath    string
	hotkey     string
	noBeep     bool
	test       bool
	testAuth   string
	doctor     bool
	speak      bool
	profile    string
	version    bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.provider, "provider", "", "Recognizer: deepgram, groq or fake (default: first with an API key)")
	flag.StringVar(&o.lang, "lang", "", "Recognition language (default en)")
	flag.StringVar(&o.device, "device", "", "Use named microphone device")
	flag.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	flag.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&o.hotkey, "hotkey", "", "Global toggle chord (default ctrl+shift+space)")
	flag.BoolVar(&o.noBeep, "nobeep", false, "Disable audible cues")
	flag.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven); optional WAV argument")
	flag.StringVar(&o.testAuth, "auth", "authorized", "Test mode: authorization outcome")
	flag.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	flag.BoolVar(&o.speak, "speak", false, "Doctor: include a spoken colour round trip")
	flag.StringVar(&o.profile, "profile", "", "Enable pprof profiling server (e.g., localhost:6060)")
	flag.BoolVar(&o.version, "version", false, "Print version and exit")
	flag.Bool("gui", false, "Run with a desktop window (requires a gui build)")
	flag.Parse()
	return o
}

// settings merges the config file with flags; flags win.
func settings(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.provider != "" {
		cfg.Recognizer.Provider = o.provider
	}
	if o.lang != "" {
		cfg.Recognizer.Language = o.lang
	}
	if o.device != "" {
		cfg.Audio.Device = o.device
	}
	if o.logPath != "" {
		cfg.LogPath = o.logPath
	}
	if o.hotkey != "" {
		cfg.Hotkey = o.hotkey
	}
	if o.noBeep {
		off := false
		cfg.Beep = &off
	}
	return cfg, cfg.Validate()
}

func recognizerConfig(cfg *config.Config) recognizer.Config {
	return recognizer.Config{
		Provider:    cfg.Recognizer.Provider,
		Language:    cfg.Recognizer.Language,
		DeepgramKey: cfg.Recognizer.DeepgramKey,
		GroqKey:     cfg.Recognizer.GroqKey,
	}
}

// recognizerFactory builds the recognizer once and then hands out the same
// instance, or the same construction error, on every start.
func recognizerFactory(rc recognizer.Config) func() (recognizer.Recognizer, error) {
	var once sync.Once
	var rec recognizer.Recognizer
	var err error
	return func() (recognizer.Recognizer, error) {
		once.Do(func() { rec, err = recognizer.New(rc) })
		return rec, err
	}
}

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	log.Close()
	os.Exit(1)
}

func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	setCrashOutput(dir)
}

func setCrashOutput(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func run(front frontEnd) {
	o := parseFlags()

	if o.version {
		fmt.Printf("utter %s\n", version)
		os.Exit(0)
	}

	cfg, err := settings(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	setCrashOutput(log.Dir())

	if o.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", o.profile)
			if err := http.ListenAndServe(o.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if !cfg.BeepEnabled() {
		beep.Disable()
	}
	binding, err := hotkey.Parse(cfg.Hotkey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rc := recognizerConfig(cfg)
	newRecognizer := recognizerFactory(rc)

	if o.test {
		if rc.Provider == "" {
			rc.Provider = "fake"
			newRecognizer = recognizerFactory(rc)
		}
		wav := ""
		if args := flag.Args(); len(args) > 0 {
			wav = args[0]
		}
		os.Exit(runTestMode(testOptions{
			wav:        wav,
			auth:       o.testAuth,
			recognizer: newRecognizer,
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	actx := guiAudioCtx
	if actx == nil {
		actx, err = audio.NewContext()
		if err != nil {
			fatalf("initializing audio: %v", err)
		}
	}
	defer actx.Close()

	device := selectDevice(actx, cfg.Audio.Device, o.setup)

	authorizer := &auth.System{
		HasCredential: rc.HasCredential(),
		Audio:         actx,
		Timeout:       cfg.Recognizer.Timeout,
	}

	if o.doctor {
		doctor.HandleInterrupt()
		os.Exit(doctor.Run(doctor.Deps{
			Authorizer: authorizer,
			Recognizer: newRecognizer,
			Audio:      actx,
			Device:     device,
			Hotkey:     hotkey.New(binding),
			Binding:    binding,
			Out:        os.Stdout,
			Speak:      o.speak,
			Timeout:    2 * cfg.Recognizer.Timeout,
		}))
	}

	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       cfg.Audio.Gain,
	})
	if err != nil {
		fatalf("initializing capture device: %v", err)
	}
	defer capture.Close()

	providerLabel := rc.Provider
	if rec, err := newRecognizer(); err == nil {
		providerLabel = rec.Name()
	}
	log.SessionStart(providerLabel, rc.Language, capture.DeviceName())

	if front == nil {
		front = newTUI(tuiInfo{
			provider: providerLabel,
			language: rc.Language,
			device:   capture.DeviceName(),
			binding:  binding.String(),
		})
	}

	ctrl := controller.New(controller.Config{
		Authorizer:          authorizer,
		Recognizer:          newRecognizer,
		Capture:             capture,
		View:                front,
		AvailabilityTimeout: cfg.Recognizer.Timeout,
	})
	front.OnToggle(ctrl.Toggle)

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	if cfg.BeepEnabled() {
		go beep.Init()
	}

	hk := hotkey.New(binding)
	if err := hk.Register(); err != nil {
		log.Warnf("hotkey register error: %v", err)
	} else {
		defer hk.Unregister()
		go func() {
			for range hotkey.Toggles(ctx, hk, toggleDebounce) {
				log.Info("hotkey_toggle")
				ctrl.Toggle()
			}
		}()
	}

	go ctrl.Run(ctx)

	if err := front.Run(ctx); err != nil {
		log.Errorf("front end error: %v", err)
	}
	cancel()
	<-ctrl.Done()
	log.SessionEnd(ctrl.Snapshot().Recordings)
}

func selectDevice(actx audio.Context, name string, setup bool) *audio.DeviceInfo {
	if setup && name == "" {
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			return nil
		}
		return dev
	}
	if name == "" {
		return nil
	}
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return nil
	}
	if dev == nil {
		log.Warnf("device not found: %s", name)
		fmt.Printf("Warning: device %q not found, using system default\n", name)
	}
	return dev
}
