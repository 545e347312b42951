package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("UTTER_LOG_PATH", "/tmp/utter-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/utter-env-log" {
		t.Errorf("got %q, want /tmp/utter-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("UTTER_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "utter") {
		t.Errorf("default dir %q does not mention utter", got)
	}
}

func TestInitCreatesFile(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Info("hello")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, diagFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log missing message: %q", data)
	}
}

func TestStructuredEvents(t *testing.T) {
	t.Cleanup(Close)
	var buf bytes.Buffer
	InitWriter(&buf)

	Transition("idle", "starting", 3)
	Match("blue", "blue", true)
	Auth("authorized")

	out := buf.String()
	for _, want := range []string{"from=idle", "to=starting", "session=3", "color=blue", "status=authorized"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	Close()
	Info("dropped")
	Errorf("dropped %d", 1)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
