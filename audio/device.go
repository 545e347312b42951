package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errSelectionCancelled = errors.New("device selection cancelled")

// picker is the state of the interactive device list.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓ or 1-9, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		label := d.Name
		if i < 9 {
			label = fmt.Sprintf("%d. %s", i+1, d.Name)
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s\x1b[0m\r\n", label)
		} else {
			fmt.Fprintf(w, "    %s\r\n", label)
		}
	}
}

func (p *picker) move(delta int) {
	p.cursor = max(0, min(len(p.devices)-1, p.cursor+delta))
}

// key applies one keypress read from a raw terminal. It returns the chosen
// device once the selection is confirmed.
func (p *picker) key(buf []byte) (*DeviceInfo, error) {
	if len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' {
		switch buf[2] {
		case 'A':
			p.move(-1)
		case 'B':
			p.move(1)
		}
		return nil, nil
	}
	if len(buf) != 1 {
		return nil, nil
	}
	switch c := buf[0]; {
	case c == '\r' || c == '\n':
		return &p.devices[p.cursor], nil
	case c == 3: // Ctrl+C
		return nil, errSelectionCancelled
	case c == 'j':
		p.move(1)
	case c == 'k':
		p.move(-1)
	case c >= '1' && c <= '9' && int(c-'1') < len(p.devices):
		p.cursor = int(c - '1')
		return &p.devices[p.cursor], nil
	}
	return nil, nil
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices}
	p.render(os.Stdout)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		dev, err := p.key(buf[:n])
		if dev != nil || err != nil {
			fmt.Print("\r\n")
			return dev, err
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		p.render(os.Stdout)
	}
}
