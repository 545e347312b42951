// Package auth decides once per process whether speech recognition may be
// used, and reports the outcome asynchronously.
package auth

import (
	"context"
	"fmt"
	"time"

	"utter/audio"
)

type Status int

const (
	NotDetermined Status = iota
	Authorized
	Denied
	Restricted
)

func (s Status) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// Message is the status text shown while the record control is disabled.
func (s Status) Message() string {
	switch s {
	case Authorized:
		return ""
	case Denied:
		return "User denied access to speech recognition"
	case Restricted:
		return "Speech recognition restricted on this device"
	default:
		return "Speech recognition not yet authorized"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{NotDetermined, Authorized, Denied, Restricted} {
		if st.String() == s {
			return st, nil
		}
	}
	return NotDetermined, fmt.Errorf("unknown authorization status %q", s)
}

// Authorizer resolves authorization exactly once per call. fn runs on the
// authorizer's own goroutine, never on the caller's.
type Authorizer interface {
	RequestAuthorization(ctx context.Context, fn func(Status))
}

// Static always resolves to the same status.
type Static Status

func (s Static) RequestAuthorization(_ context.Context, fn func(Status)) {
	go fn(Status(s))
}

const defaultTimeout = 5 * time.Second

// System grants access when a recognizer credential is configured and at
// least one microphone can be enumerated.
type System struct {
	HasCredential bool
	Audio         audio.Context
	Timeout       time.Duration
}

func (s *System) RequestAuthorization(ctx context.Context, fn func(Status)) {
	go func() { fn(s.resolve(ctx)) }()
}

func (s *System) resolve(ctx context.Context) Status {
	if !s.HasCredential {
		return Denied
	}
	if s.Audio == nil {
		return Restricted
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		devices, err := s.Audio.Devices()
		ch <- result{len(devices), err}
	}()

	select {
	case <-ctx.Done():
		return NotDetermined
	case r := <-ch:
		switch {
		case r.err != nil:
			return NotDetermined
		case r.n == 0:
			return Restricted
		default:
			return Authorized
		}
	}
}
