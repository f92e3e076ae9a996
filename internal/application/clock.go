package application

import "time"

// Clock interface supaya timestamp submit bisa ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now() dalam UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
