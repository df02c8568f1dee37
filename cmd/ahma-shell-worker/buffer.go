package main

import "strings"

// maxCapturedOutput caps how much stdout/stderr a single command can
// accumulate before further writes are silently dropped, so a runaway
// command (e.g. a build tool stuck in a logging loop) can't exhaust the
// worker's memory.
const maxCapturedOutput = 10 * 1024 * 1024

// limitedBuffer is an io.Writer that stops accepting bytes once it has
// captured maxCapturedOutput of them.
type limitedBuffer struct {
	b   strings.Builder
	cap int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.cap == 0 {
		l.cap = maxCapturedOutput
	}
	remaining := l.cap - l.b.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		l.b.Write(p[:remaining])
		return len(p), nil
	}
	l.b.Write(p)
	return len(p), nil
}

func (l *limitedBuffer) String() string { return l.b.String() }
