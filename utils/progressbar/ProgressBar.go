// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// Bar is a progress bar that is redrawn in place on each Increment
// call. It is not safe for concurrent use.
type Bar struct {
	width     float64
	max       float64
	current   float64
	note      string
	startTime time.Time
	bar       strings.Builder
	closed    bool
}

// New returns a new progress Bar that is width characters wide and
// reaches 100% after max Increment calls
func New(width, max int) *Bar {
	return &Bar{
		width:     float64(width),
		max:       float64(max),
		startTime: time.Now(),
	}
}

// Increment advances the progress counter by one and redraws the bar.
// The note is displayed beside the bar until the next Increment call.
func (b *Bar) Increment(note string) {
	if b.closed {
		panic("increment: increment on closed progress bar")
	}
	if b.current < b.max {
		b.current++
	}
	b.note = note
	b.draw()
}

// Close finalizes the progress bar, jumping to the next terminal line
func (b *Bar) Close() {
	if b.closed {
		panic("close: close on closed progress bar")
	}
	b.closed = true
	fmt.Println()
}

func (b *Bar) draw() {
	b.bar.Reset()
	b.bar.Write([]byte("|"))

	progress := b.current / b.max * b.width
	for i := 0.0; i < progress; i++ {
		b.bar.Write([]byte("█"))
	}
	for i := progress; i < b.width; i++ {
		b.bar.Write([]byte(" "))
	}
	b.bar.Write([]byte(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
		b.current/b.max*100, "%",
		time.Since(b.startTime).Truncate(time.Second))))
	if b.note != "" {
		b.bar.Write([]byte(" " + b.note))
	}

	fmt.Printf("\n\033[1A\033[K%v", b.bar.String())
}
