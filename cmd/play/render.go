package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/session"
)

const (
	clearScreen = "\033[2J\033[H"
	home        = "\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
	clearLine   = "\033[K"
	reset       = "\033[0m"

	minWidth = 20
)

// moodColors paints the crowd meter, one ANSI color per mood.
var moodColors = [...]string{
	crowd.Idle:         "\033[38;5;244m",
	crowd.Excited:      "\033[1;33m",
	crowd.Hype:         "\033[1;35m",
	crowd.Disappointed: "\033[1;34m",
}

var qualityNames = [...]string{
	model.Miss:    "\033[1;31m    Miss\033[0m",
	model.Good:    "\033[1;32m    Good\033[0m",
	model.Perfect: "\033[1;36m Perfect\033[0m",
}

// renderer draws frames onto an ANSI terminal.
type renderer struct {
	w     io.Writer
	width int
	title string
	end   time.Duration
	// last is the most recent judgment, kept until a newer one arrives.
	last   *model.JudgmentEvent
	paused bool
}

func newRenderer(w io.Writer, width int, title string, end time.Duration) *renderer {
	return &renderer{w: w, width: max(width, minWidth), title: title, end: end}
}

func (r *renderer) init() { _, _ = io.WriteString(r.w, clearScreen+hideCursor) }

func (r *renderer) deinit() { _, _ = io.WriteString(r.w, reset+showCursor+"\n") }

// draw repaints the whole screen from f.
func (r *renderer) draw(f session.Frame) {
	if n := len(f.Recent); n > 0 {
		j := f.Recent[n-1]
		r.last = &j
	}

	var b strings.Builder
	b.WriteString(home)
	line := func(s string) {
		b.WriteString(s)
		b.WriteString(clearLine + "\n")
	}

	status := ""
	if r.paused {
		status = "  [paused]"
	}
	line(fmt.Sprintf("%s  %s / %s%s", r.title, clock(f.SongTime), clock(r.end), status))
	line(progress(r.width, f.SongTime, r.end))
	line("")
	line(fmt.Sprintf("score %9d   combo %4d   max %4d   accuracy %6.2f%%", f.Score, f.Combo, f.MaxCombo, f.Accuracy*100))
	if r.last != nil {
		line(fmt.Sprintf("%s  %+7.1fms", qualityNames[r.last.Quality], model.Ms(r.last.Delta)))
	} else {
		line("")
	}
	line("")
	line("crowd " + meter(r.width-len("crowd "), f.Crowd))
	line(fmt.Sprintf("energy %4.2f   hype %4.2f   gloom %4.2f", f.Mixer.Intensity, f.Mixer.HypeFraction, f.Mixer.Gloom))
	line("")
	line("d f j k / arrows: lanes   space: tap   tab: pause   esc: quit")

	_, _ = io.WriteString(r.w, b.String())
}

// meter draws the crowd as a bar of width cells, each mood taking its share
// of the population.
func meter(width int, a crowd.Aggregate) string {
	if width <= 0 {
		return ""
	}
	if a.Population == 0 {
		return strings.Repeat("·", width)
	}

	last := crowd.Idle
	for m := crowd.Idle; m <= crowd.Disappointed; m++ {
		if a.Histogram[m] > 0 {
			last = m
		}
	}

	var b strings.Builder
	used := 0
	for m := crowd.Idle; m <= last; m++ {
		cells := int(math.Round(a.Fraction(m) * float64(width)))
		if m == last || used+cells > width {
			cells = width - used
		}
		if cells <= 0 {
			continue
		}
		b.WriteString(moodColors[m])
		b.WriteString(strings.Repeat("█", cells))
		used += cells
	}
	b.WriteString(reset)
	return b.String()
}

// progress draws how far t is through a track of length end.
func progress(width int, t, end time.Duration) string {
	if end <= 0 {
		return strings.Repeat("─", width)
	}
	done := int(float64(width) * float64(t) / float64(end))
	done = min(max(done, 0), width)
	return strings.Repeat("━", done) + strings.Repeat("─", width-done)
}

// clock formats a song time as m:ss.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// summary formats the final result.
func summary(s replay.Summary) string {
	return fmt.Sprintf("score %d  accuracy %.2f%%  max combo %d  perfect %d  good %d  miss %d",
		s.Score, s.Accuracy*100, s.MaxCombo, s.Perfect, s.Good, s.Miss)
}
