package beatmapfile

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/input"
	"github.com/okian/ovation/internal/domain/model"
)

// Only four-lane charts are imported.
const singleChart = "dance-single"

var singleLanes = [4]model.Action{input.ActionLeft, input.ActionDown, input.ActionUp, input.ActionRight}

// BPM is a tempo change starting at a beat.
type BPM struct {
	Beat  float64
	Value float64
}

// Chart is one difficulty of a StepMania song.
type Chart struct {
	Type       string
	Difficulty string
	Meter      string
	// Measures hold the note rows of each measure; a measure is four beats
	// split evenly across its rows.
	Measures [][]string
}

// SMFile is a parsed StepMania .sm song.
type SMFile struct {
	Title string
	// Offset is the song time of beat zero, negated as in the file.
	Offset float64
	BPMs   []BPM
	Charts []Chart
}

// ParseSM parses a StepMania song.
func ParseSM(r io.Reader) (*SMFile, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	f := &SMFile{}
	text := b.String()
	for {
		start := strings.IndexByte(text, '#')
		if start < 0 {
			break
		}
		text = text[start+1:]
		end := strings.IndexByte(text, ';')
		if end < 0 {
			end = len(text)
		}
		tag := text[:end]
		text = text[min(end+1, len(text)):]

		key, value, ok := strings.Cut(tag, ":")
		if !ok {
			continue
		}
		if err := f.set(strings.ToUpper(strings.TrimSpace(key)), value); err != nil {
			return nil, err
		}
	}

	if len(f.BPMs) == 0 {
		return nil, fmt.Errorf("no BPMS: %w", ErrFormat)
	}
	sort.SliceStable(f.BPMs, func(i, j int) bool { return f.BPMs[i].Beat < f.BPMs[j].Beat })
	if f.BPMs[0].Beat != 0 {
		return nil, fmt.Errorf("first BPM starts at beat %v: %w", f.BPMs[0].Beat, ErrFormat)
	}
	return f, nil
}

func (f *SMFile) set(key, value string) error {
	switch key {
	case "TITLE":
		f.Title = strings.TrimSpace(value)
	case "OFFSET":
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("OFFSET %q: %w", value, ErrFormat)
		}
		f.Offset = v
	case "BPMS":
		for _, pair := range strings.Split(value, ",") {
			pair = strings.Join(strings.Fields(pair), "")
			if pair == "" {
				continue
			}
			beat, bpm, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("BPMS entry %q: %w", pair, ErrFormat)
			}
			sb, err := strconv.ParseFloat(beat, 64)
			if err != nil {
				return fmt.Errorf("BPMS beat %q: %w", beat, ErrFormat)
			}
			v, err := strconv.ParseFloat(bpm, 64)
			if err != nil || v <= 0 {
				return fmt.Errorf("BPMS value %q: %w", bpm, ErrFormat)
			}
			f.BPMs = append(f.BPMs, BPM{Beat: sb, Value: v})
		}
	case "NOTES":
		parts := strings.SplitN(value, ":", 6)
		if len(parts) != 6 {
			return fmt.Errorf("NOTES has %d fields: %w", len(parts), ErrFormat)
		}
		c := Chart{
			Type:       strings.TrimSpace(parts[0]),
			Difficulty: strings.TrimSpace(parts[2]),
			Meter:      strings.TrimSpace(parts[3]),
		}
		for _, block := range strings.Split(parts[5], ",") {
			var rows []string
			for _, row := range strings.Fields(block) {
				rows = append(rows, row)
			}
			if len(rows) > 0 {
				c.Measures = append(c.Measures, rows)
			}
		}
		f.Charts = append(f.Charts, c)
	}
	return nil
}

// timeAt converts a beat position to seconds, integrating over tempo
// changes.
func (f *SMFile) timeAt(beat float64) float64 {
	t := -f.Offset
	for i, b := range f.BPMs {
		end := beat
		if i+1 < len(f.BPMs) && f.BPMs[i+1].Beat < beat {
			end = f.BPMs[i+1].Beat
		}
		if end <= b.Beat {
			break
		}
		t += (end - b.Beat) * 60 / b.Value
	}
	return t
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Chart returns the four-lane chart with the given difficulty, or the first
// four-lane chart when difficulty is empty.
func (f *SMFile) Chart(difficulty string) (Chart, error) {
	for _, c := range f.Charts {
		if c.Type != singleChart {
			continue
		}
		if difficulty == "" || strings.EqualFold(c.Difficulty, difficulty) {
			return c, nil
		}
	}
	return Chart{}, fmt.Errorf("no %s chart %q: %w", singleChart, difficulty, ErrFormat)
}

// BeatMap builds the beat map of one chart. Notes on whole beats become
// Beat events, the rest Note events; both keep their lane. Mines, hold
// tails and rows before song start are skipped.
func (f *SMFile) BeatMap(id model.TrackID, difficulty string) (*beatmap.BeatMap, error) {
	c, err := f.Chart(difficulty)
	if err != nil {
		return nil, err
	}

	var events []model.BeatMapEvent
	for m, rows := range c.Measures {
		n := len(rows)
		for r, row := range rows {
			beat := 4*float64(m) + 4*float64(r)/float64(n)
			at := seconds(f.timeAt(beat))
			if at < 0 {
				continue
			}
			kind := model.Note
			if (4*r)%n == 0 {
				kind = model.Beat
			}
			for lane, ch := range row {
				if lane >= len(singleLanes) {
					break
				}
				switch ch {
				case '1', '2', '4':
					events = append(events, model.BeatMapEvent{At: at, Kind: kind, Lane: singleLanes[lane]})
				}
			}
		}
	}

	title := f.Title
	if c.Difficulty != "" {
		title = fmt.Sprintf("%s (%s)", f.Title, c.Difficulty)
	}
	track := beatmap.Track{
		ID:     id,
		Title:  title,
		Length: seconds(f.timeAt(4 * float64(len(c.Measures)))),
	}
	return beatmap.New(track, events)
}

// LoadSM imports one chart of a .sm file. The track ID is the file name
// without extension.
func LoadSM(path, difficulty string) (*beatmap.BeatMap, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := ParseSM(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	id := model.TrackID(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	m, err := f.BeatMap(id, difficulty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
