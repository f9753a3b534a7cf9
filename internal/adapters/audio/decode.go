package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// Open decodes an .mp3 or .wav file. The caller closes the streamer, which
// also closes the file.
func Open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("%s: %w", path, ErrFormat)
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %v: %w", path, err, ErrFormat)
	}
	return s, format, nil
}
