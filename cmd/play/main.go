// Command play runs one live session of a track in the terminal: it plays
// the song and the crowd, reads lane keys, shows the crowd and the score,
// and writes the replay log when the track ends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/okian/ovation/internal/adapters/audio"
	"github.com/okian/ovation/internal/adapters/beatmapfile"
	"github.com/okian/ovation/internal/adapters/http/client"
	"github.com/okian/ovation/internal/config"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/input"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/logger"
)

const (
	keyBuffer      = 128
	defaultWidth   = 80
	submitTimeout  = 10 * time.Second
	logPermission  = 0o600
	defaultRate    = beep.SampleRate(44100)
	speakerLatency = time.Second / 30
)

var (
	app = kingpin.New("play", "Play a track in the terminal.")

	chartPath   = app.Arg("chart", "Beat map (.yaml, .yml or .sm)").Required().ExistingFile()
	audioPath   = app.Flag("audio", "Song audio (.mp3 or .wav)").Short('a').ExistingFile()
	crowdDir    = app.Flag("crowd", "Directory with crowd layers (<layer>.wav) and samples/<name>.wav").Short('c').ExistingDir()
	difficulty  = app.Flag("difficulty", "Chart picked from .sm files").Short('d').String()
	player      = app.Flag("player", "Player name for submission").Short('p').Default(os.Getenv("USER")).String()
	seed        = app.Flag("seed", "Crowd seed; zero picks one").Uint64()
	out         = app.Flag("out", "Replay log path (default: <track>-<time>.replay)").Short('o').String()
	submitURL   = app.Flag("submit", "Submit the run to the ovationd at this URL").String()
	framePeriod = app.Flag("frame-period", "Render frame period").Default("16ms").Duration()
	logPath     = app.Flag("log", "Diagnostics log file").Default("play.log").String()
	verbose     = app.Flag("verbose", "Debug diagnostics").Short('v').Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "play:", err)
		os.Exit(1)
	}
}

func run() error {
	// The terminal belongs to the game; diagnostics go to a file.
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logPermission)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	l := logger.New(logFile, level).Named("play")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	diff := *difficulty
	if diff == "" {
		diff = cfg.Service.Difficulty
	}

	beats, err := loadChart(*chartPath, diff)
	if err != nil {
		return err
	}

	engine, closeAudio, err := setupAudio(cfg, l)
	if err != nil {
		return err
	}
	defer closeAudio()

	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	sess, err := session.New(session.Config{
		Beats:  beats,
		Seed:   s,
		Mode:   session.Live,
		Rules:  cfg.Rules(),
		Keymap: input.DefaultKeymap(),
	},
		session.WithAudio(engine),
		session.WithLayerPlayer(engine),
		session.WithSampleTrigger(engine),
		session.WithLogger(l),
	)
	if err != nil {
		return err
	}
	defer sess.Dispose()

	keys, err := keyboard.GetKeys(keyBuffer)
	if err != nil {
		return fmt.Errorf("unable to open keyboard: %w", err)
	}
	defer func() {
		if err := keyboard.Close(); err != nil {
			l.Warn(ctx, "unable to close keyboard", logger.Error(err))
		}
	}()

	width := defaultWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	r := newRenderer(os.Stdout, width, beats.Track().Title, sess.End())
	r.init()

	speaker.Play(engine)
	if err := sess.Start(); err != nil {
		r.deinit()
		return err
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx, cfg.Timing.Step) }()

	quit := play(ctx, sess, engine, r, keys, done, l)
	r.deinit()

	sum, runLog, err := sess.Finish()
	if err != nil {
		return err
	}
	fmt.Println(summary(sum))
	if quit {
		fmt.Println("run abandoned; no replay written")
		return nil
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("%s-%s.replay", beats.Track().ID, time.Now().Format("20060102-150405"))
	}
	if err := writeLog(path, runLog); err != nil {
		return err
	}
	fmt.Println("replay written to", path)

	if *submitURL != "" {
		return submit(ctx, *submitURL, *player, runLog, sum)
	}
	return nil
}

// play renders frames and routes keys until the session ends. It reports
// whether the player quit early.
func play(ctx context.Context, sess *session.Session, engine *audio.Engine, r *renderer,
	keys <-chan keyboard.KeyEvent, done <-chan error, l logger.Logger,
) bool {
	ticker := time.NewTicker(*framePeriod)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				l.Error(ctx, "session stopped", logger.Error(err))
			}
			r.draw(sess.Frame())
			return false

		case ev := <-keys:
			if ev.Err != nil {
				l.Warn(ctx, "keyboard", logger.Error(ev.Err))
				continue
			}
			switch controlFor(ev) {
			case controlQuit:
				return true
			case controlPause:
				r.paused = !r.paused
				togglePause(ctx, sess, engine, r.paused, l)
				continue
			}
			if r.paused {
				continue
			}
			name, ok := physical(ev)
			if !ok {
				continue
			}
			if err := sess.Submit(input.Raw{Physical: name, WallClock: time.Now(), Device: input.Keyboard}); err != nil {
				l.Debug(ctx, "input dropped", logger.String("key", name), logger.Error(err))
			}

		case <-ticker.C:
			r.draw(sess.Frame())
		}
	}
}

func togglePause(ctx context.Context, sess *session.Session, engine *audio.Engine, paused bool, l logger.Logger) {
	var err error
	if paused {
		err = sess.Pause()
		engine.SetPaused(true)
	} else {
		engine.SetPaused(false)
		err = sess.Resume()
	}
	if err != nil {
		l.Warn(ctx, "pause", logger.Bool("paused", paused), logger.Error(err))
	}
}

func loadChart(path, difficulty string) (*beatmap.BeatMap, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sm":
		return beatmapfile.LoadSM(path, difficulty)
	default:
		return beatmapfile.LoadYAML(path)
	}
}

// setupAudio opens the song and the crowd sounds and starts the speaker.
// Without a song the engine plays the crowd over silence, which still
// drives the clock.
func setupAudio(cfg *config.Config, l logger.Logger) (*audio.Engine, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	format := beep.Format{SampleRate: defaultRate, NumChannels: 2, Precision: 2}
	var song beep.StreamSeekCloser
	if *audioPath != "" {
		s, f, err := audio.Open(*audioPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = s.Close() })
		song, format = s, f
	}

	engine := audio.New(format, audio.WithLogger(l))
	if song != nil {
		engine.SetSong(song, format)
	}

	if *crowdDir != "" {
		for _, layer := range cfg.Mixer.Layers {
			s, f, err := openSound(filepath.Join(*crowdDir, layer.ID))
			if err != nil {
				l.Info(context.Background(), "no sound for crowd layer", logger.String("layer", layer.ID))
				continue
			}
			closers = append(closers, func() { _ = s.Close() })
			if err := engine.AddLayer(layer.ID, s, f); err != nil {
				closeAll()
				return nil, nil, err
			}
		}
		if s, f, err := openSound(filepath.Join(*crowdDir, "samples", session.ChantSample)); err == nil {
			engine.AddSample(session.ChantSample, s, f)
			_ = s.Close()
		}
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerLatency)); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("init speaker: %w", err)
	}
	closers = append(closers, speaker.Clear)
	return engine, closeAll, nil
}

// openSound opens base.wav or base.mp3.
func openSound(base string) (beep.StreamSeekCloser, beep.Format, error) {
	s, f, err := audio.Open(base + ".wav")
	if err == nil {
		return s, f, nil
	}
	return audio.Open(base + ".mp3")
}

func writeLog(path string, l replay.Log) error {
	data, err := replay.Encode(l)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, logPermission); err != nil {
		return fmt.Errorf("write replay: %w", err)
	}
	return nil
}

func submit(ctx context.Context, url, player string, l replay.Log, sum replay.Summary) error {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	res, err := client.New(url, submitTimeout, client.WithCBOR(true)).Submit(ctx, client.Request{
		Player:  player,
		Track:   l.Track,
		Log:     l,
		Claimed: sum,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Printf("submitted as %s (%s)\n", res.ID, res.Status)
	return nil
}
