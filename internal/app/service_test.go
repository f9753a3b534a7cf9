package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	service "github.com/okian/ovation/internal/app"
	"github.com/okian/ovation/internal/adapters/beatmapfile"
	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/session"
	. "github.com/smartystreets/goconvey/convey"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func catalog() *beatmapfile.Catalog {
	m, err := beatmap.New(beatmap.Track{ID: "warmup", Title: "Warmup"}, []model.BeatMapEvent{
		{At: ms(0)}, {At: ms(500)}, {At: ms(1000)}, {At: ms(1500)},
	})
	if err != nil {
		panic(err)
	}
	c := beatmapfile.NewCatalog()
	if err := c.Add(m); err != nil {
		panic(err)
	}
	return c
}

func runLog() replay.Log {
	return replay.Log{Version: replay.Version, Seed: 7, Track: "warmup", Events: []model.InputEvent{
		{At: ms(505), Action: "tap"},
		{At: ms(1002), Action: "tap"},
	}}
}

// honest returns a submission whose claim matches what the log replays to.
func honest(id, player string) replay.Submission {
	c := catalog()
	beats, _ := c.Lookup("warmup")
	out, err := session.Replay(context.Background(), beats, runLog(), session.DefaultRules())
	So(err, ShouldBeNil)
	return replay.Submission{ID: id, Player: player, Track: "warmup", Log: runLog(), Claimed: out.Summary}
}

func await(ctx context.Context, svc *service.Service, id string) replay.Result {
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := svc.Status(ctx, id)
		if err == nil && res.Status != replay.StatusQueued {
			return res
		}
		if time.Now().After(deadline) {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service", t, func() {
		svc := service.New(catalog(),
			service.WithWorkerCount(2),
			service.WithQueueSize(16),
			service.WithDedupeSize(32),
		)
		defer svc.Stop()

		Convey("Submissions are refused before start", func() {
			_, err := svc.Submit(ctx, honest("r1", "ana"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Starting twice is harmless and stop is reflected in stats", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["tracks"], ShouldEqual, 1)

			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := service.New(catalog(), service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("An honest run is verified and ranked", func() {
			sub := honest("r1", "ana")
			res, err := svc.Submit(ctx, sub)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, replay.StatusQueued)

			res = await(ctx, svc, "r1")
			So(res.Status, ShouldEqual, replay.StatusVerified)
			So(res.Replayed.Score, ShouldEqual, sub.Claimed.Score)
			So(res.Reason, ShouldBeEmpty)

			top, err := svc.TopN(ctx, "warmup", 10)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 1)
			So(top[0].Player, ShouldEqual, "ana")
			So(top[0].Rank, ShouldEqual, 1)

			e, err := svc.Rank(ctx, "warmup", "ana")
			So(err, ShouldBeNil)
			So(e.SubmissionID, ShouldEqual, "r1")

			tracks := svc.Tracks(ctx)
			So(len(tracks), ShouldEqual, 1)
			So(tracks[0].ID, ShouldEqual, model.TrackID("warmup"))
			So(tracks[0].Players, ShouldEqual, 1)

			Convey("and cannot be submitted again", func() {
				_, err := svc.Submit(ctx, sub)
				So(errors.Is(err, service.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("A tampered claim is rejected and not ranked", func() {
			sub := honest("r2", "bo")
			sub.Claimed.Score += 100
			_, err := svc.Submit(ctx, sub)
			So(err, ShouldBeNil)

			res := await(ctx, svc, "r2")
			So(res.Status, ShouldEqual, replay.StatusRejected)
			So(res.Reason, ShouldContainSubstring, "score")

			_, err = svc.Rank(ctx, "warmup", "bo")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Missing IDs are generated", func() {
			res, err := svc.Submit(ctx, honest("", "cy"))
			So(err, ShouldBeNil)
			So(res.ID, ShouldNotBeEmpty)
			So(await(ctx, svc, res.ID).Status, ShouldEqual, replay.StatusVerified)
		})

		Convey("Malformed submissions are refused up front", func() {
			noPlayer := honest("x1", "")
			_, err := svc.Submit(ctx, noPlayer)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)

			otherTrack := honest("x2", "dee")
			otherTrack.Track = "encore"
			_, err = svc.Submit(ctx, otherTrack)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)

			unknown := honest("x3", "dee")
			unknown.Track, unknown.Log.Track = "encore", "encore"
			_, err = svc.Submit(ctx, unknown)
			So(errors.Is(err, service.ErrUnknownTrack), ShouldBeTrue)

			badLog := honest("x4", "dee")
			badLog.Log.Version = 99
			_, err = svc.Submit(ctx, badLog)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)

			_, err = svc.Status(ctx, "x4")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			farInput := honest("x5", "dee")
			farInput.Log.Events = append(farInput.Log.Events, model.InputEvent{At: 8760 * time.Hour, Action: "tap"})
			_, err = svc.Submit(ctx, farInput)
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
		})

		Convey("Leaderboard reads check the track", func() {
			_, err := svc.TopN(ctx, "encore", 5)
			So(errors.Is(err, service.ErrUnknownTrack), ShouldBeTrue)
			_, err = svc.Rank(ctx, "encore", "ana")
			So(errors.Is(err, service.ErrUnknownTrack), ShouldBeTrue)

			top, err := svc.TopN(ctx, "warmup", 5)
			So(err, ShouldBeNil)
			So(top, ShouldBeEmpty)
		})
	})
}

func TestService_Archive(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service backed by a sqlite archive", t, func() {
		dsn := filepath.Join(t.TempDir(), "replays.db")
		a, err := repository.OpenArchive(ctx, dsn)
		So(err, ShouldBeNil)

		svc := service.New(catalog(), service.WithArchive(a), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)

		_, err = svc.Submit(ctx, honest("r1", "ana"))
		So(err, ShouldBeNil)
		So(await(ctx, svc, "r1").Status, ShouldEqual, replay.StatusVerified)

		Convey("Results and logs are served from the archive", func() {
			res, err := svc.Status(ctx, "r1")
			So(err, ShouldBeNil)
			So(res.Player, ShouldEqual, "ana")

			l, err := svc.Log(ctx, "r1")
			So(err, ShouldBeNil)
			So(l, ShouldResemble, runLog())

			_, err = svc.Log(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			svc.Stop()
		})

		Convey("A restarted service restores the leaderboard", func() {
			svc.Stop()

			a2, err := repository.OpenArchive(ctx, dsn)
			So(err, ShouldBeNil)
			again := service.New(catalog(), service.WithArchive(a2))
			So(again.Start(ctx), ShouldBeNil)
			defer again.Stop()

			e, err := again.Rank(ctx, "warmup", "ana")
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, 1)
			So(e.SubmissionID, ShouldEqual, "r1")
		})
	})

	Convey("Without an archive only the newest settled results are kept", t, func() {
		svc := service.New(catalog(), service.WithWorkerCount(1), service.WithResultLimit(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		_, err := svc.Submit(ctx, honest("old", "ana"))
		So(err, ShouldBeNil)
		So(await(ctx, svc, "old").Status, ShouldEqual, replay.StatusVerified)

		_, err = svc.Submit(ctx, honest("new", "bo"))
		So(err, ShouldBeNil)
		So(await(ctx, svc, "new").Status, ShouldEqual, replay.StatusVerified)

		_, err = svc.Status(ctx, "old")
		So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		So(svc.GetStats()["results"], ShouldEqual, 1)

		e, err := svc.Rank(ctx, "warmup", "ana")
		So(err, ShouldBeNil)
		So(e.SubmissionID, ShouldEqual, "old")
	})

	Convey("Without an archive there are no logs to serve", t, func() {
		svc := service.New(catalog())
		_, err := svc.Log(ctx, "r1")
		So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
	})
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()

	Convey("Processing a submission for a track that vanished fails it", t, func() {
		svc := service.New(catalog())
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sub := honest("gone", "ana")
		sub.Track = "encore"
		So(svc.Process(ctx, sub), ShouldNotBeNil)

		res, err := svc.Status(ctx, "gone")
		So(err, ShouldBeNil)
		So(res.Status, ShouldEqual, replay.StatusFailed)
	})
}
