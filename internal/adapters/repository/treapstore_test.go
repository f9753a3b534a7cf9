package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(track model.TrackID, player string, score int64, minute int) repository.Entry {
	return repository.Entry{
		Track:    track,
		Player:   player,
		Score:    score,
		Achieved: epoch.Add(time.Duration(minute) * time.Minute),
	}
}

func players(es []repository.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Player
	}
	return out
}

func ranks(es []repository.Entry) []int {
	out := make([]int, len(es))
	for i, e := range es {
		out[i] = e.Rank
	}
	return out
}

func TestTreapStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty leaderboard", t, func() {
		s := repository.NewTreapStore()

		Convey("Nothing is ranked", func() {
			So(s.Count(ctx, "warmup"), ShouldEqual, 0)
			top, err := s.TopN(ctx, "warmup", 10)
			So(err, ShouldBeNil)
			So(top, ShouldBeEmpty)
			_, err = s.Rank(ctx, "warmup", "ana")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(s.Tracks(ctx), ShouldBeEmpty)
		})

		Convey("Invalid requests are refused", func() {
			_, err := s.TopN(ctx, "warmup", 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			_, err = s.UpdateBest(ctx, entry("", "ana", 1, 0))
			So(errors.Is(err, repository.ErrInvalidEntry), ShouldBeTrue)
			_, err = s.UpdateBest(ctx, entry("warmup", "ana", -1, 0))
			So(errors.Is(err, repository.ErrInvalidEntry), ShouldBeTrue)
		})

		Convey("Only improvements replace a personal best", func() {
			ok, err := s.UpdateBest(ctx, entry("warmup", "ana", 500, 0))
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = s.UpdateBest(ctx, entry("warmup", "ana", 400, 1))
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			ok, _ = s.UpdateBest(ctx, entry("warmup", "ana", 500, 2))
			So(ok, ShouldBeFalse)

			ok, _ = s.UpdateBest(ctx, entry("warmup", "ana", 900, 3))
			So(ok, ShouldBeTrue)
			e, err := s.Rank(ctx, "warmup", "ana")
			So(err, ShouldBeNil)
			So(e.Score, ShouldEqual, int64(900))
			So(e.Rank, ShouldEqual, 1)
			So(s.Count(ctx, "warmup"), ShouldEqual, 1)
		})

		Convey("Tracks are ranked independently", func() {
			s.UpdateBest(ctx, entry("warmup", "ana", 100, 0))
			s.UpdateBest(ctx, entry("finale", "ana", 5, 0))
			s.UpdateBest(ctx, entry("finale", "bo", 50, 0))

			e, _ := s.Rank(ctx, "warmup", "ana")
			So(e.Rank, ShouldEqual, 1)
			e, _ = s.Rank(ctx, "finale", "ana")
			So(e.Rank, ShouldEqual, 2)
			So(s.Tracks(ctx), ShouldResemble, []model.TrackID{"finale", "warmup"})
		})
	})

	Convey("Given a board with ties", t, func() {
		s := repository.NewTreapStore(repository.WithTopCacheSize(3))
		s.UpdateBest(ctx, entry("warmup", "cy", 700, 5))
		s.UpdateBest(ctx, entry("warmup", "ana", 900, 2))
		s.UpdateBest(ctx, entry("warmup", "bo", 700, 1))
		s.UpdateBest(ctx, entry("warmup", "dee", 300, 0))
		s.UpdateBest(ctx, entry("warmup", "eli", 700, 1))

		Convey("Equal scores rank by who got there first, then by name", func() {
			top, err := s.TopN(ctx, "warmup", 10)
			So(err, ShouldBeNil)
			So(players(top), ShouldResemble, []string{"ana", "bo", "eli", "cy", "dee"})
			So(ranks(top), ShouldResemble, []int{1, 2, 2, 2, 5})
		})

		Convey("Cached and uncached reads agree", func() {
			cached, _ := s.TopN(ctx, "warmup", 3)
			full, _ := s.TopN(ctx, "warmup", 5)
			So(cached, ShouldResemble, full[:3])
		})

		Convey("Rank agrees with TopN", func() {
			full, _ := s.TopN(ctx, "warmup", 5)
			for _, want := range full {
				got, err := s.Rank(ctx, "warmup", want.Player)
				So(err, ShouldBeNil)
				So(got.Rank, ShouldEqual, want.Rank)
			}
		})

		Convey("Callers cannot corrupt the snapshot", func() {
			top, _ := s.TopN(ctx, "warmup", 2)
			top[0].Player = "mallory"
			again, _ := s.TopN(ctx, "warmup", 2)
			So(again[0].Player, ShouldEqual, "ana")
		})
	})
}

func TestTreapStoreAgainstSort(t *testing.T) {
	ctx := context.Background()

	Convey("Random updates keep the board consistent with a sorted reference", t, func() {
		s := repository.NewTreapStore(repository.WithTopCacheSize(10))
		best := map[string]int64{}
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 2000; i++ {
			p := fmt.Sprintf("p%03d", rng.Intn(300))
			score := int64(rng.Intn(5000))
			s.UpdateBest(ctx, repository.Entry{Track: "t", Player: p, Score: score, Achieved: epoch})
			if cur, seen := best[p]; !seen || score > cur {
				best[p] = score
			}
		}

		type row struct {
			p string
			s int64
		}
		var ref []row
		for p, sc := range best {
			ref = append(ref, row{p, sc})
		}
		sort.Slice(ref, func(i, j int) bool {
			if ref[i].s != ref[j].s {
				return ref[i].s > ref[j].s
			}
			return ref[i].p < ref[j].p
		})

		top, err := s.TopN(ctx, "t", len(ref))
		So(err, ShouldBeNil)
		So(len(top), ShouldEqual, len(ref))
		for i := range ref {
			So(top[i].Player, ShouldEqual, ref[i].p)
			So(top[i].Score, ShouldEqual, ref[i].s)
		}
		So(s.Count(ctx, "t"), ShouldEqual, len(ref))
	})
}

func TestTreapStoreConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Concurrent writers and readers are safe", t, func() {
		s := repository.NewTreapStore()
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					p := fmt.Sprintf("p%d", (w*200+i)%50)
					s.UpdateBest(ctx, repository.Entry{Track: "t", Player: p, Score: int64(i), Achieved: epoch})
					s.TopN(ctx, "t", 5)
					s.Rank(ctx, "t", p)
				}
			}(w)
		}
		wg.Wait()
		So(s.Count(ctx, "t"), ShouldEqual, 50)
	})
}

func BenchmarkUpdateBest(b *testing.B) {
	ctx := context.Background()
	s := repository.NewTreapStore()
	rng := rand.New(rand.NewSource(1))
	names := make([]string, 10000)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.UpdateBest(ctx, repository.Entry{Track: "t", Player: names[rng.Intn(len(names))], Score: int64(rng.Intn(1_000_000)), Achieved: epoch})
	}
}

func BenchmarkRank(b *testing.B) {
	ctx := context.Background()
	s := repository.NewTreapStore()
	for i := 0; i < 10000; i++ {
		s.UpdateBest(ctx, repository.Entry{Track: "t", Player: fmt.Sprintf("p%d", i), Score: int64(i), Achieved: epoch})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Rank(ctx, "t", "p5000")
	}
}
