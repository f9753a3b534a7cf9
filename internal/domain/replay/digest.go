package replay

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/zeebo/blake3"
)

// JudgmentDigest fingerprints a judgment sequence. Two sequences have the
// same digest only if every target, quality, delta, combo, time and matched
// input agree.
func JudgmentDigest(js []model.JudgmentEvent) string {
	h := blake3.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	for _, j := range js {
		put(uint64(j.Target))
		put(uint64(j.Quality))
		put(uint64(j.Delta))
		put(uint64(j.Combo))
		put(uint64(j.At))
		if j.Input != nil {
			put(uint64(j.Input.At))
			put(uint64(len(j.Input.Action)))
			_, _ = h.Write([]byte(j.Input.Action))
		} else {
			put(math.MaxUint64)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Trajectory fingerprints the sequence of crowd aggregates of a session.
type Trajectory struct {
	h     *blake3.Hasher
	n     int
	final crowd.Aggregate
}

// NewTrajectory returns an empty trajectory.
func NewTrajectory() *Trajectory {
	return &Trajectory{h: blake3.New()}
}

// Add folds one aggregate into the fingerprint.
func (t *Trajectory) Add(agg crowd.Aggregate) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(agg.MeanEnergy))
	_, _ = t.h.Write(buf[:])
	for _, c := range agg.Histogram {
		binary.LittleEndian.PutUint64(buf[:], uint64(c))
		_, _ = t.h.Write(buf[:])
	}
	t.n++
	t.final = agg
}

// Len returns the number of aggregates folded in.
func (t *Trajectory) Len() int { return t.n }

// Final returns the last aggregate added.
func (t *Trajectory) Final() crowd.Aggregate { return t.final }

// Digest returns the hex fingerprint so far.
func (t *Trajectory) Digest() string {
	return hex.EncodeToString(t.h.Sum(nil))
}
