package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const schema = `
create table if not exists replays
  (
	  id text not null primary key,
	  player text not null,
	  track text not null,
	  status text not null,
	  score integer not null,
	  result blob not null,
	  log blob not null,
	  archived integer not null
  );
create index if not exists replays_track on replays(track, score desc);
`

// zstd encoder and decoder are safe for concurrent use and reused across
// calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("repository: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("repository: zstd decoder initialization failed: " + err.Error())
	}
}

// SQLiteArchive stores submission results as CBOR rows and replay logs as
// zstd-compressed CBOR blobs in a sqlite database.
type SQLiteArchive struct {
	db     *sql.DB
	logger logger.Logger
	clock  clock.Clock
}

var _ Archive = (*SQLiteArchive)(nil)

// OpenArchive opens or creates the archive at dsn. Use ":memory:" for a
// throwaway archive.
func OpenArchive(ctx context.Context, dsn string, opts ...ArchiveOption) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %q: %v: %w", dsn, err, ErrArchive)
	}
	// sqlite serializes writers; one connection also keeps ":memory:" a
	// single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %v: %w", err, ErrArchive)
	}

	a := &SQLiteArchive{
		db:     db,
		logger: logger.GetOrNop(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("archive")
	return a, nil
}

// Put implements Archive.Put.
func (a *SQLiteArchive) Put(ctx context.Context, res replay.Result, log replay.Log) error {
	result, err := replay.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %v: %w", res.ID, err, ErrArchive)
	}
	raw, err := replay.Encode(log)
	if err != nil {
		return fmt.Errorf("encode log %s: %v: %w", res.ID, err, ErrArchive)
	}
	blob := zstdEncoder.EncodeAll(raw, nil)

	_, err = a.db.ExecContext(ctx,
		`insert or replace into replays(id, player, track, status, score, result, log, archived)
		 values(?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Player, string(res.Track), string(res.Status), res.Replayed.Score,
		result, blob, a.clock.Now().UnixMilli(),
	)
	if err != nil {
		metrics.RecordErrorByComponent("archive", "write")
		return fmt.Errorf("insert %s: %v: %w", res.ID, err, ErrArchive)
	}

	metrics.RecordArchiveWrite()
	a.logger.Debug(ctx, "replay archived",
		logger.String("submission_id", res.ID),
		logger.String("status", string(res.Status)),
		logger.Int("log_bytes", len(raw)),
		logger.Int("stored_bytes", len(blob)),
	)
	return nil
}

// Get implements Archive.Get.
func (a *SQLiteArchive) Get(ctx context.Context, id string) (replay.Result, error) {
	var data []byte
	err := a.db.QueryRowContext(ctx, `select result from replays where id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return replay.Result{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return replay.Result{}, fmt.Errorf("query %q: %v: %w", id, err, ErrArchive)
	}
	var res replay.Result
	if err := replay.Unmarshal(data, &res); err != nil {
		return replay.Result{}, fmt.Errorf("decode result %q: %v: %w", id, err, ErrArchive)
	}
	return res, nil
}

// Log implements Archive.Log.
func (a *SQLiteArchive) Log(ctx context.Context, id string) (replay.Log, error) {
	var blob []byte
	err := a.db.QueryRowContext(ctx, `select log from replays where id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return replay.Log{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return replay.Log{}, fmt.Errorf("query %q: %v: %w", id, err, ErrArchive)
	}
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return replay.Log{}, fmt.Errorf("decompress %q: %v: %w", id, err, ErrArchive)
	}
	return replay.Decode(raw)
}

// Verified returns every verified result on a track, best first. Used to
// rebuild the in-memory leaderboard on start.
func (a *SQLiteArchive) Verified(ctx context.Context, track model.TrackID) ([]replay.Result, error) {
	rows, err := a.db.QueryContext(ctx,
		`select result from replays where track = ? and status = ? order by score desc`,
		string(track), string(replay.StatusVerified))
	if err != nil {
		return nil, fmt.Errorf("query track %q: %v: %w", track, err, ErrArchive)
	}
	defer rows.Close()

	var out []replay.Result
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan track %q: %v: %w", track, err, ErrArchive)
		}
		var res replay.Result
		if err := replay.Unmarshal(data, &res); err != nil {
			a.logger.Warn(ctx, "skipping undecodable archive row", logger.Error(err))
			continue
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track %q: %v: %w", track, err, ErrArchive)
	}
	return out, nil
}

// Tracks lists tracks with at least one verified run.
func (a *SQLiteArchive) Tracks(ctx context.Context) ([]model.TrackID, error) {
	rows, err := a.db.QueryContext(ctx,
		`select distinct track from replays where status = ? order by track`, string(replay.StatusVerified))
	if err != nil {
		return nil, fmt.Errorf("query tracks: %v: %w", err, ErrArchive)
	}
	defer rows.Close()

	var out []model.TrackID
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tracks: %v: %w", err, ErrArchive)
		}
		out = append(out, model.TrackID(t))
	}
	return out, rows.Err()
}

// Close closes the database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// Restore replays every archived verified run into lb, returning how many
// rows were loaded.
func Restore(ctx context.Context, a *SQLiteArchive, lb Leaderboard) (int, error) {
	tracks, err := a.Tracks(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, track := range tracks {
		results, err := a.Verified(ctx, track)
		if err != nil {
			return n, err
		}
		for _, r := range results {
			if _, err := lb.UpdateBest(ctx, EntryFromResult(r)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// EntryFromResult builds the leaderboard row of a verified result.
func EntryFromResult(r replay.Result) Entry {
	return Entry{
		Track:        r.Track,
		Player:       r.Player,
		Score:        r.Replayed.Score,
		Accuracy:     r.Replayed.Accuracy,
		MaxCombo:     r.Replayed.MaxCombo,
		SubmissionID: r.ID,
		Achieved:     r.Verified,
	}
}
