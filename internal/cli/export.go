package cli

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/Dicklesworthstone/omnimon/internal/engine"
	"github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// A snapshot is only worth printing once aggregation has produced a point
// and the second slow refresh has given process CPU a baseline.
const minSlowSeq = 2

func ready(s engine.Snapshot) bool {
	return s.Tick >= 1 && s.Latest.SlowSeq >= minSlowSeq
}

// exportOnce feeds the engine until the first complete snapshot and writes
// it as a single JSON document. Interrupting before then writes nothing and
// is not an error.
func exportOnce(ctx context.Context, w io.Writer, eng *engine.Engine, stream <-chan model.Sample, limit int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := pump(ctx, eng, stream, func(s engine.Snapshot) (bool, error) {
		if !ready(s) {
			return false, nil
		}
		return true, encode(enc, s)
	}, limit)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// exportStream writes one NDJSON line per aggregation tick until ctx is done.
func exportStream(ctx context.Context, w io.Writer, eng *engine.Engine, stream <-chan model.Sample, limit int) error {
	enc := json.NewEncoder(w)
	var last uint64
	err := pump(ctx, eng, stream, func(s engine.Snapshot) (bool, error) {
		if s.Tick == last {
			return false, nil
		}
		last = s.Tick
		return false, encode(enc, s)
	}, limit)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// pump ingests samples and advances aggregation at the engine's interval,
// handing every snapshot to emit until it reports done.
func pump(ctx context.Context, eng *engine.Engine, stream <-chan model.Sample, emit func(engine.Snapshot) (bool, error), limit int) error {
	ticker := time.NewTicker(eng.Interval())
	defer ticker.Stop()
	eng.Advance(time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-stream:
			if !ok {
				return errors.New(errors.ErrExport,
					"Sampler stopped before a snapshot was ready", "")
			}
			eng.Ingest(s)
		case now := <-ticker.C:
			if _, open := eng.Drain(stream); !open {
				return errors.New(errors.ErrExport,
					"Sampler stopped before a snapshot was ready", "")
			}
			eng.Advance(now)
			done, err := emit(eng.Snapshot(limit))
			if err != nil || done {
				return err
			}
		}
	}
}

func encode(enc *json.Encoder, s engine.Snapshot) error {
	if err := enc.Encode(s); err != nil {
		return errors.WrapWithCode(err, errors.ErrExport,
			"Failed to write snapshot",
			"Check that the output pipe is still open")
	}
	return nil
}
