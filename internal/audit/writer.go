package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Writer wraps a Sink with bounded retries. Audit loss is not
// acceptable, duplicates are, so each write is retried independently of
// the primary action and failures are logged rather than propagated.
type Writer struct {
	log      zerolog.Logger
	sink     Sink
	attempts int
	backoff  time.Duration
}

// NewWriter creates a retrying audit writer.
func NewWriter(log zerolog.Logger, sink Sink) *Writer {
	return &Writer{
		log:      log.With().Str("component", "audit").Logger(),
		sink:     sink,
		attempts: 3,
		backoff:  100 * time.Millisecond,
	}
}

// Record writes one audit record, retrying on failure. It never blocks
// the caller on sink errors beyond the bounded retry sequence.
func (w *Writer) Record(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	delay := w.backoff
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.sink.Write(ctx, rec); err == nil {
			return
		}
		if attempt < w.attempts {
			select {
			case <-ctx.Done():
				w.log.Error().
					Err(ctx.Err()).
					Str("kind", rec.Kind).
					Str("ref_id", rec.RefID).
					Msg("audit write abandoned, context cancelled")
				return
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	w.log.Error().
		Err(err).
		Str("kind", rec.Kind).
		Str("ref_id", rec.RefID).
		Int("attempts", w.attempts).
		Msg("audit write failed after retries")
}
