package vtable

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/soratab/soratab/pkg/soracom"
)

// Fetcher is the remote data source consumed by the table: authenticate
// first, then pull a bounded, time-ordered batch of entries.
// *soracom.Client satisfies it.
type Fetcher interface {
	Auth(ctx context.Context) error
	DataEntries(ctx context.Context, imsi string, from, to int64, limit uint32) ([]soracom.Data, error)
}

// snapshot holds the data backing one table instance: fetched once at
// creation time, descending by time, never mutated or refetched after.
type snapshot struct {
	entries []soracom.Data
}

// loadSnapshot performs the one-time authenticate-fetch-decode round trip.
// Blocks until the remote responds; a hung remote stalls table creation for
// as long as the fetcher's http client allows.
func loadSnapshot(ctx context.Context, f Fetcher, cfg Config) (*snapshot, error) {
	if err := f.Auth(ctx); err != nil {
		return nil, fmt.Errorf("can't authenticate: %w", err)
	}
	entries, err := f.DataEntries(ctx, cfg.IMSI, cfg.From, cfg.To, cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("can't fetch data entries: %w", err)
	}
	log.Printf("[INFO] loaded %d harvest entries for imsi %s", len(entries), cfg.IMSI)
	return &snapshot{entries: entries}, nil
}

// reader iterates a snapshot by position. Positions run 0..len, len being
// the end-of-rows state. Readers share the snapshot read-only and carry no
// other state, so each cursor gets its own independent reader.
type reader struct {
	data *snapshot
	pos  int
}

func (r *reader) reset()       { r.pos = 0 }
func (r *reader) advance()     { r.pos++ }
func (r *reader) index() int64 { return int64(r.pos) }

func (r *reader) atEnd() bool {
	return r.data == nil || r.pos >= len(r.data.entries)
}

// value returns the string form of the column at the current position:
// 0 is time as a decimal string, 1 is content type, anything else is the
// content. Past the end it returns an empty string.
func (r *reader) value(col int) string {
	if r.atEnd() {
		return ""
	}
	e := r.data.entries[r.pos]
	switch col {
	case 0:
		return strconv.FormatInt(e.Time, 10)
	case 1:
		return e.ContentType
	default:
		return e.Content
	}
}
