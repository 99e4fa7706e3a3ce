// Package vtable exposes Soracom Harvest Data as a SQLite virtual table for
// the modernc.org/sqlite driver. A table instance performs a single
// authenticated fetch at CREATE VIRTUAL TABLE time and serves that snapshot
// for its whole lifetime: no refresh, no pagination, no predicate pushdown.
//
//	CREATE VIRTUAL TABLE harvest_data USING harvest(IMSI '44010...', COVERAGE 'japan', LIMIT '500');
//	SELECT * FROM harvest_data;
package vtable

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"modernc.org/sqlite/vtab"

	"github.com/soratab/soratab/pkg/soracom"
)

// DefaultModuleName is the name the module is conventionally registered under.
const DefaultModuleName = "harvest"

const schemaDDL = "CREATE TABLE x (time INTEGER, content_type TEXT, value TEXT)"

// Module implements vtab.Module. Each Create/Connect builds a fetcher for
// the coverage the table arguments select, pulls the data once and keeps it
// behind the returned table handle.
type Module struct {
	newFetcher func(endpoint soracom.Endpoint) Fetcher
}

// NewModule makes a module fetching through the Soracom API with the given
// credentials.
func NewModule(creds soracom.Credentials) *Module {
	return &Module{newFetcher: func(endpoint soracom.Endpoint) Fetcher {
		return soracom.NewClient(creds, endpoint)
	}}
}

// NewModuleWithFetcher makes a module with a custom fetcher constructor,
// used to redirect the remote source in tests.
func NewModuleWithFetcher(newFetcher func(endpoint soracom.Endpoint) Fetcher) *Module {
	return &Module{newFetcher: newFetcher}
}

// Create parses the table arguments, performs the one-time fetch and
// declares the fixed three-column schema. Any argument or remote failure
// fails the creation; the table does not exist after a failed Create.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	cfg, err := parseArgs(args)
	if err != nil {
		return nil, fmt.Errorf("can't parse table arguments: %w", err)
	}

	snap, err := loadSnapshot(context.Background(), m.newFetcher(cfg.Endpoint), cfg)
	if err != nil {
		return nil, fmt.Errorf("can't load harvest data for imsi %s: %w", cfg.IMSI, err)
	}

	if err = ctx.Declare(schemaDDL); err != nil {
		return nil, fmt.Errorf("can't declare table schema: %w", err)
	}

	return &table{cfg: cfg, snap: snap}, nil
}

// Connect is identical to Create: there is no backing store to reattach to,
// reconnecting a table refetches its snapshot.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

// table is a single virtual table instance owning one snapshot. The mutex
// guards the snapshot pointer across lifecycle calls; the snapshot itself is
// immutable and shared read-only by all cursors.
type table struct {
	cfg  Config
	mu   sync.Mutex
	snap *snapshot
}

// BestIndex always reports no usable index: no constraint is consumed and no
// ordering is guaranteed, so the engine requests a full scan every time.
func (t *table) BestIndex(info *vtab.IndexInfo) error {
	info.IdxNum = 0
	info.EstimatedCost = 1e6
	return nil
}

// Open makes a fresh cursor over the table's snapshot.
func (t *table) Open() (vtab.Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap == nil {
		return nil, fmt.Errorf("table for imsi %s is disconnected", t.cfg.IMSI)
	}
	return &cursor{reader: reader{data: t.snap}}, nil
}

// Disconnect drops the snapshot reference. Safe to call more than once.
func (t *table) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = nil
	return nil
}

// Destroy behaves like Disconnect, nothing else to tear down.
func (t *table) Destroy() error { return t.Disconnect() }

// cursor implements vtab.Cursor over a snapshot reader.
type cursor struct {
	reader reader
}

// Filter restarts the scan from position zero. Index hints are ignored,
// every scan is a full pass over the snapshot.
func (c *cursor) Filter(_ int, _ string, _ []vtab.Value) error {
	c.reader.reset()
	return nil
}

func (c *cursor) Next() error {
	c.reader.advance()
	return nil
}

func (c *cursor) Eof() bool { return c.reader.atEnd() }

// Column emits the current cell. A value parsing as a 64-bit integer is
// emitted as an integer, anything else as text. The rule applies to all
// columns alike, so numeric-looking content comes out as an integer too.
func (c *cursor) Column(col int) (vtab.Value, error) {
	v := c.reader.value(col)
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i, nil
	}
	return v, nil
}

// Rowid is the current position. Not a stable entry identity: the same entry
// can get a different rowid on another scan.
func (c *cursor) Rowid() (int64, error) { return c.reader.index(), nil }

// Close releases the cursor's snapshot reference. Safe to call more than once.
func (c *cursor) Close() error {
	c.reader.data = nil
	return nil
}
