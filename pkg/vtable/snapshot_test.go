package vtable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soratab/soratab/pkg/soracom"
)

// fakeFetcher is an in-memory remote data source for tests.
type fakeFetcher struct {
	entries   []soracom.Data
	authErr   error
	fetchErr  error
	authCalls int
	dataCalls int

	gotIMSI  string
	gotFrom  int64
	gotTo    int64
	gotLimit uint32
}

func (f *fakeFetcher) Auth(context.Context) error {
	f.authCalls++
	return f.authErr
}

func (f *fakeFetcher) DataEntries(_ context.Context, imsi string, from, to int64, limit uint32) ([]soracom.Data, error) {
	f.dataCalls++
	f.gotIMSI, f.gotFrom, f.gotTo, f.gotLimit = imsi, from, to, limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.entries, nil
}

func testEntries() []soracom.Data {
	return []soracom.Data{
		{Time: 1000, ContentType: "application/json", Content: `{"value":"hello"}`},
		{Time: 900, ContentType: "application/json", Content: `{"temperature":20}`},
		{Time: 800, ContentType: "text/plain", Content: "42"},
	}
}

func TestLoadSnapshot(t *testing.T) {
	f := &fakeFetcher{entries: testEntries()}
	cfg := Config{IMSI: "001010000000001", From: 500, To: 1500, Limit: 10}

	snap, err := loadSnapshot(context.Background(), f, cfg)
	require.NoError(t, err)
	require.Len(t, snap.entries, 3)

	assert.Equal(t, 1, f.authCalls)
	assert.Equal(t, 1, f.dataCalls)
	assert.Equal(t, "001010000000001", f.gotIMSI)
	assert.Equal(t, int64(500), f.gotFrom)
	assert.Equal(t, int64(1500), f.gotTo)
	assert.Equal(t, uint32(10), f.gotLimit)
}

func TestLoadSnapshot_AuthFailed(t *testing.T) {
	f := &fakeFetcher{authErr: soracom.ErrAuth}
	_, err := loadSnapshot(context.Background(), f, Config{IMSI: "001010000000001"})
	require.ErrorIs(t, err, soracom.ErrAuth)
	assert.Zero(t, f.dataCalls, "no fetch after failed auth")
}

func TestLoadSnapshot_FetchFailed(t *testing.T) {
	f := &fakeFetcher{fetchErr: errors.New("boom")}
	_, err := loadSnapshot(context.Background(), f, Config{IMSI: "001010000000001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't fetch data entries")
}

func TestReader_FullScan(t *testing.T) {
	snap := &snapshot{entries: testEntries()}
	r := reader{data: snap}

	r.reset()
	var visited []int64
	for !r.atEnd() {
		visited = append(visited, r.index())
		r.advance()
	}
	assert.Equal(t, []int64{0, 1, 2}, visited, "visits every position in order")
	assert.True(t, r.atEnd())
	assert.Equal(t, int64(3), r.index(), "terminal position is len")

	// reset mid-scan restarts from zero
	r.reset()
	r.advance()
	assert.Equal(t, int64(1), r.index())
	r.reset()
	assert.Equal(t, int64(0), r.index())
}

func TestReader_Values(t *testing.T) {
	r := reader{data: &snapshot{entries: testEntries()}}

	assert.Equal(t, "1000", r.value(0), "time as decimal string")
	assert.Equal(t, "application/json", r.value(1))
	assert.Equal(t, `{"value":"hello"}`, r.value(2))
	assert.Equal(t, `{"value":"hello"}`, r.value(99), "any other ordinal yields content")

	r.advance()
	assert.Equal(t, "900", r.value(0))
	assert.Equal(t, `{"temperature":20}`, r.value(2))

	r.advance()
	r.advance()
	require.True(t, r.atEnd())
	assert.Equal(t, "", r.value(0), "empty past the end")
	assert.Equal(t, "", r.value(2))
}

func TestReader_Empty(t *testing.T) {
	r := reader{data: &snapshot{}}
	assert.True(t, r.atEnd())
	assert.Equal(t, "", r.value(0))

	nilReader := reader{}
	assert.True(t, nilReader.atEnd())
	assert.Equal(t, "", nilReader.value(1))
}

func TestReader_Independent(t *testing.T) {
	// two readers over the same snapshot move independently
	snap := &snapshot{entries: testEntries()}
	r1 := reader{data: snap}
	r2 := reader{data: snap}

	r1.advance()
	r1.advance()
	assert.Equal(t, int64(2), r1.index())
	assert.Equal(t, int64(0), r2.index())
	assert.Equal(t, "1000", r2.value(0))
}
