package soracom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Auth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "keyId-123", req["authKeyId"])
		assert.Equal(t, "secret-456", req["authKey"])

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"apiKey":"api-key","token":"api-token","userName":"tester","operatorId":"OP0000000001"}`))
		require.NoError(t, err)
	}))
	defer ts.Close()

	c := NewClient(Credentials{AuthKeyID: "keyId-123", AuthKeySecret: "secret-456"}, Endpoint(ts.URL))
	require.NoError(t, c.Auth(context.Background()))
	assert.Equal(t, "api-key", c.apiKey)
	assert.Equal(t, "api-token", c.token)
	assert.Equal(t, "tester", c.UserName)
	assert.Equal(t, "OP0000000001", c.OperatorID)
}

func TestClient_AuthRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(Credentials{AuthKeyID: "bad", AuthKeySecret: "bad"}, Endpoint(ts.URL))
	err := c.Auth(context.Background())
	require.ErrorIs(t, err, ErrAuth)
}

func TestClient_AuthBadResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not a json`))
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	err := c.Auth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't decode auth response")
}

func TestClient_DataEntries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			_, _ = w.Write([]byte(`{"apiKey":"api-key","token":"api-token"}`))
		case "/v1/data/Subscriber/441200000050000":
			assert.Equal(t, "api-key", r.Header.Get("X-Soracom-Api-Key"))
			assert.Equal(t, "api-token", r.Header.Get("X-Soracom-Token"))
			assert.Equal(t, "en", r.Header.Get("X-Soracom-Lang"))
			assert.Equal(t, "desc", r.URL.Query().Get("sort"))
			assert.Equal(t, "1669023364195", r.URL.Query().Get("from"))
			assert.Equal(t, "1669023464195", r.URL.Query().Get("to"))
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[
				{"time":1000,"contentType":"application/json","content":"{\"payload\":\"aGVsbG8=\"}"},
				{"time":900,"contentType":"application/json","content":"{\"temperature\":20}"}
			]`))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewClient(Credentials{AuthKeyID: "k", AuthKeySecret: "s"}, Endpoint(ts.URL))
	require.NoError(t, c.Auth(context.Background()))

	entries, err := c.DataEntries(context.Background(), "441200000050000", 1669023364195, 1669023464195, 50)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Data{Time: 1000, ContentType: "application/json", Content: `{"value":"hello"}`}, entries[0])
	assert.Equal(t, Data{Time: 900, ContentType: "application/json", Content: `{"temperature":20}`}, entries[1])
}

func TestClient_DataEntriesDefaults(t *testing.T) {
	var gotFrom, gotTo, gotLimit string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	entries, err := c.DataEntries(context.Background(), "001010000000001", 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotEqual(t, "0", gotFrom, "from defaulted")
	assert.NotEqual(t, "0", gotTo, "to defaulted")
	assert.Equal(t, "100", gotLimit, "limit defaulted")
}

func TestClient_DataEntriesInvalidLimit(t *testing.T) {
	c := NewClient(Credentials{}, EndpointGlobal)
	_, err := c.DataEntries(context.Background(), "001010000000001", 0, 0, 1001)
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestClient_DataEntriesBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"AUM0011"}`))
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	_, err := c.DataEntries(context.Background(), "001010000000001", 0, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestClient_DataEntriesBadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	_, err := c.DataEntries(context.Background(), "001010000000001", 0, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't decode data response")
}

func TestClient_DeleteDataEntry(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v1/data/Subscriber/441200000050000/1669024327201", r.URL.Path)
		// second delete of the same entry reports not found, still not an error
		if atomic.AddInt32(&calls, 1) > 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	require.NoError(t, c.DeleteDataEntry(context.Background(), "441200000050000", 1669024327201))
	require.NoError(t, c.DeleteDataEntry(context.Background(), "441200000050000", 1669024327201))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DeleteDataEntryFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := NewClient(Credentials{}, Endpoint(ts.URL))
	err := c.DeleteDataEntry(context.Background(), "441200000050000", 1669024327201)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
