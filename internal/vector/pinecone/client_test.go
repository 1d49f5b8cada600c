package pinecone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDataServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newControlServer(t *testing.T, host string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/indexes/test-index", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"host": host})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{IndexName: "idx"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewClient(Config{APIKey: "key"})
	assert.ErrorIs(t, err, ErrMissingIndexName)
}

func TestQueryResolvesHostThroughControlPlane(t *testing.T) {
	var gotPayload map[string]interface{}
	data := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"matches": []map[string]interface{}{
				{"id": "c1", "score": 0.9, "metadata": map[string]interface{}{"text": "hello"}},
			},
		})
	})
	control := newControlServer(t, data.URL)

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
	})
	require.NoError(t, err)

	matches, err := client.Query(context.Background(), QueryRequest{
		Vector:          []float32{0.1, 0.2},
		TopK:            3,
		Namespace:       "shared",
		IncludeMetadata: true,
	})

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ID)
	assert.Equal(t, 0.9, matches[0].Score)
	assert.Equal(t, "hello", matches[0].Metadata["text"])
	assert.Equal(t, "shared", matches[0].Namespace)

	assert.Equal(t, float64(3), gotPayload["topK"])
	assert.Equal(t, "shared", gotPayload["namespace"])
	assert.Equal(t, true, gotPayload["includeMetadata"])
}

func TestQueryCapsTopK(t *testing.T) {
	var gotPayload map[string]interface{}
	data := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]interface{}{"matches": []interface{}{}})
	})
	control := newControlServer(t, data.URL)

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
	})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), QueryRequest{
		Vector: []float32{0.1},
		TopK:   5000,
	})

	require.NoError(t, err)
	assert.Equal(t, float64(MaxTopK), gotPayload["topK"])
}

func TestResolveHostFallsBackOnControlPlaneFailure(t *testing.T) {
	control := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
		Environment:   "us-east-1-aws",
	})
	require.NoError(t, err)

	host := client.resolveHost(context.Background())

	assert.Equal(t, "test-index.svc.us-east-1-aws.pinecone.io", host)
}

func TestResolveHostIsCached(t *testing.T) {
	var describes int32
	data := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"matches": []interface{}{}})
	})
	control := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&describes, 1)
		json.NewEncoder(w).Encode(map[string]string{"host": data.URL})
	})

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Query(context.Background(), QueryRequest{Vector: []float32{0.1}})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&describes))
}

func TestQuickQueryTimesOut(t *testing.T) {
	data := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{"matches": []interface{}{}})
	})
	control := newControlServer(t, data.URL)

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
		QuickTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), QueryRequest{
		Vector: []float32{0.1},
		Quick:  true,
	})

	assert.Error(t, err)
}

func TestQueryEmptyVectorRejected(t *testing.T) {
	client, err := NewClient(Config{APIKey: "key", IndexName: "test-index"})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), QueryRequest{})

	assert.Error(t, err)
}

func TestDescribeIndexStatsCachesResponse(t *testing.T) {
	var calls int32
	data := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/describe_index_stats", r.URL.Path)
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{
			"totalVectorCount": 1234,
			"indexFullness": 0.1,
			"dimension": 1536,
			"namespaces": {"shared": {"vectorCount": 1000}, "users": {"vectorCount": 234}}
		}`)
	})
	control := newControlServer(t, data.URL)

	client, err := NewClient(Config{
		APIKey:        "key",
		ControllerURL: control.URL,
		IndexName:     "test-index",
	})
	require.NoError(t, err)

	first, err := client.DescribeIndexStats(context.Background())
	require.NoError(t, err)
	second, err := client.DescribeIndexStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1234, first.TotalVectorCount)
	assert.Equal(t, 1536, first.Dimension)
	assert.Equal(t, 1000, first.Namespaces["shared"])
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
