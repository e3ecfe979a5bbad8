package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessedu/portal-auth/internal/domain/entity"
)

type recorded struct {
	method, path string
	body         map[string]any
}

func newFakeES(t *testing.T, reply string) (*UserIndex, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: body})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewUserIndex(es, "portal-users"), &calls
}

func TestUserIndex_IndexOmitsCredentials(t *testing.T) {
	x, calls := newFakeES(t, `{"result":"created"}`)
	u := &entity.User{
		ID: "u-1", Email: "alice@example.com", PasswordHash: "$2a$10$secret", Role: entity.RoleStudent,
		FullName: "Alice", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	require.NoError(t, x.Index(context.Background(), u))
	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/portal-users/_doc/u-1", c.path)
	assert.Equal(t, "alice@example.com", c.body["email"])
	for k := range c.body {
		assert.False(t, strings.Contains(k, "password"), k)
	}
}

func TestUserIndex_Search(t *testing.T) {
	x, calls := newFakeES(t, `{"hits":{"hits":[{"_id":"u-1","_source":{"id":"u-1","email":"alice@example.com","full_name":"Alice","role":"student"}}]}}`)

	got, err := x.Search(context.Background(), "alice", entity.RoleStudent, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].FullName)

	c := (*calls)[0]
	assert.Equal(t, "/portal-users/_search", c.path)
	assert.EqualValues(t, 10, c.body["size"])
	q := c.body["query"].(map[string]any)["bool"].(map[string]any)
	assert.Equal(t, map[string]any{"term": map[string]any{"role": "student"}}, q["filter"])
}
