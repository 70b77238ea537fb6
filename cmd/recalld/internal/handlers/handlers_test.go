package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/cursor"
	"github.com/recallhq/recall/internal/embeddings"
	"github.com/recallhq/recall/internal/store"
	"github.com/recallhq/recall/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStore struct {
	storeFn  func(ctx context.Context, in store.StoreInput) (string, string, error)
	searchFn func(ctx context.Context, query string, topK int, includeText bool) ([]store.SearchHit, error)
	listFn   func(ctx context.Context, limit int, cursor string) ([]store.Memory, string, error)
	deleteFn func(ctx context.Context, id string) error
}

func (s *stubStore) StoreMemory(ctx context.Context, in store.StoreInput) (string, string, error) {
	return s.storeFn(ctx, in)
}

func (s *stubStore) Search(ctx context.Context, query string, topK int, includeText bool) ([]store.SearchHit, error) {
	return s.searchFn(ctx, query, topK, includeText)
}

func (s *stubStore) List(ctx context.Context, limit int, cursor string) ([]store.Memory, string, error) {
	return s.listFn(ctx, limit, cursor)
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func testValidator() *api.Validator { return api.NewValidator(8000, 100) }

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var er api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func TestCreateMemory(t *testing.T) {
	t.Run("fresh record answers 201", func(t *testing.T) {
		st := &stubStore{storeFn: func(_ context.Context, in store.StoreInput) (string, string, error) {
			assert.Equal(t, "note", in.Text)
			assert.Equal(t, "cli", in.Source)
			return "id-1", "random", nil
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(`{"text":"note"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp api.MemoryCreateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "id-1", resp.ID)
		assert.Equal(t, "random", resp.IDStrategy)
	})

	t.Run("deduped overwrite answers 200", func(t *testing.T) {
		st := &stubStore{storeFn: func(_ context.Context, in store.StoreInput) (string, string, error) {
			require.NotNil(t, in.DedupeKey)
			return "id-2", "deduped", nil
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/memory",
			strings.NewReader(`{"text":"note","dedupe_key":"k"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed body is a validation error", func(t *testing.T) {
		h := NewMemoryHandler(&stubStore{}, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "validation_error", decodeErr(t, rec).Error)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		h := NewMemoryHandler(&stubStore{}, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(`{"text":""}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("too many tags is rejected", func(t *testing.T) {
		tags := make([]string, 21)
		for i := range tags {
			tags[i] = "t"
		}
		body, _ := json.Marshal(api.MemoryCreateRequest{Text: "x", Tags: tags})

		h := NewMemoryHandler(&stubStore{}, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("overlong text is rejected", func(t *testing.T) {
		body, _ := json.Marshal(api.MemoryCreateRequest{Text: strings.Repeat("a", 8001)})
		h := NewMemoryHandler(&stubStore{}, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("dead embedder answers 503", func(t *testing.T) {
		st := &stubStore{storeFn: func(context.Context, store.StoreInput) (string, string, error) {
			return "", "", &embeddings.UnavailableError{Reason: "cannot reach"}
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(`{"text":"x"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "embedding_unavailable", decodeErr(t, rec).Error)
	})

	t.Run("dead qdrant answers 503", func(t *testing.T) {
		st := &stubStore{storeFn: func(context.Context, store.StoreInput) (string, string, error) {
			return "", "", &vectordb.ConnectionError{Op: "upsert", Err: errors.New("refused")}
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/memory", strings.NewReader(`{"text":"x"}`))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "qdrant_unavailable", decodeErr(t, rec).Error)
	})
}

func TestSearch(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		text := "hello"
		st := &stubStore{searchFn: func(_ context.Context, query string, topK int, includeText bool) ([]store.SearchHit, error) {
			assert.Equal(t, "greeting", query)
			assert.Equal(t, 5, topK)
			assert.True(t, includeText)
			return []store.SearchHit{{ID: "a", Score: 0.8, Tags: []string{}, Text: &text}}, nil
		}}
		h := NewSearchHandler(st, testValidator(), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"greeting"}`))
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp api.SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		require.NotNil(t, resp.Results[0].Text)
		assert.Equal(t, "hello", *resp.Results[0].Text)
	})

	t.Run("top_k out of range is rejected", func(t *testing.T) {
		h := NewSearchHandler(&stubStore{}, testValidator(), zap.NewNop())
		for _, body := range []string{
			`{"query":"q","top_k":51}`,
			`{"query":"q","top_k":0}`,
		} {
			req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.Search(rec, req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		}
	})

	t.Run("include_text false propagates", func(t *testing.T) {
		st := &stubStore{searchFn: func(_ context.Context, _ string, _ int, includeText bool) ([]store.SearchHit, error) {
			assert.False(t, includeText)
			return []store.SearchHit{}, nil
		}}
		h := NewSearchHandler(st, testValidator(), zap.NewNop())
		req := httptest.NewRequest(http.MethodPost, "/search",
			strings.NewReader(`{"query":"q","include_text":false}`))
		rec := httptest.NewRecorder()
		h.Search(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestIngestItemsFailIndependently(t *testing.T) {
	st := &stubStore{storeFn: func(_ context.Context, in store.StoreInput) (string, string, error) {
		if in.Text == "bad" {
			return "", "", &embeddings.UnavailableError{Reason: "down"}
		}
		return "id", "random", nil
	}}
	h := NewIngestHandler(st, testValidator(), zap.NewNop())

	body := `{"items":[{"text":"ok1"},{"text":"bad"},{"text":"ok2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp api.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Contains(t, resp.Errors[0].Error, "embedding_unavailable")
}

func TestIngestOverlongItemFailsWithoutStoreCall(t *testing.T) {
	var calls int
	st := &stubStore{storeFn: func(context.Context, store.StoreInput) (string, string, error) {
		calls++
		return "id", "random", nil
	}}
	h := NewIngestHandler(st, testValidator(), zap.NewNop())

	long := strings.Repeat("a", 8001)
	body, _ := json.Marshal(api.IngestRequest{Items: []api.IngestItem{
		{Text: "fine"}, {Text: long},
	}})
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	var resp api.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, calls)
}

func TestIngestRejectsOversizedBatch(t *testing.T) {
	items := make([]api.IngestItem, 101)
	for i := range items {
		items[i] = api.IngestItem{Text: "x"}
	}
	body, _ := json.Marshal(api.IngestRequest{Items: items})

	h := NewIngestHandler(&stubStore{}, testValidator(), zap.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestList(t *testing.T) {
	t.Run("returns memories and cursor", func(t *testing.T) {
		st := &stubStore{listFn: func(_ context.Context, limit int, cur string) ([]store.Memory, string, error) {
			assert.Equal(t, 20, limit)
			assert.Empty(t, cur)
			return []store.Memory{{ID: "m1", Text: "t", Tags: []string{}}}, "next-token", nil
		}}
		h := NewListHandler(st, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/memories", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp api.ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Memories, 1)
		require.NotNil(t, resp.NextCursor)
		assert.Equal(t, "next-token", *resp.NextCursor)
	})

	t.Run("exhausted listing has null cursor", func(t *testing.T) {
		st := &stubStore{listFn: func(context.Context, int, string) ([]store.Memory, string, error) {
			return []store.Memory{}, "", nil
		}}
		h := NewListHandler(st, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/memories", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Contains(t, rec.Body.String(), `"next_cursor":null`)
	})

	t.Run("tampered cursor answers 400", func(t *testing.T) {
		st := &stubStore{listFn: func(context.Context, int, string) ([]store.Memory, string, error) {
			return nil, "", cursor.ErrInvalidCursor
		}}
		h := NewListHandler(st, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/memories?cursor=deadbeef", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_cursor", decodeErr(t, rec).Error)
	})

	t.Run("limit bounds enforced", func(t *testing.T) {
		h := NewListHandler(&stubStore{}, zap.NewNop())
		for _, limit := range []string{"0", "101", "abc"} {
			req := httptest.NewRequest(http.MethodGet, "/memories?limit="+limit, nil)
			rec := httptest.NewRecorder()
			h.List(rec, req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "limit=%s", limit)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("deletes by path id", func(t *testing.T) {
		st := &stubStore{deleteFn: func(_ context.Context, id string) error {
			assert.Equal(t, "abc-123", id)
			return nil
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())

		req := httptest.NewRequest(http.MethodDelete, "/memory/abc-123", nil)
		req.SetPathValue("id", "abc-123")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"deleted"`)
	})

	t.Run("missing memory answers 404", func(t *testing.T) {
		st := &stubStore{deleteFn: func(context.Context, string) error {
			return store.ErrNotFound
		}}
		h := NewMemoryHandler(st, testValidator(), zap.NewNop())

		req := httptest.NewRequest(http.MethodDelete, "/memory/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeErr(t, rec).Error)
	})
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubProber struct{ avail embeddings.Availability }

func (s stubProber) IsAvailable(context.Context, time.Duration) embeddings.Availability {
	return s.avail
}

func TestHealth(t *testing.T) {
	run := func(pinger Pinger, prober AvailabilityProber) (*httptest.ResponseRecorder, api.HealthResponse) {
		h := NewHealthHandler(pinger, prober, time.Second, zap.NewNop())
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.Health(rec, req)
		var resp api.HealthResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return rec, resp
	}

	t.Run("both up is ok", func(t *testing.T) {
		rec, resp := run(stubPinger{}, stubProber{avail: embeddings.Up})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", resp.Status)
		require.NotNil(t, resp.Qdrant)
		require.NotNil(t, resp.Ollama)
		assert.True(t, *resp.Qdrant)
		assert.True(t, *resp.Ollama)
	})

	t.Run("dead embedder is degraded", func(t *testing.T) {
		rec, resp := run(stubPinger{}, stubProber{avail: embeddings.Down})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", resp.Status)
	})

	t.Run("dead vector db is unavailable", func(t *testing.T) {
		rec, resp := run(
			stubPinger{err: &vectordb.ConnectionError{Op: "ping", Err: errors.New("refused")}},
			stubProber{avail: embeddings.Up},
		)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", resp.Status)
		require.NotNil(t, resp.Qdrant)
		assert.False(t, *resp.Qdrant)
	})

	t.Run("probe timeouts report null", func(t *testing.T) {
		rec, _ := run(stubPinger{err: context.DeadlineExceeded}, stubProber{avail: embeddings.Unknown})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"qdrant":null`)
		assert.Contains(t, rec.Body.String(), `"ollama":null`)
	})
}
