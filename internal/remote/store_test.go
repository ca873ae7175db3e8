package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/richardjkendall/todoapp/internal/task"
)

func TestDecodeDocumentObjectForm(t *testing.T) {
	data := []byte(`{
		"version": "1.0",
		"exportedAt": "2025-01-02T03:04:05Z",
		"todos": [{"id": "1", "text": "hello", "timestamp": 100, "lastModified": 100}]
	}`)

	doc, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if len(doc.Todos) != 1 || doc.Todos[0].Text != "hello" {
		t.Errorf("unexpected todos: %+v", doc.Todos)
	}
}

func TestDecodeDocumentLegacyArray(t *testing.T) {
	data := []byte(`[{"id": "1", "text": "legacy", "timestamp": 100, "lastModified": 100}]`)

	doc, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed on legacy array: %v", err)
	}
	if doc.Version != DocumentVersion {
		t.Errorf("expected version %q, got %q", DocumentVersion, doc.Version)
	}
	if len(doc.Todos) != 1 || doc.Todos[0].Text != "legacy" {
		t.Errorf("unexpected todos: %+v", doc.Todos)
	}
}

func TestDecodeDocumentUnreadable(t *testing.T) {
	_, err := DecodeDocument([]byte(`{not json`))
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	col := task.FromSlice([]*task.Task{
		{ID: "1", Text: "one", Priority: 3, Timestamp: 100, LastModified: 100},
	})
	doc := NewDocument(col, time.UnixMilli(0))

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if task.Fingerprint(decoded.Collection()) != task.Fingerprint(col) {
		t.Error("round trip changed the collection fingerprint")
	}
}

func TestHTTPStoreLoadSave(t *testing.T) {
	var stored []byte
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodGet:
			if stored == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(stored)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			stored = body
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, StaticToken("tok-123"), nil)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	col := task.FromSlice([]*task.Task{
		{ID: "1", Text: "one", Priority: 3, Timestamp: 100, LastModified: 100},
	})
	if err := store.Save(ctx, NewDocument(col, time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}

	doc, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if task.Fingerprint(doc.Collection()) != task.Fingerprint(col) {
		t.Error("loaded collection differs from saved collection")
	}
}

func TestHTTPStoreAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, StaticToken("expired"), nil)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := store.Save(context.Background(), &Document{Version: DocumentVersion}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized on save, got %v", err)
	}
}

func TestHTTPStoreUnreadableBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{corrupt`))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, nil, nil)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}
