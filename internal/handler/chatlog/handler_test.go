package chatlog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/handler/chatlog"
	chatmodel "github.com/aplatt/steamrail/backend/internal/model/chat"
	chatservice "github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/internal/store"
)

func newServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	relay := chatservice.NewRelay(session.NewStore(), st, zerolog.Nop())

	r := chi.NewRouter()
	chatlog.New(relay, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func TestPublicChatLogEmpty(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/public_chat_log")
	if err != nil {
		t.Fatalf("GET err: %v", err)
	}
	defer resp.Body.Close()

	var records []chatmodel.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty array, got %d", len(records))
	}
}

func TestPublicChatLogLastFiveOldestFirst(t *testing.T) {
	srv, st := newServer(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 9; i++ {
		rec := chatmodel.Record{
			ID:        fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Username:  "u",
			Message:   fmt.Sprintf("msg %d", i),
		}
		if err := st.AppendChat(ctx, rec); err != nil {
			t.Fatalf("AppendChat err: %v", err)
		}
	}

	resp, err := http.Get(srv.URL + "/public_chat_log")
	if err != nil {
		t.Fatalf("GET err: %v", err)
	}
	defer resp.Body.Close()

	var records []chatmodel.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if records[0].Message != "msg 4" || records[4].Message != "msg 8" {
		t.Fatalf("unexpected window: first=%q last=%q", records[0].Message, records[4].Message)
	}
}
