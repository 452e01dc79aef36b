package session_test

import (
	"testing"
	"time"

	sessionmodel "github.com/aplatt/steamrail/backend/internal/model/session"
	"github.com/aplatt/steamrail/backend/internal/service/session"
)

func TestCreateMintsUnguessableTokens(t *testing.T) {
	store := session.NewStore()

	a := store.Create()
	b := store.Create()

	if a.Token == "" || b.Token == "" {
		t.Fatal("expected non-empty tokens")
	}
	if a.Token == b.Token {
		t.Fatal("expected distinct tokens")
	}
	if len(a.Token) != 64 {
		t.Fatalf("expected 32 random bytes hex encoded, got %d chars", len(a.Token))
	}
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	store := session.NewStore()
	orig := store.Create()

	rotated := store.Rotate(orig.Token)
	if rotated.Token == orig.Token {
		t.Fatal("rotation must mint a new token")
	}
	if _, ok := store.Resolve(orig.Token); ok {
		t.Fatal("old token must never resolve after rotation")
	}
	if _, ok := store.Resolve(rotated.Token); !ok {
		t.Fatal("rotated token must resolve")
	}
}

func TestRotateCarriesLinkedIdentity(t *testing.T) {
	store := session.NewStore()
	orig := store.Create()

	if !store.LinkIdentity(orig.Token, sessionmodel.ExternalIdentity{ID: "42", DisplayName: "conductor"}) {
		t.Fatal("link failed for live token")
	}

	rotated := store.Rotate(orig.Token)
	got, ok := store.Resolve(rotated.Token)
	if !ok {
		t.Fatal("rotated token must resolve")
	}
	if !got.Linked() || got.Identity.ID != "42" {
		t.Fatalf("identity not carried over rotation: %+v", got.Identity)
	}
}

func TestRotateUnknownTokenDegradesToCreate(t *testing.T) {
	store := session.NewStore()

	sess := store.Rotate("stale-or-forged")
	if sess.Token == "" || sess.Token == "stale-or-forged" {
		t.Fatalf("expected fresh token, got %q", sess.Token)
	}
	if sess.Linked() {
		t.Fatal("fresh anonymous session must not carry an identity")
	}
	if _, ok := store.Resolve(sess.Token); !ok {
		t.Fatal("minted session must resolve")
	}
}

func TestLinkIdentityIdempotent(t *testing.T) {
	store := session.NewStore()
	sess := store.Create()
	identity := sessionmodel.ExternalIdentity{ID: "9", DisplayName: "driver"}

	if !store.LinkIdentity(sess.Token, identity) {
		t.Fatal("first link failed")
	}
	if !store.LinkIdentity(sess.Token, identity) {
		t.Fatal("repeated link must succeed")
	}

	got, _ := store.Resolve(sess.Token)
	if got.Identity == nil || got.Identity.ID != "9" {
		t.Fatalf("unexpected identity: %+v", got.Identity)
	}
}

func TestLinkIdentityUnknownToken(t *testing.T) {
	store := session.NewStore()
	if store.LinkIdentity("missing", sessionmodel.ExternalIdentity{ID: "1"}) {
		t.Fatal("link must report failure for unknown token")
	}
}

func TestExpireIdleSkipsActiveSessions(t *testing.T) {
	store := session.NewStore()
	idle := store.Create()
	active := store.Create()

	time.Sleep(5 * time.Millisecond)

	dropped := store.ExpireIdle(time.Millisecond, map[string]bool{active.Token: true})
	if dropped != 1 {
		t.Fatalf("expected 1 expired session, got %d", dropped)
	}
	if _, ok := store.Resolve(idle.Token); ok {
		t.Fatal("idle session should be gone")
	}
	if _, ok := store.Resolve(active.Token); !ok {
		t.Fatal("session with a live connection must survive the sweep")
	}
}

func TestTouchRefreshesLastSeen(t *testing.T) {
	store := session.NewStore()
	sess := store.Create()

	time.Sleep(5 * time.Millisecond)
	store.Touch(sess.Token)

	if dropped := store.ExpireIdle(3*time.Millisecond, nil); dropped != 0 {
		t.Fatalf("touched session expired, dropped=%d", dropped)
	}
}
