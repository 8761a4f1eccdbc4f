// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairchat/pairchat/identity"
	"github.com/pairchat/pairchat/pairing"
	"github.com/pairchat/pairchat/transcript"
)

// memoryStore is an in-memory transcript.Store for transport tests.
type memoryStore struct {
	mu          sync.Mutex
	discussions map[string]*transcript.Discussion
}

func newMemoryStore() *memoryStore {
	return &memoryStore{discussions: make(map[string]*transcript.Discussion)}
}

func (s *memoryStore) key(a, b string) string {
	low, high := transcript.PairKey(a, b)
	return low + "/" + high
}

func (s *memoryStore) FindOrCreateDiscussion(ctx context.Context, a, b string) (*transcript.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(a, b)
	if discussion, ok := s.discussions[key]; ok {
		return discussion, nil
	}
	low, high := transcript.PairKey(a, b)
	discussion := &transcript.Discussion{
		ID:           fmt.Sprintf("d-%d", len(s.discussions)+1),
		Participants: [2]string{low, high},
	}
	s.discussions[key] = discussion
	return discussion, nil
}

func (s *memoryStore) Discussion(ctx context.Context, a, b string) (*transcript.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	discussion, ok := s.discussions[s.key(a, b)]
	if !ok {
		return nil, transcript.ErrNotFound
	}
	return discussion, nil
}

func (s *memoryStore) AppendMessage(ctx context.Context, a, b string, message transcript.Message) error {
	if message.Kind.Ephemeral() {
		return transcript.ErrEphemeral
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	discussion, ok := s.discussions[s.key(a, b)]
	if !ok {
		return transcript.ErrNotFound
	}
	discussion.Messages = append(discussion.Messages, message)
	return nil
}

// tokenVerifier resolves literal tokens.
type tokenVerifier struct {
	tokens map[string]identity.Identity
}

func (v *tokenVerifier) Resolve(ctx context.Context, credential string) (identity.Identity, error) {
	ident, ok := v.tokens[credential]
	if !ok {
		return identity.Identity{}, identity.ErrUnauthorized
	}
	return ident, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := newMemoryStore()
	registry := pairing.NewRegistry()
	engine := pairing.NewEngine(pairing.EngineConfig{Registry: registry, Store: store})
	broadcaster := pairing.NewBroadcaster(pairing.BroadcasterConfig{
		Registry: registry,
		Engine:   engine,
		Store:    store,
	})
	feed := pairing.NewObserverFeed(engine, nil, time.Second, logger)

	handler := NewSocketHandler(SocketHandlerConfig{
		Verifier: &tokenVerifier{tokens: map[string]identity.Identity{
			"ada-token":     {Name: "ada"},
			"walter-token":  {Name: "walter"},
			"teacher-token": {Name: "teacher", Privileged: true},
		}},
		Engine:      engine,
		Broadcaster: broadcaster,
		Feed:        feed,
		Logger:      logger,
	})
	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"hubtoken": []string{token}})
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) pairing.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event pairing.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	return event
}

// expectEvent reads until an event of the wanted type arrives, failing
// on anything unexpected in between except further snapshots.
func expectEvent(t *testing.T, conn *websocket.Conn, want pairing.EventType) pairing.Event {
	t.Helper()
	for range 10 {
		event := readEvent(t, conn)
		if event.Type == want {
			return event
		}
		if event.Type == pairing.EventObserverSnapshot {
			continue
		}
		t.Fatalf("event type = %q, want %q", event.Type, want)
	}
	t.Fatalf("no %q event after 10 frames", want)
	return pairing.Event{}
}

func TestHandshakeRejectsUnknownToken(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "wrong-token")

	verdict := readEvent(t, conn)
	if verdict.Type != pairing.EventAccepted {
		t.Fatalf("first event = %q, want accepted", verdict.Type)
	}
	if verdict.Accepted == nil || *verdict.Accepted {
		t.Error("rejected connection got accepted=true")
	}

	// Nothing follows the verdict; the server closes.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var discarded pairing.Event
	if err := conn.ReadJSON(&discarded); err == nil {
		t.Errorf("event after rejection: %+v", discarded)
	}
}

func TestHandshakeAccepted(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "ada-token")

	verdict := readEvent(t, conn)
	if verdict.Type != pairing.EventAccepted || verdict.Accepted == nil || !*verdict.Accepted {
		t.Fatalf("verdict = %+v, want accepted=true", verdict)
	}
}

func TestPairAndExchangeMessages(t *testing.T) {
	server := newTestServer(t)
	ada := dial(t, server, "ada-token")
	expectEvent(t, ada, pairing.EventAccepted)
	walter := dial(t, server, "walter-token")
	expectEvent(t, walter, pairing.EventAccepted)

	adaPairing := expectEvent(t, ada, pairing.EventFoundPair)
	walterPairing := expectEvent(t, walter, pairing.EventFoundPair)
	if adaPairing.Pairing.Partner != "walter" {
		t.Errorf("ada partner = %q, want walter", adaPairing.Pairing.Partner)
	}
	if walterPairing.Pairing.Partner != "ada" {
		t.Errorf("walter partner = %q, want ada", walterPairing.Pairing.Partner)
	}

	frame := `{"type":"msg","content":"hello <script>alert(1)</script>walter"}`
	if err := ada.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("sending frame: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"ada": ada, "walter": walter} {
		event := expectEvent(t, conn, pairing.EventMessage)
		if event.Message.Sender != "ada" {
			t.Errorf("%s: sender = %q, want ada", name, event.Message.Sender)
		}
		if strings.Contains(event.Message.Content, "<script") {
			t.Errorf("%s: unsanitized content %q", name, event.Message.Content)
		}
		if !strings.Contains(event.Message.Content, "walter") {
			t.Errorf("%s: content lost text: %q", name, event.Message.Content)
		}
	}
}

func TestUnpairFrame(t *testing.T) {
	server := newTestServer(t)
	ada := dial(t, server, "ada-token")
	expectEvent(t, ada, pairing.EventAccepted)
	walter := dial(t, server, "walter-token")
	expectEvent(t, walter, pairing.EventAccepted)
	expectEvent(t, ada, pairing.EventFoundPair)
	expectEvent(t, walter, pairing.EventFoundPair)

	if err := ada.WriteMessage(websocket.TextMessage, []byte(`{"type":"unpair"}`)); err != nil {
		t.Fatalf("sending frame: %v", err)
	}

	expectEvent(t, ada, pairing.EventPairDisconnected)
	expectEvent(t, walter, pairing.EventPairDisconnected)
}

func TestPairWithUserFrame(t *testing.T) {
	server := newTestServer(t)
	ada := dial(t, server, "ada-token")
	expectEvent(t, ada, pairing.EventAccepted)

	// walter is not waiting, so an explicit request names an
	// unavailable target.
	frame := `{"type":"pairWithUser","target":"walter"}`
	if err := ada.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("sending frame: %v", err)
	}
	expectEvent(t, ada, pairing.EventTargetUnavailable)
}

func TestObserverReceivesSnapshots(t *testing.T) {
	server := newTestServer(t)
	ada := dial(t, server, "ada-token")
	expectEvent(t, ada, pairing.EventAccepted)

	teacher := dial(t, server, "teacher-token")
	expectEvent(t, teacher, pairing.EventAccepted)

	snapshot := expectEvent(t, teacher, pairing.EventObserverSnapshot)
	if len(snapshot.Snapshot.Waiting) != 1 || snapshot.Snapshot.Waiting[0] != "ada" {
		t.Errorf("snapshot waiting = %v, want [ada]", snapshot.Snapshot.Waiting)
	}
}

func TestObserverFramesAreIgnored(t *testing.T) {
	server := newTestServer(t)
	ada := dial(t, server, "ada-token")
	expectEvent(t, ada, pairing.EventAccepted)

	teacher := dial(t, server, "teacher-token")
	expectEvent(t, teacher, pairing.EventAccepted)

	// An observer asking to pair must not touch the queue: ada keeps
	// waiting alone and the observer hears only snapshots.
	frame := `{"type":"pairWithUser","target":"ada"}`
	if err := teacher.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("sending frame: %v", err)
	}

	snapshot := expectEvent(t, teacher, pairing.EventObserverSnapshot)
	if len(snapshot.Snapshot.Waiting) != 1 || snapshot.Snapshot.Waiting[0] != "ada" {
		t.Errorf("snapshot waiting = %v, want [ada]", snapshot.Snapshot.Waiting)
	}
}
