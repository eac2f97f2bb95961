package session

import (
	"testing"

	"github.com/wfunc/dominoserver/network/networktest"
)

func newTestSession(userID, room string) *Session {
	return NewSession(networktest.NewConn(), userID, "name-"+userID, room)
}

func TestNewSession(t *testing.T) {
	s := newTestSession("u1", "mesa")
	if s.ID == "" {
		t.Fatal("session id should be generated")
	}
	if s.GetID() != "u1" {
		t.Errorf("expected user id u1, got %s", s.GetID())
	}
	if s.LastActive().IsZero() {
		t.Error("last active should be set")
	}
}

func TestManager_BindReturnsPrevious(t *testing.T) {
	m := NewManager()
	first := newTestSession("u1", "mesa")
	second := newTestSession("u1", "mesa")

	if prev := m.Bind(first); prev != nil {
		t.Fatalf("expected no previous session, got %v", prev.ID)
	}
	if prev := m.Bind(second); prev != first {
		t.Fatal("second bind should return the first session")
	}
	if prev := m.Bind(second); prev != nil {
		t.Fatal("rebinding the same session should not return it")
	}

	got, ok := m.Get("u1")
	if !ok || got != second {
		t.Fatal("live session should be the newest")
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 session, got %d", m.Count())
	}
}

func TestManager_UnbindIgnoresReplacedSession(t *testing.T) {
	m := NewManager()
	old := newTestSession("u1", "mesa")
	current := newTestSession("u1", "mesa")
	m.Bind(old)
	m.Bind(current)

	if m.Unbind(old) {
		t.Fatal("replaced session must not unbind the live one")
	}
	if _, ok := m.Get("u1"); !ok {
		t.Fatal("live session was removed")
	}
	if !m.Unbind(current) {
		t.Fatal("live session should unbind")
	}
	if _, ok := m.Get("u1"); ok {
		t.Fatal("session should be gone")
	}
}

func TestManager_LobbyAndRoom(t *testing.T) {
	m := NewManager()
	m.Bind(newTestSession("a", ""))
	m.Bind(newTestSession("b", ""))
	m.Bind(newTestSession("c", "mesa"))

	if n := len(m.Lobby()); n != 2 {
		t.Errorf("expected 2 lobby observers, got %d", n)
	}
	if n := len(m.InRoom("mesa")); n != 1 {
		t.Errorf("expected 1 room session, got %d", n)
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager()
	a := newTestSession("a", "")
	m.Bind(a)
	m.CloseAll()
	if !a.Conn.(*networktest.Conn).Closed() {
		t.Error("connection should be closed")
	}
}
