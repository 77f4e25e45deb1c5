package identity

import "testing"

func TestDerive_Deterministic(t *testing.T) {
	a := Derive(NamespaceMessage, "discord:12345")
	b := Derive(NamespaceMessage, "discord:12345")
	if a != b {
		t.Fatalf("expected identical ids, got %s and %s", a, b)
	}
}

func TestDerive_DistinctNamespaces(t *testing.T) {
	msg := Derive(NamespaceMessage, "12345")
	room := Derive(NamespaceRoom, "12345")
	entity := Derive(NamespaceEntity, "12345")
	if msg == room || msg == entity || room == entity {
		t.Fatalf("namespaces must not collide: %s %s %s", msg, room, entity)
	}
}

func TestDerive_TrimsWhitespace(t *testing.T) {
	if Derive(NamespaceMessage, " 42 ") != Derive(NamespaceMessage, "42") {
		t.Fatalf("expected whitespace-insensitive derivation")
	}
}

func TestForMessage_ChannelQualified(t *testing.T) {
	if ForMessage("discord", "42") == ForMessage("telegram", "42") {
		t.Fatalf("same external id on different channels must not collide")
	}
}

func TestNewRunID_Unique(t *testing.T) {
	if NewRunID() == NewRunID() {
		t.Fatalf("run ids must be unique")
	}
}
