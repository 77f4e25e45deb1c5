// Package identity derives stable storage ids from platform-native ids.
//
// Every write path keys its records by Derive(namespace, externalID), so a
// redelivered platform message, a retried webhook, or a racing duplicate all
// collapse onto the same row.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// Fixed namespaces, one per record kind. Never change these: derived ids are
// persisted and must stay stable across releases.
var (
	NamespaceMessage = uuid.MustParse("8f3c1d6a-4b2e-5a90-9c71-2d84f6b0e3a5")
	NamespaceRoom    = uuid.MustParse("c5a97e12-6d03-5f48-8b2a-91e4c7d0f6b3")
	NamespaceEntity  = uuid.MustParse("2b80f4c9-1e57-5d36-a6f8-0c3d92e18b74")
	NamespaceRun     = uuid.MustParse("e6d24a07-9c81-5b5f-b390-74f1a8c2d5e9")
)

// Derive maps (namespace, external id) to a stable UUIDv5 string. Pure and
// deterministic: the same inputs always yield the same id, on any process.
func Derive(namespace uuid.UUID, externalID string) string {
	return uuid.NewSHA1(namespace, []byte(strings.TrimSpace(externalID))).String()
}

// ForMessage derives the Memory id for a platform message.
// Channel-qualifying the external id keeps distinct platforms from colliding
// on short numeric ids.
func ForMessage(channel, externalID string) string {
	return Derive(NamespaceMessage, channel+":"+externalID)
}

// ForRoom derives the Room id for a platform conversation.
func ForRoom(channel, chatID string) string {
	return Derive(NamespaceRoom, channel+":"+chatID)
}

// ForEntity derives the Entity id for a platform participant.
func ForEntity(channel, senderID string) string {
	return Derive(NamespaceEntity, channel+":"+senderID)
}

// NewRunID returns a fresh id for one run of the pipeline. Runs are never
// redelivered, so these are random rather than derived.
func NewRunID() string {
	return uuid.NewString()
}
