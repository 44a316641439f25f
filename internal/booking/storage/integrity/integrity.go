// Package integrity provides the hash helpers that keep the event journal
// tamper evident. Each stored event carries a content hash, and chain hashes
// link events so replay order can be verified after the fact.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// EventHash computes the content hash for a single event envelope. Field
// ordering is fixed here so the hash input cannot drift between layers.
func EventHash(evt event.Event) (string, error) {
	if strings.TrimSpace(evt.StreamID) == "" {
		return "", fmt.Errorf("stream id is required")
	}
	if evt.Type == "" {
		return "", fmt.Errorf("event type is required")
	}

	var b strings.Builder
	b.WriteString("stream=")
	b.WriteString(evt.StreamID)
	b.WriteString(";seq=")
	b.WriteString(strconv.FormatInt(evt.Seq, 10))
	b.WriteString(";type=")
	b.WriteString(string(evt.Type))
	b.WriteString(";ts=")
	b.WriteString(strconv.FormatInt(evt.Timestamp.UTC().UnixMilli(), 10))
	b.WriteString(";entity=")
	b.WriteString(evt.EntityType)
	b.WriteString("/")
	b.WriteString(evt.EntityID)
	b.WriteString(";request=")
	b.WriteString(evt.RequestID)
	b.WriteString(";payload=")
	b.Write(evt.PayloadJSON)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes the SHA-256 hash linking an event to its predecessor.
// The first event of a stream uses an empty previous hash.
func ChainHash(evt event.Event, prevHash string) (string, error) {
	eventHash := evt.Hash
	if eventHash == "" {
		var err error
		eventHash, err = EventHash(evt)
		if err != nil {
			return "", err
		}
	}
	sum := sha256.Sum256([]byte(prevHash + "|" + eventHash))
	return hex.EncodeToString(sum[:]), nil
}
