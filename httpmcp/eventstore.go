// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package httpmcp implements the HTTP server session layer: a single
// endpoint accepting POST/GET/DELETE, stateful sessions keyed by
// Mcp-Session-Id with SSE resumability, and a stateless variant for
// simple request/response exchanges.
package httpmcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrForeignEventID is returned by ReplayAfter when lastEventID's trailing
// checksum does not match the stream id it claims to belong to: the id
// was not issued by this store for that stream (forged, corrupted in
// transit, or replayed against the wrong session's store). The check is
// a cheap hash comparison against the id's own bytes, so a forged id is
// rejected before this store ever takes its lock or touches the
// per-stream ring.
var ErrForeignEventID = errors.New("httpmcp: event id fails stream checksum")

// eventRecord is one buffered SSE frame, keyed by its position in the
// stream it belongs to.
type eventRecord struct {
	idx     int64
	payload []byte
}

// EventStore buffers SSE frames per logical stream so that a client that
// reconnects with Last-Event-Id can resume exactly where it left off. It
// keeps the most recent maxPerStream events and silently drops older
// ones, bounding memory per session; resuming from a
// long-expired-but-legitimate id yields an empty replay set rather than
// an error.
type EventStore struct {
	mu           sync.Mutex
	maxPerStream int
	streams      map[string][]eventRecord
	nextIdx      map[string]int64
}

// NewEventStore constructs an EventStore retaining at most maxPerStream
// events per stream. maxPerStream <= 0 means unbounded.
func NewEventStore(maxPerStream int) *EventStore {
	return &EventStore{
		maxPerStream: maxPerStream,
		streams:      make(map[string][]eventRecord),
		nextIdx:      make(map[string]int64),
	}
}

// Put appends payload to streamID's buffer and returns the SSE event id
// assigned to it.
func (s *EventStore) Put(streamID string, payload []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nextIdx[streamID]
	s.nextIdx[streamID] = idx + 1

	rec := eventRecord{idx: idx, payload: payload}
	records := append(s.streams[streamID], rec)
	if s.maxPerStream > 0 && len(records) > s.maxPerStream {
		records = records[len(records)-s.maxPerStream:]
	}
	s.streams[streamID] = records

	return formatEventID(streamID, idx)
}

// ReplayAfter returns every buffered event with a strictly greater index
// than lastEventID, in order. If lastEventID names a stream this store
// has discarded, or an index older than what remains buffered, it returns
// an empty slice: the caller should treat this as "nothing to replay,
// resume live delivery" rather than an error. If lastEventID's embedded
// checksum doesn't match its claimed stream id, it returns
// ErrForeignEventID without consulting the ring at all.
func (s *EventStore) ReplayAfter(lastEventID string) ([]struct {
	ID      string
	Payload []byte
}, error) {
	streamID, idx, err := parseEventID(lastEventID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	records := s.streams[streamID]
	expired := len(records) > 0 && idx+1 < records[0].idx
	s.mu.Unlock()
	if expired {
		// Events after lastEventID have already been evicted: a partial
		// replay would leave a gap, so replay nothing.
		return nil, nil
	}
	return s.Events(streamID, idx), nil
}

// Events returns the buffered events for streamID with an index strictly
// greater than afterIdx, as (eventID, payload) pairs.
func (s *EventStore) Events(streamID string, afterIdx int64) []struct {
	ID      string
	Payload []byte
} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []struct {
		ID      string
		Payload []byte
	}
	for _, rec := range s.streams[streamID] {
		if rec.idx > afterIdx {
			out = append(out, struct {
				ID      string
				Payload []byte
			}{ID: formatEventID(streamID, rec.idx), Payload: rec.payload})
		}
	}
	return out
}

// DiscardStream releases all buffered events for streamID.
func (s *EventStore) DiscardStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamID)
	delete(s.nextIdx, streamID)
}

// streamChecksum hashes streamID so formatEventID/parseEventID can embed a
// cheap integrity check of which stream an event id belongs to, directly
// in the id's own bytes.
func streamChecksum(streamID string) uint64 {
	return xxhash.Sum64String(streamID)
}

// formatEventID renders a stream-relative index, plus a checksum of
// streamID, as the opaque id exposed on the wire as the SSE "id:" field
// and accepted back as Last-Event-Id.
func formatEventID(streamID string, idx int64) string {
	return fmt.Sprintf("%s_%d_%x", streamID, idx, streamChecksum(streamID))
}

// parseEventID is formatEventID's inverse. It rejects an id whose
// trailing checksum does not match the stream id it claims, before the
// caller ever looks that stream up in the ring.
func parseEventID(eventID string) (streamID string, idx int64, err error) {
	lastUnderscore := strings.LastIndexByte(eventID, '_')
	if lastUnderscore < 0 {
		return "", 0, fmt.Errorf("httpmcp: malformed event id %q", eventID)
	}
	checksumHex := eventID[lastUnderscore+1:]
	rest := eventID[:lastUnderscore]

	secondUnderscore := strings.LastIndexByte(rest, '_')
	if secondUnderscore < 0 {
		return "", 0, fmt.Errorf("httpmcp: malformed event id %q", eventID)
	}
	idxStr := rest[secondUnderscore+1:]
	streamID = rest[:secondUnderscore]

	idx, err = strconv.ParseInt(idxStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("httpmcp: malformed event id %q: %w", eventID, err)
	}
	wantChecksum, err := strconv.ParseUint(checksumHex, 16, 64)
	if err != nil {
		return "", 0, fmt.Errorf("httpmcp: malformed event id %q: %w", eventID, err)
	}
	if wantChecksum != streamChecksum(streamID) {
		return "", 0, ErrForeignEventID
	}
	return streamID, idx, nil
}
