// Package mvcodec encodes map pool snapshots for persistence.
//
// An encoded snapshot is:
//
//  1. A header byte indicating the compression format,
//     possibly indicating uncompressed.
//  2. A varint indicating the length of the maybe-compressed data
//     (see [binary.AppendVarint]).
//  3. The maybe-compressed JSON document holding the maps and fetch time.
//
// Snappy compression is only used when it actually saves bytes.
package mvcodec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/kzmapvote/kzmapvote/mvmap"
)

const (
	uncompressedHeader byte = 0
	snappyHeader       byte = 1
)

// maxDecodedSize bounds the decompressed size we are willing to allocate.
// The full cs2kz pool encodes to well under a megabyte.
const maxDecodedSize = 64 << 20

var ErrTruncated = errors.New("encoded snapshot truncated")

type jsonEntry struct {
	Name       string `json:"name"`
	WorkshopID int64  `json:"workshop_id"`
	Tier       int    `json:"tier"`
}

type jsonSnapshot struct {
	FetchedAt time.Time   `json:"fetched_at"`
	Maps      []jsonEntry `json:"maps"`
}

// AppendSnapshot appends the encoded form of maps and fetchedAt to dst
// and returns the resulting slice.
func AppendSnapshot(dst []byte, maps []mvmap.Entry, fetchedAt time.Time) ([]byte, error) {
	js := jsonSnapshot{
		FetchedAt: fetchedAt.UTC(),
		Maps:      make([]jsonEntry, len(maps)),
	}
	for i, m := range maps {
		js.Maps[i] = jsonEntry{Name: m.Name, WorkshopID: m.WorkshopID, Tier: m.Tier}
	}

	j, err := json.Marshal(js)
	if err != nil {
		return dst, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if c := snappy.Encode(nil, j); len(c) < len(j) {
		dst = append(dst, snappyHeader)
		dst = binary.AppendVarint(dst, int64(len(c)))
		return append(dst, c...), nil
	}

	dst = append(dst, uncompressedHeader)
	dst = binary.AppendVarint(dst, int64(len(j)))
	return append(dst, j...), nil
}

// DecodeSnapshot parses a value produced by [AppendSnapshot].
func DecodeSnapshot(b []byte) (maps []mvmap.Entry, fetchedAt time.Time, err error) {
	if len(b) == 0 {
		return nil, time.Time{}, ErrTruncated
	}

	header := b[0]
	size, n := binary.Varint(b[1:])
	if n <= 0 {
		return nil, time.Time{}, fmt.Errorf("failed to read size: %w", ErrTruncated)
	}
	if size < 0 {
		return nil, time.Time{}, fmt.Errorf("invalid size %d: must not be negative", size)
	}

	rest := b[1+n:]
	if int64(len(rest)) < size {
		return nil, time.Time{}, fmt.Errorf(
			"have %d bytes of data, header declared %d: %w", len(rest), size, ErrTruncated,
		)
	}
	rest = rest[:size]

	var j []byte
	switch header {
	case uncompressedHeader:
		j = rest
	case snappyHeader:
		uSize, err := snappy.DecodedLen(rest)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to read decoded length: %w", err)
		}
		if uSize > maxDecodedSize {
			return nil, time.Time{}, fmt.Errorf(
				"decoded length %d exceeds maximum %d", uSize, maxDecodedSize,
			)
		}
		j, err = snappy.Decode(nil, rest)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode snappy data: %w", err)
		}
	default:
		return nil, time.Time{}, fmt.Errorf("unrecognized header byte %x", header)
	}

	var js jsonSnapshot
	if err := json.Unmarshal(j, &js); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	maps = make([]mvmap.Entry, len(js.Maps))
	for i, m := range js.Maps {
		maps[i] = mvmap.Entry{Name: m.Name, WorkshopID: m.WorkshopID, Tier: m.Tier}
	}
	return maps, js.FetchedAt, nil
}
