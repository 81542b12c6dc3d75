// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lectern/core"
)

// MarshalIndexEntry serializes an IndexEntry to bytes.
// Layout: passage id, document id, ordinal, vector length, float32s.
func MarshalIndexEntry(entry *core.IndexEntry) []byte {
	size := ord.String.Size(string(entry.PassageId)) +
		ord.String.Size(string(entry.DocumentId)) +
		varint.Int.Size(entry.Ordinal) +
		varint.Int.Size(len(entry.Vector))
	for _, f := range entry.Vector {
		size += raw.Float32.Size(f)
	}

	buf := make([]byte, size)
	n := ord.String.Marshal(string(entry.PassageId), buf)
	n += ord.String.Marshal(string(entry.DocumentId), buf[n:])
	n += varint.Int.Marshal(entry.Ordinal, buf[n:])
	n += varint.Int.Marshal(len(entry.Vector), buf[n:])
	for _, f := range entry.Vector {
		n += raw.Float32.Marshal(f, buf[n:])
	}
	return buf
}

// UnmarshalIndexEntry deserializes an IndexEntry from bytes.
func UnmarshalIndexEntry(data []byte) (*core.IndexEntry, error) {
	var entry core.IndexEntry

	passageID, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: passage id: %w", ErrSerializationFailed, err)
	}
	off := n

	documentID, n, err := ord.String.Unmarshal(data[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: document id: %w", ErrSerializationFailed, err)
	}
	off += n

	entry.Ordinal, n, err = varint.Int.Unmarshal(data[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: ordinal: %w", ErrSerializationFailed, err)
	}
	off += n

	length, n, err := varint.Int.Unmarshal(data[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: vector length: %w", ErrSerializationFailed, err)
	}
	off += n

	if length < 0 || length*4 > len(data)-off {
		return nil, fmt.Errorf("%w: vector of %d floats in %d bytes", ErrTruncatedData, length, len(data)-off)
	}

	entry.Vector = make([]float32, length)
	for i := range entry.Vector {
		entry.Vector[i], n, err = raw.Float32.Unmarshal(data[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: vector[%d]: %w", ErrSerializationFailed, i, err)
		}
		off += n
	}

	entry.PassageId = core.ID(passageID)
	entry.DocumentId = core.ID(documentID)
	return &entry, nil
}

// MarshalTimestamp serializes a time as Unix microseconds.
func MarshalTimestamp(t time.Time) []byte {
	v := t.UnixMicro()
	buf := make([]byte, varint.Int64.Size(v))
	varint.Int64.Marshal(v, buf)
	return buf
}

// UnmarshalTimestamp deserializes a time written by MarshalTimestamp.
func UnmarshalTimestamp(data []byte) (time.Time, error) {
	v, _, err := varint.Int64.Unmarshal(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %w", ErrSerializationFailed, err)
	}
	return time.UnixMicro(v).UTC(), nil
}

// MarshalInt serializes an int as a varint.
func MarshalInt(v int) []byte {
	buf := make([]byte, varint.Int.Size(v))
	varint.Int.Marshal(v, buf)
	return buf
}

// UnmarshalInt deserializes an int written by MarshalInt.
func UnmarshalInt(data []byte) (int, error) {
	v, _, err := varint.Int.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: int: %w", ErrSerializationFailed, err)
	}
	return v, nil
}
