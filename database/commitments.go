// Copyright 2026 Blink Labs Software
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

package database

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/identity"
	badger "github.com/dgraph-io/badger/v4"
)

var commitmentKeyPrefix = []byte("commitment")

// commitmentKey encodes a commitment key as
// prefix || kind(1) || subject id (8, big-endian) || approver (20)
func commitmentKey(key commitment.Key) []byte {
	ret := make(
		[]byte,
		0,
		len(commitmentKeyPrefix)+1+8+identity.AddressLength,
	)
	ret = append(ret, commitmentKeyPrefix...)
	ret = append(ret, byte(key.Kind))
	ret = binary.BigEndian.AppendUint64(ret, key.SubjectId)
	ret = append(ret, key.Approver[:]...)
	return ret
}

// SetCommitment writes a commitment record to the key-value store. The
// value is the digest followed by the commit timestamp in nanoseconds.
func (d *Database) SetCommitment(
	key commitment.Key,
	digest [commitment.DigestSize]byte,
	committedAt time.Time,
) error {
	value := make([]byte, 0, commitment.DigestSize+8)
	value = append(value, digest[:]...)
	value = binary.BigEndian.AppendUint64(
		value,
		uint64(committedAt.UnixNano()), // #nosec G115
	)
	return d.commitments.Update(func(txn *badger.Txn) error {
		return txn.Set(commitmentKey(key), value)
	})
}

// DeleteCommitment removes a commitment record from the key-value store
func (d *Database) DeleteCommitment(key commitment.Key) error {
	return d.commitments.Update(func(txn *badger.Txn) error {
		return txn.Delete(commitmentKey(key))
	})
}

// ListCommitments retrieves all commitment records from the key-value
// store
func (d *Database) ListCommitments() (
	map[commitment.Key]commitment.Commitment,
	error,
) {
	ret := make(map[commitment.Key]commitment.Commitment)
	err := d.commitments.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = commitmentKeyPrefix
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			rawKey := item.Key()
			if len(rawKey) != len(commitmentKeyPrefix)+1+8+identity.AddressLength {
				return fmt.Errorf(
					"malformed commitment key: %x",
					rawKey,
				)
			}
			tmpKey := rawKey[len(commitmentKeyPrefix):]
			key := commitment.Key{
				Kind:      commitment.SubjectKind(tmpKey[0]),
				SubjectId: binary.BigEndian.Uint64(tmpKey[1:9]),
			}
			copy(key.Approver[:], tmpKey[9:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(value) != commitment.DigestSize+8 {
				return fmt.Errorf(
					"malformed commitment value for key %x",
					rawKey,
				)
			}
			var entry commitment.Commitment
			copy(entry.Digest[:], value[:commitment.DigestSize])
			entry.CommittedAt = time.Unix(
				0,
				int64(binary.BigEndian.Uint64(value[commitment.DigestSize:])), // #nosec G115
			)
			ret[key] = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
