// Copyright 2024 The aggexec Authors.
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

package rowexec

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/satori/go.uuid"

	"github.com/dolthub/aggexec/sql"
)

// boltTempFileService implements sql.TempFileService on top of a single
// boltdb file, one bucket per named TempFile -- the "sequential write then
// rewind-and-read" temp-file service spec §1 asks for, reused here for the
// hybrid hash engine's batch files (spec §4.4) instead of hand-rolled binary
// framing, which is exactly the grounding SPEC_FULL.md's DOMAIN STACK
// section gives for this dependency.
type boltTempFileService struct {
	db *bolt.DB
}

var _ sql.TempFileService = (*boltTempFileService)(nil)

// NewBoltTempFileService opens (creating if necessary) a boltdb file under
// dir, naming it with a fresh uuid so concurrent queries never collide on
// the same file.
func NewBoltTempFileService(dir string) (sql.TempFileService, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "aggexec-spill-")
		if err != nil {
			return nil, sql.ErrSpillIO.New(err.Error())
		}
		dir = d
	}
	path := filepath.Join(dir, uuid.NewV4().String()+".db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, sql.ErrSpillIO.New(err.Error())
	}
	return &boltTempFileService{db: db}, nil
}

func (s *boltTempFileService) NewFile(ctx *sql.Context, name string) (sql.TempFile, error) {
	bucket := []byte(name)
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, sql.ErrSpillIO.New(err.Error())
	}
	return &boltTempFile{db: s.db, bucket: bucket}, nil
}

// Close releases the underlying boltdb handle once every batch file has
// been unlinked.
func (s *boltTempFileService) Close() error {
	return s.db.Close()
}

// boltTempFile is one "file": a bolt bucket addressed by monotonically
// increasing sequence numbers, with the record's caller-supplied hash key
// stored as an 8-byte prefix so ReadRecord can hand it back without a
// separate index.
type boltTempFile struct {
	db     *bolt.DB
	bucket []byte

	tx       *bolt.Tx
	cursor   *bolt.Cursor
	started  bool
	writeN   uint64
	readN    uint64
}

var _ sql.TempFile = (*boltTempFile)(nil)

func (f *boltTempFile) WriteRecord(ctx *sql.Context, key uint64, data []byte) error {
	err := f.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		buf := make([]byte, 8+len(data))
		binary.BigEndian.PutUint64(buf[:8], key)
		copy(buf[8:], data)
		return b.Put(k[:], buf)
	})
	if err != nil {
		return sql.ErrSpillIO.New(err.Error())
	}
	f.writeN++
	return nil
}

func (f *boltTempFile) Rewind(ctx *sql.Context) error {
	if f.tx != nil {
		_ = f.tx.Rollback()
	}
	tx, err := f.db.Begin(false)
	if err != nil {
		return sql.ErrSpillIO.New(err.Error())
	}
	f.tx = tx
	f.cursor = tx.Bucket(f.bucket).Cursor()
	f.started = false
	f.readN = 0
	return nil
}

func (f *boltTempFile) ReadRecord(ctx *sql.Context) (uint64, []byte, error) {
	if f.cursor == nil {
		if err := f.Rewind(ctx); err != nil {
			return 0, nil, err
		}
	}
	var k, v []byte
	if !f.started {
		k, v = f.cursor.First()
		f.started = true
	} else {
		k, v = f.cursor.Next()
	}
	if k == nil {
		if f.readN != f.writeN {
			return 0, nil, sql.ErrSpillCorruption.New(string(f.bucket), f.writeN, f.readN)
		}
		return 0, nil, io.EOF
	}
	f.readN++
	key := binary.BigEndian.Uint64(v[:8])
	data := append([]byte(nil), v[8:]...)
	return key, data, nil
}

func (f *boltTempFile) Unlink(ctx *sql.Context) error {
	if f.tx != nil {
		_ = f.tx.Rollback()
		f.tx = nil
	}
	err := f.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket(f.bucket)
	})
	if err != nil {
		return sql.ErrSpillIO.New(err.Error())
	}
	return nil
}
