// Package store persists successfully evaluated remote code so scene
// definitions survive a restart.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketJournal = "journal"

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Entry is one journaled evaluation.
type Entry struct {
	Seq  int
	Code string
}

// Journal is an append-only log of evaluated code backed by bbolt.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketJournal))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records code and returns its sequence number.
func (j *Journal) Append(code string) (int, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketJournal))
		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), []byte(code))
	})
	return int(seq), err
}

// Each calls f for every entry in append order. It stops at the first error
// f returns.
func (j *Journal) Each(f func(Entry) error) error {
	if j.db == nil {
		return ErrClosed
	}
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketJournal)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entries = append(entries, Entry{Seq: int(unmarshalSeq(k)), Code: string(v)})
		}
		return nil
	})
	if err != nil {
		return err
	}
	// f may append, so it runs outside the read transaction.
	for _, e := range entries {
		if err := f(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries.
func (j *Journal) Len() (int, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketJournal)).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes every entry.
func (j *Journal) Clear() error {
	if j.db == nil {
		return ErrClosed
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketJournal)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketJournal))
		return err
	})
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
