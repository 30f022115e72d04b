package main

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/crdt"
)

var snapshotBucket = []byte("snapshots")

// cache persists one canvas snapshot per room so the agent can render
// the last known board before the relay connection comes up.
type cache struct {
	db *bolt.DB
}

func openCache(path string) (*cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &cache{db: db}, nil
}

func (c *cache) Close() error { return c.db.Close() }

// Save overwrites the stored snapshot for a room.
func (c *cache) Save(roomID string, objects map[string]crdt.Object) error {
	data, err := crdt.EncodeState(objects)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(roomID), data)
	})
}

// Load returns the stored snapshot for a room, or nil when none exists.
func (c *cache) Load(roomID string) (map[string]crdt.Object, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(snapshotBucket).Get([]byte(roomID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return crdt.DecodeState(data)
}
