package store

import (
	"fmt"

	"github.com/golang/glog"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("client")

// Bolt implements KV on a single-bucket bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %v", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create bucket: %v", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(key string) (string, bool) {
	var value string
	var ok bool
	if err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			value = string(v)
			ok = true
		}
		return nil
	}); err != nil {
		glog.Errorf("store: get %s: %v", key, err)
		return "", false
	}
	return value, ok
}

func (b *Bolt) Set(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (b *Bolt) Delete(keys ...string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		for _, key := range keys {
			if err := bkt.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
