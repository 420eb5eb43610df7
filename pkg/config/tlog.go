package config

import (
	"encoding/binary"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"github.com/edgekernel/core/pkg/coreerr"
)

var tlogJSON = jsoniter.ConfigCompatibleWithStandardLibrary

var bucketTlog = []byte("config_tlog")

// tlogRecord is one appended write, keyed by a monotonically increasing
// bbolt sequence number so Replay can iterate it back in write order.
type tlogRecord struct {
	Timestamp Timestamp `json:"ts"`
	Path      []string  `json:"path"`
	Value     any       `json:"value"`
}

// TransactionLog persists config writes to a bbolt file so they can be
// replayed at startup, adapted from pkg/storage.BoltStore's
// bucket-per-entity pattern (here, a single bucket keyed by sequence
// number instead of one bucket per record type).
type TransactionLog struct {
	db *bolt.DB
}

// OpenTransactionLog opens (creating if absent) a bbolt file at path.
func OpenTransactionLog(path string) (*TransactionLog, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidConfigPathError, "open transaction log", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTlog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.InvalidConfigPathError, "create transaction log bucket", err)
	}
	return &TransactionLog{db: db}, nil
}

// Close closes the underlying bbolt file.
func (l *TransactionLog) Close() error { return l.db.Close() }

// Append writes one record under the next sequence number in the bucket.
func (l *TransactionLog) Append(path []string, ts Timestamp, v any) error {
	rec := tlogRecord{Timestamp: ts, Path: path, Value: v}
	data, err := tlogJSON.Marshal(rec)
	if err != nil {
		return coreerr.Wrap(coreerr.JSONParseError, "marshal transaction log record", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTlog)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Replay calls apply, in write order, for every record persisted so far —
// used at startup to rebuild the in-memory tree.
func (l *TransactionLog) Replay(apply func(path []string, ts Timestamp, value any) error) error {
	return l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTlog)
		return b.ForEach(func(k, data []byte) error {
			var rec tlogRecord
			if err := tlogJSON.Unmarshal(data, &rec); err != nil {
				return coreerr.Wrap(coreerr.JSONParseError, "unmarshal transaction log record", err)
			}
			return apply(rec.Path, rec.Timestamp, rec.Value)
		})
	})
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
