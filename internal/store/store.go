// Package store keeps control point sets in a bbolt database, one entry per
// image pair, so a stitch can be resumed or run in the other direction.
package store

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"panostitch/internal/controlpoint"

	cbor "github.com/brianolson/cbor_go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/multierr"
)

// ErrNotFound is returned when no set is stored for a pair.
var ErrNotFound = errors.New("store: no control points saved for this pair")

var stitches = []byte("stitches")

const recordVersion = 1

// KeyPrefix starts every key; the rest names the moved image.
const KeyPrefix = "stitch_"

type pointRecord struct {
	X1      float64 `cbor:"a"`
	Y1      float64 `cbor:"b"`
	X2      float64 `cbor:"c"`
	Y2      float64 `cbor:"d"`
	Corr    float64 `cbor:"r"`
	HasCorr bool    `cbor:"h"`
	CB      bool    `cbor:"cb"`
}

type record struct {
	Version int           `cbor:"v"`
	Saved   int64         `cbor:"t"` // Unix milliseconds
	Points  []pointRecord `cbor:"p"`
}

// Store is an open control point database.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stitches)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(multierr.Append(err, db.Close()), "init store %s", path)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key names the set that maps moved onto ref. Only base names are used,
// so a pair keeps its points when the files move together.
func Key(ref, moved string) string {
	return KeyPrefix + filepath.Base(moved) + "|" + filepath.Base(ref)
}

// Put saves points for the pair, and their inverse for the pair reversed.
func (s *Store) Put(ref, moved string, points controlpoint.List) error {
	fwd, err := encode(points)
	if err != nil {
		return err
	}
	rev, err := encode(points.Inverse())
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stitches)
		if err := b.Put([]byte(Key(ref, moved)), fwd); err != nil {
			return err
		}
		return b.Put([]byte(Key(moved, ref)), rev)
	})
}

// Get loads the points saved for the pair.
func (s *Store) Get(ref, moved string) (controlpoint.List, error) {
	var out controlpoint.List
	key := Key(ref, moved)
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(stitches).Get([]byte(key))
		if val == nil {
			return errors.Wrap(ErrNotFound, key)
		}
		var err error
		out, err = decode(val)
		return errors.Wrap(err, key)
	})
	return out, err
}

// Delete removes the pair in both directions.
func (s *Store) Delete(ref, moved string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stitches)
		return multierr.Append(
			b.Delete([]byte(Key(ref, moved))),
			b.Delete([]byte(Key(moved, ref))),
		)
	})
}

// Keys lists the stored keys in order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(stitches).ForEach(func(k, _ []byte) error {
			if strings.HasPrefix(string(k), KeyPrefix) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

func encode(points controlpoint.List) ([]byte, error) {
	rec := record{
		Version: recordVersion,
		Saved:   time.Now().UnixMilli(),
		Points:  make([]pointRecord, len(points)),
	}
	for i, cp := range points {
		pr := pointRecord{X1: cp.X1, Y1: cp.Y1, X2: cp.X2, Y2: cp.Y2, CB: cp.ColorBalance}
		if cp.Correlation != nil {
			pr.Corr, pr.HasCorr = *cp.Correlation, true
		}
		rec.Points[i] = pr
	}
	data, err := cbor.Dumps(rec)
	return data, errors.Wrap(err, "encode control points")
}

func decode(data []byte) (controlpoint.List, error) {
	var rec record
	if err := cbor.Loads(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode control points")
	}
	if rec.Version > recordVersion {
		return nil, errors.Errorf("record version %d is newer than %d", rec.Version, recordVersion)
	}
	out := make(controlpoint.List, len(rec.Points))
	for i, pr := range rec.Points {
		cp := controlpoint.ControlPoint{X1: pr.X1, Y1: pr.Y1, X2: pr.X2, Y2: pr.Y2, ColorBalance: pr.CB}
		if pr.HasCorr {
			cp = cp.WithCorrelation(pr.Corr)
		}
		out[i] = cp
	}
	return out, nil
}
