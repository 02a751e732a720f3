package field

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	// SQLite keeps the swapped slabs.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/envelope/errs"
)

// A SwapStore is the disk-backed overflow buffer that holds swapped arrays.
// Each array is stored as a set of slabs along its first axis. The backing
// file is removed when the store is closed or the process exits.
type SwapStore struct {
	db   *sql.DB
	path string

	lock   sync.Mutex
	closed bool
}

// OpenSwapStore creates a new store in dir. An empty dir means the system
// temporary directory.
func OpenSwapStore(dir string) (*SwapStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "envsim_swap_"+xid.New().String()+".sqlite3")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &errs.ResourceError{Op: "open swap store", Err: err}
	}

	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE slabs (
	array TEXT NOT NULL,
	slab INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (array, slab)
);`)
	if err != nil {
		db.Close()
		os.Remove(path)

		return nil, &errs.ResourceError{Op: "create swap table", Err: err}
	}

	s := &SwapStore{db: db, path: path}

	atexit.Register(func() { _ = s.Close() })

	return s, nil
}

// Path returns the backing file.
func (s *SwapStore) Path() string {
	return s.path
}

// Close closes the store and deletes its file.
func (s *SwapStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	err := s.db.Close()
	rmErr := os.Remove(s.path)

	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}

	return err
}

// NewArray creates a zero-filled swapped array in the store.
func (s *SwapStore) NewArray(shape Shape) (*Swapped, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	return &Swapped{
		shape:    shape,
		name:     xid.New().String(),
		store:    s,
		slabLen:  shape.Size() / shape[0],
		dirty:    make(map[int][]complex128),
		maxDirty: 8,
	}, nil
}

// Swap copies a resident array into a new swapped array.
func (s *SwapStore) Swap(d *Dense) (*Swapped, error) {
	out, err := s.NewArray(d.Shape())
	if err != nil {
		return nil, err
	}

	if err := out.WriteRegion(d.Shape().Full(), d.Data()); err != nil {
		return nil, err
	}

	if err := out.Flush(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *SwapStore) writeSlabs(array string, slabs map[int][]complex128) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO slabs (array, slab, data) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for idx, data := range slabs {
		if _, err := stmt.Exec(array, idx, encodeSlab(data)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SwapStore) readSlab(array string, idx, n int) ([]complex128, error) {
	var blob []byte

	err := s.db.QueryRow(
		`SELECT data FROM slabs WHERE array = ? AND slab = ?`, array, idx,
	).Scan(&blob)

	if errors.Is(err, sql.ErrNoRows) {
		return make([]complex128, n), nil
	}

	if err != nil {
		return nil, err
	}

	data := decodeSlab(blob)
	if len(data) != n {
		return nil, fmt.Errorf("slab %d of %s has %d elements, expected %d",
			idx, array, len(data), n)
	}

	return data, nil
}

// Arrays returns how many arrays hold slabs in the store.
func (s *SwapStore) Arrays() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(DISTINCT array) FROM slabs`).Scan(&n)

	return n, err
}

func (s *SwapStore) dropArray(array string) error {
	_, err := s.db.Exec(`DELETE FROM slabs WHERE array = ?`, array)
	return err
}

func encodeSlab(data []complex128) []byte {
	buf := make([]byte, len(data)*ElementSize)
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(real(v)))
		binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(imag(v)))
	}

	return buf
}

func decodeSlab(buf []byte) []complex128 {
	data := make([]complex128, len(buf)/ElementSize)
	for i := range data {
		re := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16+8:]))
		data[i] = complex(re, im)
	}

	return data
}
