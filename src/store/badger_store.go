package store

import (
	"fmt"
	"os"
	"sort"

	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru/v2"
	cm "github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/object"
)

const (
	objectPrefix = "object"
	streamPrefix = "stream"
	rootPrefix   = "root"
)

// storeCodec is the encoding of objects at rest.
const storeCodec = object.CBORCodec

// BadgerStore implements the Store interface with a Badger database. Recently
// read objects are kept in an LRU cache.
type BadgerStore struct {
	db    *badger.DB
	cache *lru.Cache[object.CID, *object.Object]
	path  string
}

// NewBadgerStore opens, or creates, the database at path.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if cacheSize <= 0 {
		cacheSize = 1
	}

	cache, err := lru.New[object.CID, *object.Object](cacheSize)
	if err != nil {
		handle.Close()
		return nil, err
	}

	store := &BadgerStore{
		db:    handle,
		cache: cache,
		path:  path,
	}

	return store, nil
}

//==============================================================================
//Keys

func objectKey(cid object.CID) []byte {
	return []byte(fmt.Sprintf("%s_%s", objectPrefix, cid))
}

func streamKey(root, cid object.CID) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", streamPrefix, root, cid))
}

func streamKeyPrefix(root object.CID) []byte {
	return []byte(fmt.Sprintf("%s_%s_", streamPrefix, root))
}

func rootKey(root object.CID) []byte {
	return []byte(fmt.Sprintf("%s_%s", rootPrefix, root))
}

//==============================================================================
//Implement the Store interface

// Put implements the Store interface.
func (s *BadgerStore) Put(o *object.Object) error {
	cid, err := object.Hash(o)
	if err != nil {
		return err
	}

	val, err := object.Marshal(storeCodec, o)
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if _, err := tx.Get(objectKey(cid)); err == nil {
		return nil
	} else if !isDBKeyNotFound(err) {
		return err
	}

	//insert [object_cid] => [object bytes]
	if err := tx.Set(objectKey(cid), val); err != nil {
		return err
	}

	root := StreamRoot(o, cid)

	//insert [stream_root_cid] => []
	if err := tx.Set(streamKey(root, cid), []byte{}); err != nil {
		return err
	}

	if root == cid {
		//insert [root_cid] => []
		if err := tx.Set(rootKey(root), []byte{}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.cache.Add(cid, o.Copy())

	return nil
}

// Get implements the Store interface.
func (s *BadgerStore) Get(cid object.CID) (*object.Object, error) {
	if o, ok := s.cache.Get(cid); ok {
		return o.Copy(), nil
	}

	o, err := s.dbGetObject(cid)
	if err != nil {
		return nil, mapError(err, "Object", cid.String())
	}

	s.cache.Add(cid, o)

	return o.Copy(), nil
}

// Has implements the Store interface.
func (s *BadgerStore) Has(cid object.CID) (bool, error) {
	if s.cache.Contains(cid) {
		return true, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objectKey(cid))
		return err
	})
	if err != nil {
		if isDBKeyNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// StreamObjects implements the Store interface.
func (s *BadgerStore) StreamObjects(root object.CID) ([]*object.Object, error) {
	cids, err := s.dbStreamCIDs(root)
	if err != nil {
		return nil, err
	}

	if len(cids) == 0 {
		return nil, cm.NewStoreErr("Stream", cm.KeyNotFound, root.String())
	}

	res := make([]*object.Object, 0, len(cids))
	for _, c := range cids {
		o, err := s.Get(c)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}

	return res, nil
}

// Streams implements the Store interface.
func (s *BadgerStore) Streams() ([]object.CID, error) {
	res := []object.CID{}
	prefix := []byte(rootPrefix + "_")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			res = append(res, object.CID(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// StorePath returns the path of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGetObject(cid object.CID) (*object.Object, error) {
	var objectBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(cid))
		if err != nil {
			return err
		}
		objectBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return object.Unmarshal(storeCodec, objectBytes)
}

func (s *BadgerStore) dbStreamCIDs(root object.CID) ([]object.CID, error) {
	res := []object.CID{}
	prefix := streamKeyPrefix(root)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			res = append(res, object.CID(k[len(prefix):]))
		}
		return nil
	})

	return res, err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
