package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/logging"
	"go.etcd.io/bbolt"
)

// cacheDirectoryName is the directory created under the working directory to hold cache files.
const cacheDirectoryName = ".mevcache"

// bucketName is the single bbolt bucket all entries live in.
var bucketName = []byte("state")

// Key prefixes keep account and slot entries apart in the shared bucket.
const (
	accountKeyPrefix byte = 'a'
	slotKeyPrefix    byte = 's'
)

// defaultFlushThreshold is the number of buffered writes that triggers a flush to disk.
const defaultFlushThreshold = 25

// persistentCache layers a bbolt file under an in-memory cache. Writes are buffered and flushed in batches.
type persistentCache struct {
	memCache *nonPersistentStateCache
	db       *bbolt.DB

	pendingWriteLock sync.Mutex
	pendingWrites    []pendingWrite
	flushThreshold   int
	closeOnce        sync.Once
}

type pendingWrite struct {
	key   []byte
	value []byte
}

func newPersistentCache(ctx context.Context, workingDir string, rpcAddr string, height uint64) (*persistentCache, error) {
	cacheDir := filepath.Join(workingDir, cacheDirectoryName)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}

	db, err := bbolt.Open(filepath.Join(cacheDir, cacheFilename(rpcAddr, height)), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open cache database")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	p := &persistentCache{
		memCache:       newNonPersistentStateCache(),
		db:             db,
		flushThreshold: defaultFlushThreshold,
	}

	go func() {
		<-ctx.Done()
		if err := p.Close(); err != nil {
			logging.GlobalLogger.Error("Failed to close the state cache", err)
		}
	}()
	return p, nil
}

func (p *persistentCache) GetStateObject(addr common.Address) (*StateObject, error) {
	if so, err := p.memCache.GetStateObject(addr); err == nil {
		return so, nil
	}

	var so StateObject
	found, err := p.readPersisted(accountKey(addr), &so)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCacheMiss
	}
	return &so, p.memCache.WriteStateObject(addr, so)
}

func (p *persistentCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	if data, err := p.memCache.GetSlotData(addr, slot); err == nil {
		return data, nil
	}

	var data common.Hash
	found, err := p.readPersisted(slotKey(addr, slot), &data)
	if err != nil {
		return common.Hash{}, err
	}
	if !found {
		return common.Hash{}, ErrCacheMiss
	}
	return data, p.memCache.WriteSlotData(addr, slot, data)
}

func (p *persistentCache) WriteStateObject(addr common.Address, data StateObject) error {
	if err := p.memCache.WriteStateObject(addr, data); err != nil {
		return err
	}
	return p.writePersisted(accountKey(addr), data)
}

func (p *persistentCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	if err := p.memCache.WriteSlotData(addr, slot, data); err != nil {
		return err
	}
	return p.writePersisted(slotKey(addr, slot), data)
}

// Stats returns the lookup counters of the in-memory layer.
func (p *persistentCache) Stats() Stats {
	return p.memCache.Stats()
}

// Close flushes any buffered writes and closes the database. It is safe to call more than once.
func (p *persistentCache) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.pendingWriteLock.Lock()
		err = p.flushLocked()
		p.pendingWriteLock.Unlock()
		if closeErr := p.db.Close(); err == nil {
			err = closeErr
		}
	})
	return errors.WithStack(err)
}

func (p *persistentCache) readPersisted(key []byte, value any) (bool, error) {
	found := false
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, value)
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read cache entry")
	}
	return found, nil
}

func (p *persistentCache) writePersisted(key []byte, value any) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}

	p.pendingWriteLock.Lock()
	defer p.pendingWriteLock.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{key: key, value: serialized})
	if len(p.pendingWrites) < p.flushThreshold {
		return nil
	}
	return p.flushLocked()
}

// flushLocked writes every buffered entry in one transaction. The caller must hold pendingWriteLock.
func (p *persistentCache) flushLocked() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, pw := range p.pendingWrites {
			if err := bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		p.pendingWrites = p.pendingWrites[:0]
	}
	return err
}

func accountKey(addr common.Address) []byte {
	return append([]byte{accountKeyPrefix}, addr[:]...)
}

func slotKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	key = append(key, slotKeyPrefix)
	key = append(key, addr[:]...)
	return append(key, slot[:]...)
}

// cacheFilename derives a file name from the endpoint and fork height so that caches of different forks never mix.
func cacheFilename(rpcAddr string, height uint64) string {
	sum := sha256.Sum256([]byte(rpcAddr))
	return fmt.Sprintf("%d-%x.dat", height, sum[:10])
}
