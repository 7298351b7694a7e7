package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"triagefm/internal/domain"
	"triagefm/internal/keylock"
)

// BadgerRepository implements QueueStore using BadgerDB.
type BadgerRepository struct {
	db    *badger.DB
	locks *keylock.Table[int64]
	log   logrus.FieldLogger
}

// queueRecord is the value stored under a user's queue key.
type queueRecord struct {
	UserID    int64                `json:"user_id"`
	Items     []domain.ContentItem `json:"items"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Options tweak how the database is opened.
type Options struct {
	// InMemory keeps everything in RAM; dbPath is ignored.
	InMemory bool
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	return OpenBadgerRepository(dbPath, Options{}, logger)
}

// OpenBadgerRepository is NewBadgerRepository with explicit options.
func OpenBadgerRepository(dbPath string, o Options, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.WithField("in_memory", o.InMemory).Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:    db,
		locks: keylock.New[int64](),
		log:   logger.WithField("component", "repository"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	err := r.db.Close()
	if err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// generateQueueKey creates the key holding a user's whole queue.
// Format: user:{userID}:queue
func generateQueueKey(userID int64) []byte {
	return []byte(fmt.Sprintf("user:%d:queue", userID))
}

func storeError(err error, format string, args ...interface{}) error {
	return domain.NewError(domain.KindStore, err, format, args...)
}

// readQueue loads the record for userID inside txn. A missing key yields an
// empty record.
func readQueue(txn *badger.Txn, userID int64) (queueRecord, error) {
	rec := queueRecord{UserID: userID}
	item, err := txn.Get(generateQueueKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

// Append adds item to the tail of the user's queue and returns the new length.
func (r *BadgerRepository) Append(ctx context.Context, userID int64, item domain.ContentItem) (int, error) {
	log := r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": item.ID,
	})
	log.Debug("Attempting to append item")

	unlock, err := r.locks.Lock(ctx, userID)
	if err != nil {
		return 0, storeError(err, "waiting for queue of user %d", userID)
	}
	defer unlock()

	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	var length int
	err = r.db.Update(func(txn *badger.Txn) error {
		rec, err := readQueue(txn, userID)
		if err != nil {
			return err
		}
		rec.Items = append(rec.Items, item)
		rec.UpdatedAt = time.Now()

		recBytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal queue: %w", err)
		}
		length = len(rec.Items)
		return txn.SetEntry(badger.NewEntry(generateQueueKey(userID), recBytes))
	})
	if err != nil {
		log.WithError(err).Error("Failed to append item to BadgerDB")
		return 0, storeError(err, "append to queue of user %d", userID)
	}

	log.WithField("queue_size", length).Info("Item appended successfully")
	return length, nil
}

// List retrieves the user's queue in insertion order.
func (r *BadgerRepository) List(ctx context.Context, userID int64) ([]domain.ContentItem, error) {
	log := r.log.WithField("user_id", userID)

	var rec queueRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readQueue(txn, userID)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Failed to read queue from BadgerDB")
		return nil, storeError(err, "list queue of user %d", userID)
	}

	items := rec.Items
	if items == nil {
		items = []domain.ContentItem{}
	}
	log.WithField("queue_size", len(items)).Debug("Queue retrieved successfully")
	return items, nil
}

// Size returns the number of items queued for the user.
func (r *BadgerRepository) Size(ctx context.Context, userID int64) (int, error) {
	items, err := r.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Clear drops the user's queue. Delete is idempotent in Badger, so clearing a
// missing queue succeeds.
func (r *BadgerRepository) Clear(ctx context.Context, userID int64) error {
	log := r.log.WithField("user_id", userID)
	log.Debug("Attempting to clear queue")

	unlock, err := r.locks.Lock(ctx, userID)
	if err != nil {
		return storeError(err, "waiting for queue of user %d", userID)
	}
	defer unlock()

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(generateQueueKey(userID))
	})
	if err != nil {
		log.WithError(err).Error("Failed to clear queue in BadgerDB")
		return storeError(err, "clear queue of user %d", userID)
	}

	log.Info("Queue cleared successfully")
	return nil
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

// --- Background Garbage Collection ---

// RunGC reclaims value-log space every interval until ctx is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
				r.log.Debug("BadgerDB GC: No rewrite needed")
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			r.log.Info("Stopping BadgerDB GC routine due to context cancellation")
			return
		}
	}
}
