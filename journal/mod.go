// Package journal keeps an audit record of the trade instances that have
// reached a terminal state.
//
// The records are written to a bbolt database, one per instance, keyed by the
// instance identifier. The journal is only an account of what happened: a
// trade cannot be resumed from it.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/escrow"
	"go.dedis.ch/escrow/offer"
	"go.dedis.ch/escrow/trade"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

var bucketName = []byte("outcomes")

// AmountRecord is the printable form of an amount.
type AmountRecord struct {
	Issuer   string `json:"issuer"`
	Name     string `json:"name,omitempty"`
	Quantity string `json:"quantity"`
}

// SeatRecord is the final allocation of a seat.
type SeatRecord struct {
	Index   int            `json:"index"`
	Role    string         `json:"role"`
	Amounts []AmountRecord `json:"amounts"`
}

// Record is the entry of a terminal instance.
type Record struct {
	InstanceID string       `json:"instanceID"`
	Status     string       `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Time       time.Time    `json:"time"`
	Seats      []SeatRecord `json:"seats"`
}

// String implements fmt.Stringer.
func (r Record) String() string {
	return fmt.Sprintf("Record[%s:%s]", r.InstanceID, r.Status)
}

// MakeRecord converts the outcome of an instance. The roles are indexed by
// seat and a missing role is left empty.
func MakeRecord(outcome trade.Outcome, roles map[int]string, at time.Time) Record {
	record := Record{
		InstanceID: outcome.InstanceID,
		Status:     outcome.Status.String(),
		Time:       at.UTC(),
		Seats:      make([]SeatRecord, len(outcome.Allocations)),
	}

	if outcome.Reason != nil {
		record.Reason = outcome.Reason.Error()
	}

	for i, amounts := range outcome.Allocations {
		record.Seats[i] = SeatRecord{
			Index:   i,
			Role:    roles[i],
			Amounts: makeAmountRecords(amounts),
		}
	}

	return record
}

func makeAmountRecords(amounts []offer.Amount) []AmountRecord {
	records := make([]AmountRecord, len(amounts))

	for i, amount := range amounts {
		records[i] = AmountRecord{
			Issuer:   amount.GetLabel().Issuer,
			Name:     amount.GetLabel().Name,
			Quantity: fmt.Sprintf("%v", amount.GetQuantity()),
		}
	}

	return records
}

// Journal is the database of the records. It also observes coordinators and
// records their outcomes.
//
// - implements trade.Observer
type Journal struct {
	sync.Mutex

	db     *bbolt.DB
	logger zerolog.Logger
	now    func() time.Time

	// roles are the seats of the instances that are still open.
	roles map[string]map[int]string
}

// Option is the type of option to set some fields of a journal.
type Option func(*Journal)

// WithLogger is an option to set the logger of the journal.
func WithLogger(logger zerolog.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// WithClock is an option to set the source of the record times.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// Open opens the journal at the path, creating the database if necessary.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	err = db.Update(func(txn *bbolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	j := &Journal{
		db:     db,
		logger: escrow.Logger,
		now:    time.Now,
		roles:  make(map[string]map[int]string),
	}

	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

// Append stores the record. An instance is recorded only once.
func (j *Journal) Append(record Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("couldn't marshal record: %v", err)
	}

	key := []byte(record.InstanceID)

	return j.db.Update(func(txn *bbolt.Tx) error {
		bucket := txn.Bucket(bucketName)

		if bucket.Get(key) != nil {
			return xerrors.Errorf("instance '%s' is already recorded", record.InstanceID)
		}

		return bucket.Put(key, value)
	})
}

// Get returns the record of the instance.
func (j *Journal) Get(instanceID string) (Record, error) {
	var record Record

	err := j.db.View(func(txn *bbolt.Tx) error {
		value := txn.Bucket(bucketName).Get([]byte(instanceID))
		if value == nil {
			return xerrors.Errorf("instance '%s' not found", instanceID)
		}

		return decode(value, &record)
	})

	return record, err
}

// ForEach iterates over the records in the order of the instance identifiers.
// The iteration stops when the callback returns an error.
func (j *Journal) ForEach(fn func(Record) error) error {
	return j.db.View(func(txn *bbolt.Tx) error {
		return txn.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var record Record

			err := decode(v, &record)
			if err != nil {
				return err
			}

			return fn(record)
		})
	})
}

// Len returns the number of records.
func (j *Journal) Len() int {
	var count int

	j.db.View(func(txn *bbolt.Tx) error {
		count = txn.Bucket(bucketName).Stats().KeyN
		return nil
	})

	return count
}

// NotifyCallback implements trade.Observer. It remembers the roles of the
// seats and records the outcome when the instance is terminal.
func (j *Journal) NotifyCallback(event trade.Event) {
	j.Lock()
	defer j.Unlock()

	switch event.Kind {
	case trade.SeatAdded:
		roles := j.roles[event.InstanceID]
		if roles == nil {
			roles = make(map[int]string)
			j.roles[event.InstanceID] = roles
		}

		roles[event.Seat] = event.Role
	case trade.InstanceSettled, trade.InstanceCancelled:
		record := MakeRecord(*event.Outcome, j.roles[event.InstanceID], j.now())
		delete(j.roles, event.InstanceID)

		err := j.Append(record)
		if err != nil {
			j.logger.Error().Err(err).Str("instance", event.InstanceID).
				Msg("couldn't record outcome")
			return
		}

		promRecords.Inc()
		j.logger.Debug().Stringer("record", record).Msg("outcome recorded")
	}
}

// Close closes the database. Any later call fails.
func (j *Journal) Close() error {
	return j.db.Close()
}

func decode(value []byte, record *Record) error {
	err := json.Unmarshal(value, record)
	if err != nil {
		return xerrors.Errorf("couldn't unmarshal record: %v", err)
	}

	return nil
}
