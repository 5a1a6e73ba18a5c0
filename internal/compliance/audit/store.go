package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists ledger entries in chain order
type Store interface {
	// Tail returns the newest entry, or nil for an empty ledger
	Tail(ctx context.Context) (*Entry, error)
	Append(ctx context.Context, entry *Entry) error
	// List returns entries oldest first
	List(ctx context.Context, offset, limit int) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
}

// EntryRecord is the database model for ledger entries. Unique sequence and
// previous hash make a forked chain impossible to persist.
type EntryRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence     int64     `gorm:"not null;uniqueIndex"`
	Timestamp    time.Time `gorm:"column:occurred_at;not null;index"`
	EventType    string    `gorm:"type:varchar(100);not null;index"`
	Severity     string    `gorm:"type:varchar(20);not null;index"`
	Actor        string    `gorm:"type:varchar(100);not null"`
	Details      string    `gorm:"type:text;not null"`
	PreviousHash string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Hash         string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM
func (EntryRecord) TableName() string {
	return "audit_ledger"
}

func toRecord(e *Entry) (*EntryRecord, error) {
	details, err := CanonicalDetails(e.Details)
	if err != nil {
		return nil, err
	}
	return &EntryRecord{
		ID:           e.ID,
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp.UTC(),
		EventType:    e.EventType,
		Severity:     string(e.Severity),
		Actor:        e.Actor,
		Details:      string(details),
		PreviousHash: e.PreviousHash,
		Hash:         e.Hash,
	}, nil
}

func (r *EntryRecord) toEntry() (Entry, error) {
	details, err := DecodeDetails([]byte(r.Details))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:           r.ID,
		Sequence:     r.Sequence,
		Timestamp:    r.Timestamp.UTC(),
		EventType:    r.EventType,
		Severity:     Severity(r.Severity),
		Actor:        r.Actor,
		Details:      details,
		PreviousHash: r.PreviousHash,
		Hash:         r.Hash,
	}, nil
}

// SQLStore keeps the ledger in the primary database
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates a ledger store over db
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the ledger table
func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&EntryRecord{})
}

func (s *SQLStore) Tail(ctx context.Context) (*Entry, error) {
	var records []EntryRecord
	if err := s.db.WithContext(ctx).Order("sequence DESC").Limit(1).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	e, err := records[0].toEntry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLStore) Append(ctx context.Context, entry *Entry) error {
	rec, err := toRecord(entry)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *SQLStore) List(ctx context.Context, offset, limit int) ([]Entry, error) {
	var records []EntryRecord
	q := s.db.WithContext(ctx).Order("sequence ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for i := range records {
		e, err := records[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EntryRecord{}).Count(&n).Error
	return n, err
}
