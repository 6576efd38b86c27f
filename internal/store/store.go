// Package store persists generated chapters in a sqlite database through gorm.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/logger"
)

// ErrNotFound is returned when no chapter matches the lookup.
var ErrNotFound = errors.New("chapter not found")

// ChapterRecord is one stored chapter. Body holds the chapter as JSON and
// ContentHash the sha256 of the raw model text it was parsed from. A guide
// holds at most one chapter per content hash.
type ChapterRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GuideID     uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_chapters_guide_hash,priority:1;not null" json:"guide_id"`
	GuideTitle  string         `json:"guide_title"`
	Topic       string         `gorm:"not null" json:"topic"`
	Position    int            `gorm:"not null" json:"position"`
	Title       string         `gorm:"not null" json:"title"`
	ContentHash string         `gorm:"uniqueIndex:idx_chapters_guide_hash,priority:2;index:idx_chapters_hash;not null" json:"content_hash"`
	Model       string         `json:"model"`
	Body        datatypes.JSON `json:"body"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ChapterRecord) TableName() string { return "chapters" }

// Chapter decodes the stored body.
func (r *ChapterRecord) Chapter() (guide.Chapter, error) {
	var ch guide.Chapter
	if err := json.Unmarshal(r.Body, &ch); err != nil {
		return guide.Chapter{}, fmt.Errorf("decode chapter %s: %w", r.ID, err)
	}
	return ch, nil
}

// NewRecord builds a record for a parsed chapter and the raw text it came from.
// GuideTitle is left for the caller to fill in.
func NewRecord(guideID uuid.UUID, topic string, position int, model, raw string, ch guide.Chapter) (*ChapterRecord, error) {
	body, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("encode chapter: %w", err)
	}
	return &ChapterRecord{
		ID:          uuid.New(),
		GuideID:     guideID,
		Topic:       topic,
		Position:    position,
		Title:       ch.Title,
		ContentHash: ContentHash(raw),
		Model:       model,
		Body:        datatypes.JSON(body),
	}, nil
}

// ContentHash returns the hex sha256 of raw.
func ContentHash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:])
}

const legacyHashIndex = "idx_chapters_content_hash"

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema. Use ":memory:" for a throwaway database.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// Earlier schemas made content_hash unique across all guides.
	if m := db.Migrator(); m.HasIndex(&ChapterRecord{}, legacyHashIndex) {
		if err := m.DropIndex(&ChapterRecord{}, legacyHashIndex); err != nil {
			return nil, fmt.Errorf("drop %s: %w", legacyHashIndex, err)
		}
	}
	if err := db.AutoMigrate(&ChapterRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log.With("component", "store")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save inserts rec unless the same guide already holds a chapter with that
// content hash, in which case the existing record is returned with
// created=false. The same text saved under another guide is a new record.
func (s *Store) Save(ctx context.Context, rec *ChapterRecord) (saved *ChapterRecord, created bool, err error) {
	if rec.ContentHash == "" {
		return nil, false, errors.New("save chapter: content hash is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guide_id"}, {Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("save chapter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.first(s.db.WithContext(ctx).Where("guide_id = ? AND content_hash = ?", rec.GuideID, rec.ContentHash))
		if err != nil {
			return nil, false, err
		}
		s.log.Debug("duplicate chapter skipped", "guide_id", rec.GuideID, "hash", rec.ContentHash, "existing_id", existing.ID)
		return existing, false, nil
	}
	return rec, true, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*ChapterRecord, error) {
	return s.first(s.db.WithContext(ctx).Where("id = ?", id))
}

// FindByHash returns the earliest stored chapter with the given content hash
// in any guide.
func (s *Store) FindByHash(ctx context.Context, hash string) (*ChapterRecord, error) {
	return s.first(s.db.WithContext(ctx).Where("content_hash = ?", hash).Order("created_at ASC"))
}

func (s *Store) first(q *gorm.DB) (*ChapterRecord, error) {
	var rec ChapterRecord
	err := q.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chapter: %w", err)
	}
	return &rec, nil
}

// ListByGuide returns a guide's chapters in position order.
func (s *Store) ListByGuide(ctx context.Context, guideID uuid.UUID) ([]ChapterRecord, error) {
	out := []ChapterRecord{}
	err := s.db.WithContext(ctx).
		Where("guide_id = ?", guideID).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list guide chapters: %w", err)
	}
	return out, nil
}

// List returns the most recent chapters, newest first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]ChapterRecord, error) {
	out := []ChapterRecord{}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return out, nil
}

// Chapters decodes the bodies of recs in order.
func Chapters(recs []ChapterRecord) ([]guide.Chapter, error) {
	out := make([]guide.Chapter, 0, len(recs))
	for i := range recs {
		ch, err := recs[i].Chapter()
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}
