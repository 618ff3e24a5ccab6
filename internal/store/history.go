package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

// DateBucket selects a relative date range for history filtering.
type DateBucket string

const (
	DateBucketAll       DateBucket = "all"
	DateBucketToday     DateBucket = "today"
	DateBucketYesterday DateBucket = "yesterday"
	DateBucketThisWeek  DateBucket = "this-week"
)

// HistoryFilter narrows GetHistory results. Zero values mean "no filter";
// all active filters are conjunctive.
type HistoryFilter struct {
	Class         string
	CameraIndex   *int
	DateBucket    DateBucket
	MinConfidence float64
}

// AddHistoryEntry appends a significant detection to a user's history,
// evicting the oldest entries beyond the cap. The stored entry is returned.
func (ds *DataStore) AddHistoryEntry(userID, deviceID string, det videocore.Detection) (HistoryEntry, error) {
	now := ds.clock.Now()
	entry := HistoryEntry{
		EntryID:     uuid.New().String(),
		UserID:      userID,
		DeviceID:    deviceID,
		Class:       det.Class,
		Score:       det.Score,
		CameraIndex: det.CameraIndex,
		BoxX:        det.Box.X,
		BoxY:        det.Box.Y,
		BoxWidth:    det.Box.Width,
		BoxHeight:   det.Box.Height,
		Timestamp:   now.Format(timestampLayout),
		CreatedAt:   now,
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return ds.trimHistoryTx(tx, userID)
	})
	if err != nil {
		return HistoryEntry{}, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "add_history_entry").
			Context("user_id", userID).
			Build()
	}
	return entry, nil
}

// trimHistoryTx deletes the oldest entries past the per-user cap.
func (ds *DataStore) trimHistoryTx(tx *gorm.DB, userID string) error {
	keep := tx.Model(&HistoryEntry{}).
		Select("id").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(ds.cfg.MaxHistoryItems)
	return tx.
		Where("user_id = ? AND id NOT IN (?)", userID, keep).
		Delete(&HistoryEntry{}).Error
}

// GetHistory returns a user's history, newest first, narrowed by the filter.
func (ds *DataStore) GetHistory(userID string, filter HistoryFilter) ([]HistoryEntry, error) {
	query := ds.DB.Where("user_id = ?", userID)

	if filter.Class != "" {
		query = query.Where("class = ?", filter.Class)
	}
	if filter.CameraIndex != nil {
		query = query.Where("camera_index = ?", *filter.CameraIndex)
	}
	if filter.MinConfidence > 0 {
		query = query.Where("score >= ?", filter.MinConfidence)
	}
	if from, to, bounded := ds.bucketRange(filter.DateBucket); bounded {
		query = query.Where("created_at >= ? AND created_at < ?", from, to)
	}

	var entries []HistoryEntry
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_history").
			Context("user_id", userID).
			Build()
	}
	return entries, nil
}

// bucketRange resolves a relative date bucket to a half-open time range.
func (ds *DataStore) bucketRange(bucket DateBucket) (from, to time.Time, bounded bool) {
	now := ds.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch bucket {
	case DateBucketToday:
		return midnight, midnight.AddDate(0, 0, 1), true
	case DateBucketYesterday:
		return midnight.AddDate(0, 0, -1), midnight, true
	case DateBucketThisWeek:
		// Week starts on Monday.
		offset := (int(now.Weekday()) + 6) % 7
		weekStart := midnight.AddDate(0, 0, -offset)
		return weekStart, weekStart.AddDate(0, 0, 7), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// ClearHistory removes every history entry for a user.
func (ds *DataStore) ClearHistory(userID string) error {
	if err := ds.DB.Where("user_id = ?", userID).Delete(&HistoryEntry{}).Error; err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "clear_history").
			Context("user_id", userID).
			Build()
	}
	return nil
}
