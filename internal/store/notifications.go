package store

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

// NewNotification is the input for AddNotification; ids and timestamps are
// assigned by the store.
type NewNotification struct {
	UserID     string
	FromUserID string
	Title      string
	Message    string
	Type       string
	EntryID    string
}

// AddNotification appends a notification to a user's list, evicting the
// oldest past the cap.
func (ds *DataStore) AddNotification(input NewNotification) (Notification, error) {
	now := ds.clock.Now()
	notification := Notification{
		NotificationID: uuid.New().String(),
		UserID:         input.UserID,
		FromUserID:     input.FromUserID,
		Title:          input.Title,
		Message:        input.Message,
		Type:           input.Type,
		EntryID:        input.EntryID,
		Read:           false,
		Timestamp:      now.Format(timestampLayout),
		CreatedAt:      now,
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&notification).Error; err != nil {
			return err
		}
		keep := tx.Model(&Notification{}).
			Select("id").
			Where("user_id = ?", input.UserID).
			Order("created_at DESC, id DESC").
			Limit(ds.cfg.MaxNotifications)
		return tx.
			Where("user_id = ? AND id NOT IN (?)", input.UserID, keep).
			Delete(&Notification{}).Error
	})
	if err != nil {
		return Notification{}, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "add_notification").
			Context("user_id", input.UserID).
			Build()
	}
	return notification, nil
}

// GetNotifications returns a user's notifications, newest first.
func (ds *DataStore) GetNotifications(userID string) ([]Notification, error) {
	var notifications []Notification
	err := ds.DB.
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_notifications").
			Context("user_id", userID).
			Build()
	}
	return notifications, nil
}

// MarkRead sets a notification's read flag. Marking an already-read
// notification is a no-op, so unread counts move by at most one.
func (ds *DataStore) MarkRead(userID, notificationID string) error {
	result := ds.DB.Model(&Notification{}).
		Where("user_id = ? AND notification_id = ? AND read = ?", userID, notificationID, false).
		Update("read", true)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "mark_read").
			Context("notification_id", notificationID).
			Build()
	}
	return nil
}

// GetUnreadCount returns how many of a user's notifications are unread.
func (ds *DataStore) GetUnreadCount(userID string) (int64, error) {
	var count int64
	err := ds.DB.Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_unread_count").
			Context("user_id", userID).
			Build()
	}
	return count, nil
}

// ClearNotifications removes every notification for a user.
func (ds *DataStore) ClearNotifications(userID string) error {
	if err := ds.DB.Where("user_id = ?", userID).Delete(&Notification{}).Error; err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "clear_notifications").
			Context("user_id", userID).
			Build()
	}
	return nil
}
