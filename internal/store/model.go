// model.go defines the persisted data model for history, notifications,
// and per-user camera configuration.
package store

import "time"

// timestampLayout is the ISO-8601 form views display.
const timestampLayout = time.RFC3339

// HistoryEntry is one significant detection persisted for a user.
type HistoryEntry struct {
	ID          uint   `gorm:"primaryKey"`
	EntryID     string `gorm:"uniqueIndex;not null"` // generated unique id
	UserID      string `gorm:"index:idx_history_user;index:idx_history_user_created"`
	DeviceID    string
	Class       string  `gorm:"index:idx_history_class"`
	Score       float64 `gorm:"index:idx_history_score"`
	CameraIndex int     `gorm:"index:idx_history_camera"`
	BoxX        float64
	BoxY        float64
	BoxWidth    float64
	BoxHeight   float64
	Timestamp   string    // ISO-8601, what views display
	CreatedAt   time.Time `gorm:"index:idx_history_user_created"`
}

// Notification is a per-user alert derived from a qualifying history entry.
type Notification struct {
	ID             uint   `gorm:"primaryKey"`
	NotificationID string `gorm:"uniqueIndex;not null"`
	UserID         string `gorm:"index:idx_notifications_user;index:idx_notifications_user_read"`
	FromUserID     string // set on fanned-out copies, empty on the owner's
	Title          string
	Message        string
	Type           string `gorm:"type:varchar(20)"` // e.g. "detection"
	EntryID        string `gorm:"index"`            // embedded detection reference
	Read           bool   `gorm:"index:idx_notifications_user_read"`
	Timestamp      string
	CreatedAt      time.Time `gorm:"index"`
}

// CameraSettingRecord persists one user's configuration for one device.
type CameraSettingRecord struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"uniqueIndex:idx_camera_setting_user_device"`
	DeviceID    string `gorm:"uniqueIndex:idx_camera_setting_user_device"`
	Enabled     bool
	Sensitivity float64
	DisplayName string
	UpdatedAt   time.Time
}

// PauseStateRecord persists one user's paused camera indices as JSON.
type PauseStateRecord struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex"`
	Indices   string `gorm:"type:text"` // JSON array of camera indices
	UpdatedAt time.Time
}

// UserRelationship links two users for notification fan-out. One row covers
// both directions.
type UserRelationship struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex:idx_relationship_pair;index"`
	RelatedID string `gorm:"uniqueIndex:idx_relationship_pair;index"`
	CreatedAt time.Time
}
