package store

import (
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

// CameraSetting returns the stored per-user, per-device setting and whether
// one existed. Implements videocore.SettingsStore.
func (ds *DataStore) CameraSetting(userID, deviceID string) (videocore.CameraSetting, bool, error) {
	var record CameraSettingRecord
	err := ds.DB.
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return videocore.CameraSetting{}, false, nil
		}
		return videocore.CameraSetting{}, false, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_camera_setting").
			Context("device_id", deviceID).
			Build()
	}
	return videocore.CameraSetting{
		DeviceID:    record.DeviceID,
		Enabled:     record.Enabled,
		Sensitivity: record.Sensitivity,
		DisplayName: record.DisplayName,
	}, true, nil
}

// SaveCameraSetting upserts a camera setting.
func (ds *DataStore) SaveCameraSetting(userID string, setting videocore.CameraSetting) error {
	record := CameraSettingRecord{
		UserID:      userID,
		DeviceID:    setting.DeviceID,
		Enabled:     setting.Enabled,
		Sensitivity: setting.Sensitivity,
		DisplayName: setting.DisplayName,
		UpdatedAt:   ds.clock.Now(),
	}
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "sensitivity", "display_name", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "save_camera_setting").
			Context("device_id", setting.DeviceID).
			Build()
	}
	return nil
}

// PausedCameras returns the user's persisted paused camera indices. A
// missing or unreadable record is treated as nothing paused.
func (ds *DataStore) PausedCameras(userID string) ([]int, error) {
	var record PauseStateRecord
	err := ds.DB.Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "get_paused_cameras").
			Context("user_id", userID).
			Build()
	}

	var indices []int
	if err := json.Unmarshal([]byte(record.Indices), &indices); err != nil {
		// Corrupted record: recover by treating it as absent.
		ds.logger.Warn("discarding unreadable pause state",
			"user_id", userID,
			"error", err)
		return nil, nil
	}
	return indices, nil
}

// SavePausedCameras persists the user's paused camera indices.
func (ds *DataStore) SavePausedCameras(userID string, indices []int) error {
	if indices == nil {
		indices = []int{}
	}
	payload, err := json.Marshal(indices)
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryValidation).
			Context("operation", "encode_paused_cameras").
			Build()
	}
	record := PauseStateRecord{
		UserID:    userID,
		Indices:   string(payload),
		UpdatedAt: ds.clock.Now(),
	}
	err = ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"indices", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "save_paused_cameras").
			Context("user_id", userID).
			Build()
	}
	return nil
}
