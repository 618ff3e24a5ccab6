package notify

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/sentinel-go/internal/store"
	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

func newTestService(t *testing.T, cfg Config) (*Service, *store.DataStore) {
	t.Helper()
	ds := store.New(store.Config{Path: filepath.Join(t.TempDir(), "notify.db")})
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return NewService(cfg, ds), ds
}

func personDetection(score float64, cameraIndex int) videocore.Detection {
	return videocore.Detection{Class: "person", Score: score, CameraIndex: cameraIndex}
}

func TestAddDetectionCreatesNotificationForQualifyingPerson(t *testing.T) {
	service, ds := newTestService(t, Config{})

	require.NoError(t, service.AddDetection("user-1", "cam-a", personDetection(0.85, 0)))

	history, err := ds.GetHistory("user-1", store.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)

	notifications, err := ds.GetNotifications("user-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Person Detected", notifications[0].Title)
	assert.Equal(t, "A person was detected with 85.0% confidence on Camera 1", notifications[0].Message)
	assert.Equal(t, TypeDetection, notifications[0].Type)
	assert.Equal(t, history[0].EntryID, notifications[0].EntryID)
	assert.Empty(t, notifications[0].FromUserID)
	assert.False(t, notifications[0].Read)
}

func TestAddDetectionBelowThresholdRecordsHistoryOnly(t *testing.T) {
	service, ds := newTestService(t, Config{})

	// Significant for history (person above sensitivity) but under the
	// notification threshold of 0.7.
	require.NoError(t, service.AddDetection("user-1", "cam-a", personDetection(0.65, 0)))

	history, err := ds.GetHistory("user-1", store.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	notifications, err := ds.GetNotifications("user-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestAddDetectionNonPersonNeverNotifies(t *testing.T) {
	service, ds := newTestService(t, Config{})

	require.NoError(t, service.AddDetection("user-1", "cam-a", videocore.Detection{
		Class: "dog",
		Score: 0.99,
	}))

	notifications, err := ds.GetNotifications("user-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestFanOutToRelatedUsersIsSymmetric(t *testing.T) {
	service, ds := newTestService(t, Config{})
	require.NoError(t, ds.AddRelatedUser("alice", "bob"))

	require.NoError(t, service.AddDetection("alice", "cam-a", personDetection(0.9, 1)))

	bobs, err := ds.GetNotifications("bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "Person Detected (from alice)", bobs[0].Title)
	assert.Equal(t, "alice", bobs[0].FromUserID)

	// The reverse direction fans out too.
	require.NoError(t, service.AddDetection("bob", "cam-b", personDetection(0.9, 0)))
	alices, err := ds.GetNotifications("alice")
	require.NoError(t, err)
	require.Len(t, alices, 2) // own + bob's fan-out
	assert.Equal(t, "Person Detected (from bob)", alices[0].Title)

	// Fan-out copies are independently marked read.
	require.NoError(t, ds.MarkRead("bob", bobs[0].NotificationID))
	count, err := ds.GetUnreadCount("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSubscriberReceivesBroadcast(t *testing.T) {
	service, _ := newTestService(t, Config{})
	sub := service.Subscribe()
	defer sub.Close()

	require.NoError(t, service.AddDetection("user-1", "cam-a", personDetection(0.9, 0)))

	select {
	case notification := <-sub.Notifications():
		assert.Equal(t, "Person Detected", notification.Title)
		assert.Equal(t, "user-1", notification.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast notification")
	}
}

func TestRateLimitDropsExcessNotifications(t *testing.T) {
	mock := clock.NewMock()
	ds := store.New(store.Config{Path: filepath.Join(t.TempDir(), "rate.db")})
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	service := NewService(Config{
		RateInterval: time.Minute,
		RateBurst:    2,
	}, ds, WithClock(mock))

	for i := 0; i < 5; i++ {
		require.NoError(t, service.AddDetection("user-1", "cam-a", personDetection(0.9, 0)))
	}

	notifications, err := ds.GetNotifications("user-1")
	require.NoError(t, err)
	assert.Len(t, notifications, 2, "excess notifications are dropped")

	history, err := ds.GetHistory("user-1", store.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 5, "history is never rate limited")

	// A new window admits notifications again.
	mock.Add(2 * time.Minute)
	require.NoError(t, service.AddDetection("user-1", "cam-a", personDetection(0.9, 0)))
	notifications, err = ds.GetNotifications("user-1")
	require.NoError(t, err)
	assert.Len(t, notifications, 3)
}
