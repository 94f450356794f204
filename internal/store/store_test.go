package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestTouchSensorKeepsNewestLastSeen(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.TouchSensor(ctx, 1, t0))
	require.NoError(t, s.TouchSensor(ctx, 1, t0.Add(-time.Minute)))

	n, err := s.AngleNode(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, n.LastSeen)
	assert.True(t, n.LastSeen.Equal(t0))
	assert.True(t, n.Alive)
	assert.True(t, n.SaveStatus, "new sensors record by default")

	require.NoError(t, s.TouchSensor(ctx, 1, t0.Add(time.Minute)))
	n, err = s.AngleNode(ctx, 1)
	require.NoError(t, err)
	assert.True(t, n.LastSeen.Equal(t0.Add(time.Minute)))
}

func TestSaveAllowed(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	ok, err := s.SaveAllowed(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok, "unknown sensors record")

	require.NoError(t, s.TouchSensor(ctx, 5, t0))
	matched, changed, err := s.SetSaveStatus(ctx, 5, false, t0)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.True(t, changed)

	ok, err = s.SaveAllowed(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.AngleNode(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, n.SaveStatusChangedAt)
	assert.True(t, n.SaveStatusChangedAt.Equal(t0))

	_, changed, err = s.SetSaveStatus(ctx, 5, false, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	n, err = s.AngleNode(ctx, 5)
	require.NoError(t, err)
	assert.True(t, n.SaveStatusChangedAt.Equal(t0), "unchanged value keeps the change time")

	matched, _, err = s.SetSaveStatus(ctx, 77, false, t0)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestSaveCalibrationCompareAndSwap(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.StartCalibration(ctx, 3, 5, t0))

	rec, err := s.Calibration(ctx, 3)
	require.NoError(t, err)
	assert.True(t, rec.Collecting)
	assert.Equal(t, 0, rec.SampleCount)

	next, _ := rec.Accumulate(1, 1, t0)
	require.NoError(t, s.SaveCalibration(ctx, next, rec.SampleCount))

	stale, _ := rec.Accumulate(2, 2, t0)
	err = s.SaveCalibration(ctx, stale, rec.SampleCount)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Calibration(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SampleCount)
	assert.Equal(t, 1.0, got.SumX)

	assert.ErrorIs(t, s.CreateCalibration(ctx, entities.NewAngleCalibration(3)), ErrConflict)
}

func TestStartCalibrationResetsRecord(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := entities.NewAngleCalibration(9)
	rec.Applied, rec.OffsetX, rec.OffsetY = true, 1.5, -1.5
	require.NoError(t, s.CreateCalibration(ctx, rec))

	require.NoError(t, s.StartCalibration(ctx, 9, 3, t0))
	got, err := s.Calibration(ctx, 9)
	require.NoError(t, err)
	assert.False(t, got.Applied)
	assert.Zero(t, got.OffsetX)
	assert.True(t, got.Collecting)
	assert.Equal(t, 3, got.SampleTarget)
	assert.Equal(t, "collecting 3 samples", got.Note)
	require.NotNil(t, got.StartedAt)

	found, err := s.CancelCalibration(ctx, 9, false)
	require.NoError(t, err)
	assert.True(t, found)
	got, err = s.Calibration(ctx, 9)
	require.NoError(t, err)
	assert.False(t, got.Collecting)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, "canceled", got.Note)

	found, err = s.CancelCalibration(ctx, 9, true)
	require.NoError(t, err)
	assert.True(t, found)
	got, err = s.Calibration(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "canceled, offset reset", got.Note)

	found, err = s.CancelCalibration(ctx, 10, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestThresholdsFallback(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	bare, err := s.CreateBuilding(ctx, entities.Building{Name: "bare"})
	require.NoError(t, err)
	wide, err := s.CreateBuilding(ctx, entities.Building{Name: "wide", AlarmYellow: ptr(5.0), AlarmRed: ptr(10.0)})
	require.NoError(t, err)
	require.NoError(t, s.SetThreshold(ctx, wide.ID, "angle_y", entities.AlertThresholds{Yellow: 1, Red: 2}))

	th, err := s.Thresholds(ctx, wide.ID, "angle_x")
	require.NoError(t, err)
	assert.Equal(t, entities.AlertThresholds{Yellow: 5, Red: 10}, th)

	th, err = s.Thresholds(ctx, wide.ID, "angle_y")
	require.NoError(t, err)
	assert.Equal(t, entities.AlertThresholds{Yellow: 1, Red: 2}, th)

	require.NoError(t, s.SetThreshold(ctx, wide.ID, "angle_y", entities.AlertThresholds{Yellow: 0, Red: 3}))
	th, err = s.Thresholds(ctx, wide.ID, "angle_y")
	require.NoError(t, err)
	assert.Equal(t, entities.AlertThresholds{Yellow: 0, Red: 3}, th)

	_, err = s.Thresholds(ctx, bare.ID, "angle_x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Thresholds(ctx, 999, "angle_x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuildingOfAndPosition(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	b, err := s.CreateBuilding(ctx, entities.Building{Name: "north"})
	require.NoError(t, err)

	_, err = s.BuildingOf(ctx, "0001")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.TouchGateway(ctx, "0001", t0))
	_, err = s.BuildingOf(ctx, "0001")
	assert.ErrorIs(t, err, ErrNotFound, "gateway without building")

	_, err = s.AttachGateway(ctx, "0001", &b.ID, "")
	require.NoError(t, err)
	id, err := s.BuildingOf(ctx, "0001")
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	require.NoError(t, s.TouchSensor(ctx, 4, t0))
	assert.Equal(t, "", s.Position(ctx, "0001", 4))
	require.NoError(t, s.SetPosition(ctx, 4, "pillar 3"))
	assert.Equal(t, "pillar 3", s.Position(ctx, "0001", 4))

	_, err = s.AttachGateway(ctx, "0001", &b.ID, "east wing")
	require.NoError(t, err)
	assert.Equal(t, "east wing", s.Position(ctx, "0001", 4))
	assert.ErrorIs(t, s.SetPosition(ctx, 404, "x"), ErrNotFound)
}

func TestSweepLiveness(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.TouchSensor(ctx, 1, t0.Add(-2*time.Hour)))
	require.NoError(t, s.TouchSensor(ctx, 2, t0))
	require.NoError(t, s.TouchGateway(ctx, "old", t0.Add(-2*time.Hour)))
	require.NoError(t, s.TouchGateway(ctx, "new", t0))

	res, err := s.SweepLiveness(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{GatewaysDown: 1, SensorsDown: 1}, res)

	n, err := s.AngleNode(ctx, 1)
	require.NoError(t, err)
	assert.False(t, n.Alive)
	n, err = s.AngleNode(ctx, 2)
	require.NoError(t, err)
	assert.True(t, n.Alive)

	res, err = s.SweepLiveness(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.SensorsDown)

	require.NoError(t, s.TouchSensor(ctx, 1, t0))
	n, err = s.AngleNode(ctx, 1)
	require.NoError(t, err)
	assert.True(t, n.Alive)
}

func TestHistoryAndAlerts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendAngleHistory(ctx, entities.AngleNodeHistory{
			GatewaySerial: "0001", DoorNum: 1, AngleX: float64(i), CreatedAt: t0.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	rows, err := s.AngleHistory(ctx, 1, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, rows[0].AngleX)

	for _, lvl := range []entities.AlertLevel{entities.LevelYellow, entities.LevelRed} {
		_, err := s.AppendAlert(ctx, entities.AlertLog{
			BuildingID: 1, GatewaySerial: "0001", DoorNum: 1, Level: lvl, Metric: "angle_x",
			Value: 7, Threshold: 5, Raw: map[string]any{"doorNum": 1}, CreatedAt: t0,
		})
		require.NoError(t, err)
	}
	alerts, err := s.Alerts(ctx, AlertFilter{BuildingID: 1, Level: entities.LevelRed})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, entities.LevelRed, alerts[0].Level)
	assert.EqualValues(t, 1, alerts[0].Raw["doorNum"])
}

func TestUpdateDoorNode(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.UpdateDoorNode(ctx, 11, 1, 0, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateDoorNode(ctx, entities.DoorNode{DoorNum: 11}))
	n, err := s.UpdateDoorNode(ctx, 11, 1, 2, ptr(3))
	require.NoError(t, err)
	assert.Equal(t, 1, n.DoorChk)
	assert.Equal(t, 2, n.BetChk)
	require.NotNil(t, n.BetChk2)
	assert.Equal(t, 3, *n.BetChk2)
}
