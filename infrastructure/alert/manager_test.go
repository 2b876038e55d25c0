package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/risk"
)

var day = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)

func TestSendAlertThrottlesByEventTime(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 24*time.Hour)

	a := Alert{Level: LevelWarning, Message: "亏损上限收紧", Timestamp: day}
	require.NoError(t, mgr.SendAlert(a))
	a.Timestamp = day.Add(time.Hour)
	require.NoError(t, mgr.SendAlert(a)) // 同一天被限流
	a.Timestamp = day.AddDate(0, 0, 1)
	require.NoError(t, mgr.SendAlert(a))

	assert.Len(t, mock.Alerts(), 2)
	assert.Equal(t, []string{"mock"}, mgr.Channels())
}

func TestSendAlertChannelFailures(t *testing.T) {
	bad1, bad2 := NewMockChannel("a"), NewMockChannel("b")
	bad1.SetShouldError(true)
	bad2.SetShouldError(true)
	mgr := NewManager([]Channel{bad1, bad2}, 0)

	err := mgr.SendAlert(Alert{Level: LevelError, Message: "x", Timestamp: day})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	// 任一通道成功即视为送达
	good := NewMockChannel("good")
	mgr.AddChannel(good)
	require.NoError(t, mgr.SendAlert(Alert{Level: LevelError, Message: "y", Timestamp: day}))
	assert.Len(t, good.Alerts(), 1)
}

func TestOnNotch(t *testing.T) {
	tests := []struct {
		name   string
		adj    risk.NotchAdjustment
		levels []Level
	}{
		{
			name:   "flat",
			adj:    risk.NotchAdjustment{Day: day, DailyPnL: 10, Limit: 500, NewLimit: 500, Reason: risk.ReasonFlat},
			levels: nil,
		},
		{
			name:   "tightened",
			adj:    risk.NotchAdjustment{Day: day, DailyPnL: -150, Limit: 500, NewLimit: 300, OldIndex: 0, NewIndex: 1, Delta: 1, Reason: risk.ReasonLossTier},
			levels: []Level{LevelWarning},
		},
		{
			name:   "floor",
			adj:    risk.NotchAdjustment{Day: day, DailyPnL: -90, Limit: 200, NewLimit: 100, OldIndex: 2, NewIndex: 3, Delta: 1, Reason: risk.ReasonLossTier},
			levels: []Level{LevelCritical},
		},
		{
			name:   "breach",
			adj:    risk.NotchAdjustment{Day: day, DailyPnL: -600, Limit: 500, NewLimit: 200, OldIndex: 0, NewIndex: 2, Delta: 2, Reason: risk.ReasonLossTier},
			levels: []Level{LevelCritical, LevelWarning},
		},
		{
			name:   "loosened",
			adj:    risk.NotchAdjustment{Day: day, DailyPnL: 200, Limit: 300, NewLimit: 500, OldIndex: 1, NewIndex: 0, Delta: -1, Reason: risk.ReasonMajorProfit},
			levels: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockChannel("mock")
			mgr := NewManager([]Channel{mock}, 0)
			require.NoError(t, mgr.OnNotch("RUN1", tt.adj, 3))

			var got []Level
			for _, a := range mock.Alerts() {
				got = append(got, a.Level)
				assert.True(t, a.Timestamp.Equal(day))
				assert.Equal(t, "RUN1", a.Source)
				assert.Equal(t, "RUN1", a.Fields["source"])
			}
			assert.Equal(t, tt.levels, got)
		})
	}
}

func TestOnNotchThrottlesPerSource(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 24*time.Hour)
	adj := risk.NotchAdjustment{Day: day, DailyPnL: -150, Limit: 500, NewLimit: 300, OldIndex: 0, NewIndex: 1, Delta: 1, Reason: risk.ReasonLossTier}

	require.NoError(t, mgr.OnNotch("run-a", adj, 3))
	require.NoError(t, mgr.OnNotch("run-b", adj, 3))
	require.NoError(t, mgr.OnNotch("run-a", adj, 3)) // 同一运行同一天限流

	var sources []string
	for _, a := range mock.Alerts() {
		sources = append(sources, a.Source)
	}
	assert.Equal(t, []string{"run-a", "run-b"}, sources)
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))

	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "日亏损超过当日上限", Timestamp: day, Fields: map[string]interface{}{"limit": 500.0}}))
	require.NoError(t, ch.Send(Alert{Level: LevelInfo, Message: "info", Timestamp: day}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "alert", entries[0].LoggerName)
	assert.Equal(t, 500.0, entries[0].ContextMap()["limit"])
	assert.Equal(t, "log", ch.Name())
}
