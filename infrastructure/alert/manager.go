package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"execution-sim-go/risk"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息。Timestamp 为事件时间，回测中即模拟日期；Source 区分并发的运行，参与限流 key。
type Alert struct {
	Source    string
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 按事件时间限流：同一 key 在 interval 内只放行一次。
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查 at 时刻是否允许发送
func (t *Throttler) Allow(key string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastSent[key]
	if !ok || at.Sub(last) >= t.interval || at.Before(last) {
		t.lastSent[key] = at
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 告警管理器
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器；throttleInterval<=0 时不限流。
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SendAlert 发送到所有通道。只有全部通道失败时返回错误（合并每个通道的错误）。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s:%s:%s", alert.Source, alert.Level, alert.Message)
	if !m.throttle.Allow(key, alert.Timestamp) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s failed: %w", ch.Name(), err))
			continue
		}
		ok++
	}
	if ok == 0 {
		return errs
	}
	return nil
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 通道名称
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// OnNotch 日终调档告警：收紧为 WARNING，收紧到最严档为 CRITICAL，
// 当日亏损超过当日上限（护栏失守）为 CRITICAL。其余不告警。source 通常是 run id。
func (m *Manager) OnNotch(source string, a risk.NotchAdjustment, lastIndex int) error {
	fields := map[string]interface{}{
		"source":    source,
		"day":       a.Day.Format("2006-01-02"),
		"daily_pnl": a.DailyPnL,
		"limit":     a.Limit,
		"new_limit": a.NewLimit,
		"reason":    a.Reason,
	}
	var errs error
	if a.DailyPnL < 0 && -a.DailyPnL > a.Limit+1e-9 {
		errs = multierr.Append(errs, m.SendAlert(Alert{Source: source, Level: LevelCritical, Message: "日亏损超过当日上限", Timestamp: a.Day, Fields: fields}))
	}
	switch {
	case a.Delta > 0 && a.NewIndex == lastIndex:
		errs = multierr.Append(errs, m.SendAlert(Alert{Source: source, Level: LevelCritical, Message: "亏损上限已收紧至最严档", Timestamp: a.Day, Fields: fields}))
	case a.Delta > 0:
		errs = multierr.Append(errs, m.SendAlert(Alert{Source: source, Level: LevelWarning, Message: "亏损上限收紧", Timestamp: a.Day, Fields: fields}))
	}
	return errs
}
