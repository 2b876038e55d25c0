// Package id 生成按时间排序的记录 ID（run / fill / decision）。
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	if err := binary.Read(cryptorand.Reader, binary.LittleEndian, &seed); err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New 以当前时间生成 ULID。
func New() string {
	return At(time.Now())
}

// At 以给定时间戳生成 ULID，回测中使用模拟时钟，使 ID 与决策时间同序。
// 早于 Unix 纪元的时间按纪元处理。
func At(t time.Time) string {
	if t.Before(time.Unix(0, 0)) {
		t = time.Unix(0, 0)
	}
	mu.Lock()
	defer mu.Unlock()
	v, err := ulid.New(ulid.Timestamp(t.UTC()), entropy)
	if err != nil {
		// 同一毫秒内熵耗尽，退回非单调熵
		v = ulid.MustNew(ulid.Timestamp(t.UTC()), cryptorand.Reader)
	}
	return v.String()
}

// Time 解析 ID 中的毫秒时间戳。
func Time(s string) (time.Time, error) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(v.Time()).UTC(), nil
}
