package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMinInterval KIS 限制每秒 20 次调用，这里按 ~16 次/秒 留出余量
const DefaultMinInterval = 60 * time.Millisecond

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Throttle()
}

// Clock 时间源，测试中可替换为 FakeClock
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock 使用真实时间
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// IntervalLimiter 最小间隔限速器：任意两次调用之间至少间隔 interval。
// 进程内共享一个实例，由调用方构造后注入。
type IntervalLimiter struct {
	interval time.Duration
	clock    Clock
	last     time.Time // 上次放行时间（零值表示尚未调用）
	mu       sync.Mutex
}

// NewIntervalLimiter 创建最小间隔限速器，interval <= 0 时使用默认值
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return NewIntervalLimiterWithClock(interval, SystemClock{})
}

// NewIntervalLimiterWithClock 使用指定时间源创建限速器
func NewIntervalLimiterWithClock(interval time.Duration, clock Clock) *IntervalLimiter {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &IntervalLimiter{
		interval: interval,
		clock:    clock,
	}
}

// Interval 返回最小调用间隔
func (l *IntervalLimiter) Interval() time.Duration {
	return l.interval
}

// Wait 阻塞直到距离上次调用已经过 interval，然后记录本次调用时间。
// 锁在等待期间一直持有，并发调用者按顺序放行。只在 ctx 取消时返回错误。
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	_, err := l.WaitDuration(ctx)
	return err
}

// WaitDuration 与 Wait 相同，同时返回实际等待的时长（用于指标）
func (l *IntervalLimiter) WaitDuration(ctx context.Context) (time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var waited time.Duration
	if !l.last.IsZero() {
		elapsed := l.clock.Now().Sub(l.last)
		if elapsed < l.interval {
			waited = l.interval - elapsed
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-l.clock.After(waited):
			}
		}
	}

	l.last = l.clock.Now()
	return waited, nil
}

// Throttle 不可取消的等待，永远不会失败
func (l *IntervalLimiter) Throttle() {
	_ = l.Wait(context.Background())
}

// FakeClock 测试用时间源：After 立即推进时间并返回
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock 创建从 start 开始的假时钟
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After 将时间推进 d 并返回一个已就绪的 channel
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance 手动推进时间（模拟两次调用之间的空闲）
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
