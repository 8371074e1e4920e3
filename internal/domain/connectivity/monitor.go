// Package connectivity отслеживает доступность сервера.
//
// Монитор хранит одно булево состояние и рассылает подписчикам события
// при каждом переходе. Пока ничего не известно, сеть считается доступной.
package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Event переход состояния сети
type Event struct {
	Online bool
	At     time.Time
}

// Checker проверяет доступность сервера, например запросом /health
type Checker interface {
	HealthCheck(ctx context.Context) error
}

type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan Event
	nextID int
	log    *slog.Logger
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{
		online: true,
		subs:   make(map[int]chan Event),
		log:    log.With("component", "connectivity"),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set фиксирует новое состояние; подписчики получают событие только при изменении.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	m.log.Info("connectivity changed", "online", online)

	ev := Event{Online: online, At: time.Now()}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			// подписчик не успевает, актуальное состояние доступно через IsOnline
			m.log.Debug("dropping connectivity event for slow subscriber")
		}
	}
}

// Subscribe возвращает канал событий и функцию отписки. Канал закрывается при отписке.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, 4)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Watch периодически опрашивает checker до отмены ctx.
func (m *Monitor) Watch(ctx context.Context, checker Checker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.probe(ctx, checker, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx, checker, interval)
		}
	}
}

func (m *Monitor) probe(ctx context.Context, checker Checker, timeout time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := checker.HealthCheck(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.Debug("health check failed", "error", err)
	}
	m.Set(err == nil)
}
