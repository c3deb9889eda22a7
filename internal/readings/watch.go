package readings

import (
	"log/slog"
	"sync"

	"floodwatch/internal/model"
)

const watchBuffer = 64

// Subscription is a cancellable stream of readings for one station. C is
// closed on cancel. Cancel is idempotent and safe when nothing is pending.
type Subscription struct {
	C         <-chan model.StationReading
	ch        chan model.StationReading
	store     *Store
	stationID string
	once      sync.Once
}

// Watch registers a watcher on a station's current reading. The station does
// not need to exist yet; readings arriving later are delivered as they land.
func (s *Store) Watch(stationID string) *Subscription {
	ch := make(chan model.StationReading, watchBuffer)
	sub := &Subscription{C: ch, ch: ch, store: s, stationID: stationID}
	s.mu.Lock()
	s.station(stationID).watchers[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		if st, ok := sub.store.stations[sub.stationID]; ok {
			delete(st.watchers, sub)
		}
		sub.store.mu.Unlock()
		close(sub.ch)
	})
}

// deliver is non-blocking: a watcher that cannot keep up loses readings
// rather than stalling ingest. Only the latest reading matters downstream.
func (sub *Subscription) deliver(rd model.StationReading, logger *slog.Logger) {
	select {
	case sub.ch <- rd:
	default:
		if logger != nil {
			logger.Warn("watch channel full, dropping reading", "station", rd.StationID)
		}
	}
}
