// Package history maintains bounded per-zone, per-day temperature aggregates
// derived from poll readings.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/models"
)

// Backend persists the ledger so history survives restarts. Implementations
// live in subpackages; the store works without one.
type Backend interface {
	// SaveAggregate upserts one (zone, day) aggregate and the zone's last
	// seen name.
	SaveAggregate(ctx context.Context, agg models.DailyAggregate, zoneName string) error

	// LoadAll returns every stored aggregate plus the zone name map.
	LoadAll(ctx context.Context) ([]models.DailyAggregate, map[string]string, error)

	// DeleteBefore removes aggregates dated strictly before the given
	// YYYY-MM-DD date.
	DeleteBefore(ctx context.Context, date string) error

	Close() error
}

// zoneLedger holds one zone's aggregates, ascending by date.
type zoneLedger struct {
	name string
	days []models.DailyAggregate
}

// Store owns the history ledger. The poll coordinator is its only writer;
// queries get copies.
type Store struct {
	mu            sync.RWMutex
	zones         map[string]*zoneLedger
	retentionDays int
	backend       Backend
	logger        *logrus.Logger
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBackend attaches a persistence backend. Existing aggregates are loaded
// into the ledger immediately.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithClock overrides the store's notion of "today" for retention. Used in
// tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a history store keeping retentionDays of daily aggregates
// per zone.
func NewStore(retentionDays int, logger *logrus.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		zones:         make(map[string]*zoneLedger),
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend != nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	aggregates, names, err := s.backend.LoadAll(context.Background())
	if err != nil {
		return err
	}

	for _, agg := range aggregates {
		ledger := s.ledgerFor(agg.ZoneID)
		ledger.days = append(ledger.days, agg)
	}
	for zoneID, name := range names {
		s.ledgerFor(zoneID).name = name
	}
	for _, ledger := range s.zones {
		sort.Slice(ledger.days, func(i, j int) bool {
			return ledger.days[i].Date < ledger.days[j].Date
		})
	}

	s.logger.WithField("aggregates", len(aggregates)).Info("Loaded history from backend")
	return nil
}

func (s *Store) ledgerFor(zoneID string) *zoneLedger {
	ledger, ok := s.zones[zoneID]
	if !ok {
		ledger = &zoneLedger{}
		s.zones[zoneID] = ledger
	}
	return ledger
}

// Ingest records one sample. Readings without a current temperature are
// skipped; they carry nothing to aggregate.
func (s *Store) Ingest(reading models.ZoneReading) {
	if reading.CurrentTemp == nil {
		return
	}
	value := *reading.CurrentTemp
	date := models.DateOf(reading.ObservedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.ledgerFor(reading.ZoneID)
	if reading.Name != "" {
		ledger.name = reading.Name
	}

	agg := ledger.upsert(reading.ZoneID, date, value)
	s.evictLocked()

	if s.backend != nil {
		if err := s.backend.SaveAggregate(context.Background(), agg, ledger.name); err != nil {
			s.logger.WithError(err).WithField("zone_id", reading.ZoneID).Error("Failed to persist aggregate")
		}
	}
}

// upsert folds value into the (zone, date) aggregate, creating it if absent,
// and returns the updated copy.
func (l *zoneLedger) upsert(zoneID, date string, value float64) models.DailyAggregate {
	i := sort.Search(len(l.days), func(i int) bool { return l.days[i].Date >= date })
	if i < len(l.days) && l.days[i].Date == date {
		agg := &l.days[i]
		agg.Count++
		agg.Sum += value
		if value < agg.Min {
			agg.Min = value
		}
		if value > agg.Max {
			agg.Max = value
		}
		return *agg
	}

	agg := models.DailyAggregate{
		ZoneID: zoneID,
		Date:   date,
		Count:  1,
		Sum:    value,
		Min:    value,
		Max:    value,
	}
	l.days = append(l.days, models.DailyAggregate{})
	copy(l.days[i+1:], l.days[i:])
	l.days[i] = agg
	return agg
}

// EvictExpired drops aggregates older than the retention window. Called on
// every ingest and by the daily maintenance job.
func (s *Store) EvictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
}

func (s *Store) evictLocked() {
	cutoff := models.DateOf(s.now().AddDate(0, 0, -s.retentionDays))

	for _, ledger := range s.zones {
		i := sort.Search(len(ledger.days), func(i int) bool { return ledger.days[i].Date >= cutoff })
		if i > 0 {
			ledger.days = append(ledger.days[:0], ledger.days[i:]...)
		}
	}

	if s.backend != nil {
		if err := s.backend.DeleteBefore(context.Background(), cutoff); err != nil {
			s.logger.WithError(err).Error("Failed to evict persisted aggregates")
		}
	}
}

// Query returns the zone's aggregates with from <= date <= to, ascending by
// date. Missing zones or empty ranges yield an empty slice, never an error.
func (s *Store) Query(zoneID string, from, to time.Time) []models.DailyAggregate {
	fromDate := models.DateOf(from)
	toDate := models.DateOf(to)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger, ok := s.zones[zoneID]
	if !ok {
		return nil
	}

	var out []models.DailyAggregate
	for _, agg := range ledger.days {
		if agg.Date < fromDate || agg.Date > toDate {
			continue
		}
		out = append(out, agg)
	}
	return out
}

// ZoneIDs lists every zone with history, ascending by zone index.
func (s *Store) ZoneIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return models.ZoneIndex(ids[i]) < models.ZoneIndex(ids[j])
	})
	return ids
}

// ZoneName returns the zone's last seen room name, or the id itself.
func (s *Store) ZoneName(zoneID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ledger, ok := s.zones[zoneID]; ok && ledger.name != "" {
		return ledger.name
	}
	return zoneID
}

// Close releases the backend, if any.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
