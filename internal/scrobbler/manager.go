package scrobbler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager holds every registered backend and the subset that currently has a
// valid session (bound). Membership is keyed by scrobbler ID, never by object
// reference. The registered set is fixed at construction; only bind state
// changes at runtime.
type Manager struct {
	logger *zap.Logger

	registered map[string]Scrobbler
	order      []string

	mu    sync.Mutex
	bound map[string]Scrobbler
}

// ScrobblerStatus describes one registered backend for status reporting.
type ScrobblerStatus struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	StatusURL       string `json:"statusUrl,omitempty"`
	Bound           bool   `json:"bound"`
	CanLoveSong     bool   `json:"canLoveSong"`
	CanLoadSongInfo bool   `json:"canLoadSongInfo"`
}

// NewManager builds a manager over an explicit registered set. Scrobblers are
// dispatched in registration order.
func NewManager(logger *zap.Logger, scrobblers ...Scrobbler) *Manager {
	m := &Manager{
		logger:     logger,
		registered: make(map[string]Scrobbler, len(scrobblers)),
		bound:      make(map[string]Scrobbler),
	}
	for _, s := range scrobblers {
		if _, dup := m.registered[s.ID()]; dup {
			panic(fmt.Sprintf("duplicate scrobbler id %q", s.ID()))
		}
		m.registered[s.ID()] = s
		m.order = append(m.order, s.ID())
	}
	return m
}

// ByID returns the registered scrobbler with the given ID.
func (m *Manager) ByID(id string) (Scrobbler, bool) {
	s, ok := m.registered[id]
	return s, ok
}

// Registered returns all known scrobblers in registration order.
func (m *Manager) Registered() []Scrobbler {
	out := make([]Scrobbler, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.registered[id])
	}
	return out
}

// Bound returns the currently authenticated scrobblers in registration order.
func (m *Manager) Bound() []Scrobbler {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Scrobbler, 0, len(m.bound))
	for _, id := range m.order {
		if s, ok := m.bound[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// IsBound reports bind state by scrobbler ID.
func (m *Manager) IsBound(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bound[id]
	return ok
}

// Bind adds a scrobbler to the bound set. Idempotent.
func (m *Manager) Bind(s Scrobbler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bound[s.ID()]; ok {
		return
	}
	m.bound[s.ID()] = s
	m.logger.Info("Bound scrobbler", zap.String("scrobbler", s.ID()))
}

// Unbind removes a scrobbler from the bound set. Unbinding a non-member is
// logged but not an error.
func (m *Manager) Unbind(s Scrobbler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bound[s.ID()]; !ok {
		m.logger.Debug("Unbind of scrobbler that is not bound", zap.String("scrobbler", s.ID()))
		return
	}
	delete(m.bound, s.ID())
	m.logger.Info("Unbound scrobbler", zap.String("scrobbler", s.ID()))
}

// BindAll attempts a session on every registered scrobbler. Attempts run
// independently; one backend's failure never blocks or fails the others.
// Returns the scrobblers that ended up bound.
func (m *Manager) BindAll(ctx context.Context) []Scrobbler {
	registered := m.Registered()

	var wg sync.WaitGroup
	for _, s := range registered {
		wg.Add(1)
		go func(s Scrobbler) {
			defer wg.Done()
			if _, err := s.GetSession(ctx); err != nil {
				m.logger.Info("Scrobbler has no session",
					zap.String("scrobbler", s.ID()),
					zap.Error(err))
				return
			}
			m.Bind(s)
		}(s)
	}
	wg.Wait()

	return m.Bound()
}

// BindByID runs the session exchange for a single registered scrobbler and
// binds it on success. Used after an auth callback completes.
func (m *Manager) BindByID(ctx context.Context, id string) error {
	s, ok := m.registered[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScrobbler, id)
	}
	if _, err := s.GetSession(ctx); err != nil {
		return fmt.Errorf("get session for %q: %w", id, err)
	}
	m.Bind(s)
	return nil
}

// SendNowPlaying reports a started track to every bound scrobbler. The
// aggregate always contains one settled result per bound scrobbler.
func (m *Manager) SendNowPlaying(ctx context.Context, song SongInfo) Results {
	return m.dispatch(m.Bound(), func(s Scrobbler) error {
		return s.SendNowPlaying(ctx, song)
	})
}

// Scrobble reports a completed listen to every bound scrobbler.
func (m *Manager) Scrobble(ctx context.Context, song SongInfo) Results {
	return m.dispatch(m.Bound(), func(s Scrobbler) error {
		return s.Scrobble(ctx, song)
	})
}

// ScrobbleWith is Scrobble restricted to an explicit ID subset, for per-
// service retry flows. Any unknown ID fails the whole request before a single
// backend is called.
func (m *Manager) ScrobbleWith(ctx context.Context, song SongInfo, ids []string) (Results, error) {
	targets := make([]Scrobbler, 0, len(ids))
	for _, id := range ids {
		s, ok := m.registered[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScrobbler, id)
		}
		targets = append(targets, s)
	}

	return m.dispatch(targets, func(s Scrobbler) error {
		return s.Scrobble(ctx, song)
	}), nil
}

// ToggleLove dispatches to every registered scrobbler that can love songs,
// regardless of bind state; some backends authenticate implicitly on love.
func (m *Manager) ToggleLove(ctx context.Context, song SongInfo, loved bool) Results {
	var targets []Scrobbler
	for _, s := range m.Registered() {
		if s.CanLoveSong() {
			targets = append(targets, s)
		}
	}

	return m.dispatch(targets, func(s Scrobbler) error {
		return s.ToggleLove(ctx, song, loved)
	})
}

// GetSongInfo asks every registered scrobbler that can load song info. A
// failing source degrades to a nil slot; lookups never block scrobbling
// correctness and never change binding state.
func (m *Manager) GetSongInfo(ctx context.Context, song SongInfo) []*TrackInfo {
	var targets []Scrobbler
	for _, s := range m.Registered() {
		if s.CanLoadSongInfo() {
			targets = append(targets, s)
		}
	}

	infos := make([]*TrackInfo, len(targets))
	var wg sync.WaitGroup
	for i, s := range targets {
		wg.Add(1)
		go func(i int, s Scrobbler) {
			defer wg.Done()
			info, err := s.GetSongInfo(ctx, song)
			if err != nil {
				m.logger.Debug("Song info lookup failed",
					zap.String("scrobbler", s.ID()),
					zap.Error(err))
				return
			}
			infos[i] = info
		}(i, s)
	}
	wg.Wait()

	return infos
}

// Status reports every registered backend with its current bind state.
func (m *Manager) Status() []ScrobblerStatus {
	statuses := make([]ScrobblerStatus, 0, len(m.order))
	for _, s := range m.Registered() {
		statuses = append(statuses, ScrobblerStatus{
			ID:              s.ID(),
			Label:           s.Label(),
			StatusURL:       s.StatusURL(),
			Bound:           m.IsBound(s.ID()),
			CanLoveSong:     s.CanLoveSong(),
			CanLoadSongInfo: s.CanLoadSongInfo(),
		})
	}
	return statuses
}

// dispatch fans call out to targets and waits for every call to settle. One
// slot per target, in target order, success or classified failure; a slow or
// failing backend only ever delays or fails its own slot.
func (m *Manager) dispatch(targets []Scrobbler, call func(Scrobbler) error) Results {
	results := make(Results, len(targets))

	var wg sync.WaitGroup
	for i, s := range targets {
		wg.Add(1)
		go func(i int, s Scrobbler) {
			defer wg.Done()
			results[i] = m.processResult(s, call(s))
		}(i, s)
	}
	wg.Wait()

	return results
}

// processResult classifies a settled call and applies the binding rule: an
// auth failure unbinds the scrobbler unless a sign-in flow is mid-flight,
// in which case the user just has not finished granting access yet.
func (m *Manager) processResult(s Scrobbler, err error) Result {
	result := classify(s.ID(), err)

	if result.Kind == KindAuth && !s.ReadyForGrantAccess() {
		m.logger.Warn("Scrobbler lost its session",
			zap.String("scrobbler", s.ID()),
			zap.Error(result.Err))
		m.Unbind(s)
	}

	return result
}
