package driver

import (
	"github.com/geoflow/geoflow/core/domain"
	apperrors "github.com/geoflow/geoflow/core/shared/errors"
)

// State is the application state owned by the driver loop.
// Nothing outside the loop goroutine touches it.
type State struct {
	sessions   []*domain.QuerySession
	index      map[string]*domain.QuerySession
	layers     []domain.MapLayerDescriptor
	dispatched map[string]bool
}

func newState() *State {
	return &State{
		index:      make(map[string]*domain.QuerySession),
		dispatched: make(map[string]bool),
	}
}

func (s *State) addSession(session *domain.QuerySession) {
	s.sessions = append(s.sessions, session)
	s.index[session.ID] = session
}

func (s *State) session(id string) (*domain.QuerySession, error) {
	session, ok := s.index[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session '%s' not found", id)
	}
	return session, nil
}

func (s *State) step(sessionID, stepID string) (*domain.QuerySession, int, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, -1, err
	}
	idx := session.Step(stepID)
	if idx < 0 {
		return nil, -1, apperrors.Newf(apperrors.ErrCodeStepNotFound, "step '%s' not found in session '%s'", stepID, sessionID)
	}
	return session, idx, nil
}

func (s *State) layer(id string) (domain.MapLayerDescriptor, error) {
	for _, layer := range s.layers {
		if layer.ID == id {
			return layer, nil
		}
	}
	return domain.MapLayerDescriptor{}, apperrors.Newf(apperrors.ErrCodeLayerNotFound, "layer '%s' not found", id)
}

// restore loads persisted records. Steps caught mid-run are reset to pending
// because their timers did not survive the restart.
func (s *State) restore(sessions []*domain.QuerySession, layers []domain.MapLayerDescriptor) []*domain.QuerySession {
	var reset []*domain.QuerySession
	for _, session := range sessions {
		changed := false
		for i := range session.Steps {
			if session.Steps[i].Status == domain.StepExecuting {
				session.Steps[i].Status = domain.StepPending
				session.Steps[i].Result = nil
				changed = true
			}
		}
		s.addSession(session)
		if changed {
			reset = append(reset, session)
		}
	}
	s.layers = append(s.layers, layers...)
	return reset
}
