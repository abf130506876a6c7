package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
)

// StateBlobs are the JSON columns of a persisted UserState.
type StateBlobs struct {
	Session []byte // nil when there is no session
	History []byte
	Prefs   []byte
}

func EncodeState(s *UserState) (StateBlobs, error) {
	var out StateBlobs
	var err error
	if s.CurrentSession != nil {
		if out.Session, err = json.Marshal(s.CurrentSession); err != nil {
			return out, fmt.Errorf("%w: session: %v", domain.ErrSerialization, err)
		}
	}
	history := s.ConversationHistory
	if history == nil {
		history = []ChatMessage{}
	}
	if out.History, err = json.Marshal(history); err != nil {
		return out, fmt.Errorf("%w: history: %v", domain.ErrSerialization, err)
	}
	if out.Prefs, err = json.Marshal(s.Preferences); err != nil {
		return out, fmt.Errorf("%w: preferences: %v", domain.ErrSerialization, err)
	}
	return out, nil
}

func DecodeState(userID int64, personaID string, b StateBlobs, updatedAt time.Time) (*UserState, error) {
	s := NewUserState(userID, personaID)
	s.UpdatedAt = updatedAt
	if len(b.Session) > 0 && string(b.Session) != "null" {
		var sess UserSession
		if err := json.Unmarshal(b.Session, &sess); err != nil {
			return nil, fmt.Errorf("%w: session of user %d: %v", domain.ErrSerialization, userID, err)
		}
		s.CurrentSession = &sess
	}
	if len(b.History) > 0 {
		if err := json.Unmarshal(b.History, &s.ConversationHistory); err != nil {
			return nil, fmt.Errorf("%w: history of user %d: %v", domain.ErrSerialization, userID, err)
		}
		if s.ConversationHistory == nil {
			s.ConversationHistory = []ChatMessage{}
		}
	}
	if len(b.Prefs) > 0 {
		if err := json.Unmarshal(b.Prefs, &s.Preferences); err != nil {
			return nil, fmt.Errorf("%w: preferences of user %d: %v", domain.ErrSerialization, userID, err)
		}
	}
	return s, nil
}
