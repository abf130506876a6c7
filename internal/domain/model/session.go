package model

import "time"

// UserSession is the paid chat window derived from a paid Booking.
type UserSession struct {
	BookingID         string        `json:"booking_id,omitempty"`
	PersonaID         string        `json:"persona_id"`
	SessionStart      time.Time     `json:"session_start"`
	PaidUntil         time.Time     `json:"paid_until"`
	TotalPrice        float64       `json:"total_price"`
	MessagesExchanged int           `json:"messages_exchanged"`
	History           []ChatMessage `json:"history"`
	IsActive          bool          `json:"is_active"`
	ScheduledStart    *time.Time    `json:"scheduled_start,omitempty"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
}

// NewSessionFromBooking materializes the session funded by b at paidAt.
// Future-scheduled sessions start inactive.
func NewSessionFromBooking(b *Booking, paidAt time.Time) *UserSession {
	start, until := b.Window(paidAt)
	s := &UserSession{
		BookingID:    b.ID,
		PersonaID:    b.PersonaID,
		SessionStart: start,
		PaidUntil:    until,
		TotalPrice:   b.TotalPrice,
		History:      make([]ChatMessage, 0, 8),
		IsActive:     !b.HasFutureSchedule(paidAt),
	}
	if b.ScheduledStart != nil {
		ss := *b.ScheduledStart
		s.ScheduledStart = &ss
	}
	return s
}

// ActiveAt reports whether chat is allowed at now.
func (s *UserSession) ActiveAt(now time.Time) bool {
	return s.IsActive && now.Before(s.PaidUntil)
}

// Ended reports whether the session was already closed.
func (s *UserSession) Ended() bool { return s.EndedAt != nil }

// DueToStart reports a scheduled session whose start has arrived while its
// window is still open.
func (s *UserSession) DueToStart(now time.Time) bool {
	return !s.IsActive && !s.Ended() && s.ScheduledStart != nil &&
		!now.Before(*s.ScheduledStart) && now.Before(s.PaidUntil)
}

// DueToEnd reports a session whose paid window elapsed and which has not been
// closed yet. Covers scheduled sessions whose whole window was missed.
func (s *UserSession) DueToEnd(now time.Time) bool {
	if s.Ended() || !now.After(s.PaidUntil) {
		return false
	}
	return s.IsActive || s.ScheduledStart != nil
}

func (s *UserSession) Activate() { s.IsActive = true }

func (s *UserSession) End(now time.Time) {
	s.IsActive = false
	s.EndedAt = &now
}

func (s *UserSession) Remaining(now time.Time) time.Duration {
	if !now.Before(s.PaidUntil) {
		return 0
	}
	return s.PaidUntil.Sub(now)
}

// AppendExchange records one user turn and the assistant reply.
func (s *UserSession) AppendExchange(userText, reply string, now time.Time) {
	s.History = append(s.History,
		ChatMessage{Role: RoleUser, Content: userText, At: now},
		ChatMessage{Role: RoleAssistant, Content: reply, At: now},
	)
	s.MessagesExchanged++
}

func (s *UserSession) Clone() *UserSession {
	if s == nil {
		return nil
	}
	c := *s
	c.History = cloneMessages(s.History)
	if s.ScheduledStart != nil {
		t := *s.ScheduledStart
		c.ScheduledStart = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
