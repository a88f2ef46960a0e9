package service

import (
	"time"

	"github.com/youjaegwon/coinwatch/internal/repository"
)

// SessionView is the user-visible shape of an active refresh-token record.
type SessionView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
}

type SessionService struct {
	tokenRepo repository.TokenRepository
}

func NewSessionService(tokenRepo repository.TokenRepository) *SessionService {
	return &SessionService{tokenRepo: tokenRepo}
}

func (s *SessionService) ListActiveSessions(userID uint) ([]SessionView, error) {
	tokens, err := s.tokenRepo.ListActiveForUser(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, SessionView{
			ID:        t.ID,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			UserAgent: t.UserAgent,
			IP:        t.IP,
		})
	}
	return views, nil
}
