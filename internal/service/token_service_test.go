package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
)

const testPepper = "test-pepper"

// memoryTokenRepo mimics the conditional-update semantics of the gorm ledger
// so the rotation race can be exercised without a database.
type memoryTokenRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*domain.RefreshToken
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{rows: map[uint]*domain.RefreshToken{}}
}

func (m *memoryTokenRepo) Create(t *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memoryTokenRepo) FindByHash(hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == hash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (m *memoryTokenRepo) FindByID(id uint) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memoryTokenRepo) Rotate(oldID uint, replacement *domain.RefreshToken) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[oldID]
	if !ok || old.RevokedAt != nil {
		return nil, repository.ErrTokenRevoked
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	m.nextID++
	replacement.ID = m.nextID
	cp := *replacement
	m.rows[replacement.ID] = &cp
	old.ReplacedBy = &replacement.ID
	return replacement, nil
}

func (m *memoryTokenRepo) RevokeByHash(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == hash && row.RevokedAt == nil {
			now := time.Now().UTC()
			row.RevokedAt = &now
		}
	}
	return nil
}

func (m *memoryTokenRepo) RevokeAllForUser(userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, row := range m.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			now := time.Now().UTC()
			row.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *memoryTokenRepo) ListActiveForUser(userID uint) ([]domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	now := time.Now()
	for _, row := range m.rows {
		if row.UserID == userID && row.Active(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memoryTokenRepo) DeleteExpired(olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, row := range m.rows {
		if !row.ExpiresAt.After(olderThan) {
			delete(m.rows, id)
			count++
		}
	}
	return count, nil
}

func (m *memoryTokenRepo) expireRaw(raw string) {
	hash := security.HashRefreshToken(raw, testPepper)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == hash {
			row.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
}

func (m *memoryTokenRepo) hasRawStored(raw string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TokenHash == raw {
			return true
		}
	}
	return false
}

func newTokenServiceForTest(repo repository.TokenRepository) *TokenService {
	return NewTokenService(repo, testPepper, time.Hour)
}

func TestTokenServiceIssueReturnsUniqueRawTokens(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	first, err := svc.Issue(1, TokenMeta{UserAgent: "cli", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := svc.Issue(1, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct raw tokens")
	}
	if repo.hasRawStored(first) || repo.hasRawStored(second) {
		t.Fatal("ledger must store the hash, never the raw token")
	}
}

func TestTokenServiceRotateProducesFreshTokenAndKillsOld(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	raw, err := svc.Issue(42, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, userID, err := svc.Rotate(raw, TokenMeta{UserAgent: "browser"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
	if rotated == raw {
		t.Fatal("rotation must mint a new token")
	}

	// The presented token is now dead, even for its rightful owner.
	if _, _, err := svc.Rotate(raw, TokenMeta{}); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked on replay, got %v", err)
	}

	// The replacement keeps working.
	if _, _, err := svc.Rotate(rotated, TokenMeta{}); err != nil {
		t.Fatalf("rotate replacement: %v", err)
	}
}

func TestTokenServiceRotateUnknownToken(t *testing.T) {
	svc := newTokenServiceForTest(newMemoryTokenRepo())
	if _, _, err := svc.Rotate("no-such-token", TokenMeta{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestTokenServiceRotateExpiredToken(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	raw, err := svc.Issue(1, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	repo.expireRaw(raw)

	if _, _, err := svc.Rotate(raw, TokenMeta{}); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
}

func TestTokenServiceExpiryTakesPrecedenceOverRevocation(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	raw, err := svc.Issue(1, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(raw); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	repo.expireRaw(raw)

	// Expired and revoked at once: expiry wins.
	if _, _, err := svc.Rotate(raw, TokenMeta{}); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
}

func TestTokenServiceConcurrentRotationSingleWinner(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	raw, err := svc.Issue(1, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := svc.Rotate(raw, TokenMeta{})
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, replays int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshTokenRevoked):
			replays++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", wins)
	}
	if replays != workers-1 {
		t.Fatalf("expected %d losers, got %d", workers-1, replays)
	}
}

func TestTokenServiceRevokeIsIdempotent(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	raw, err := svc.Issue(1, TokenMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.Revoke(raw); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	if err := svc.Revoke("never-issued"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}

	if _, _, err := svc.Rotate(raw, TokenMeta{}); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked after revoke, got %v", err)
	}
}

func TestTokenServiceRevokeAll(t *testing.T) {
	repo := newMemoryTokenRepo()
	svc := newTokenServiceForTest(repo)

	var raws []string
	for i := 0; i < 3; i++ {
		raw, err := svc.Issue(9, TokenMeta{})
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		raws = append(raws, raw)
	}
	otherRaw, err := svc.Issue(10, TokenMeta{})
	if err != nil {
		t.Fatalf("issue other: %v", err)
	}

	count, err := svc.RevokeAll(9)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked, got %d", count)
	}
	for _, raw := range raws {
		if _, _, err := svc.Rotate(raw, TokenMeta{}); !errors.Is(err, ErrRefreshTokenRevoked) {
			t.Fatalf("expected revoked after revoke-all, got %v", err)
		}
	}
	if _, _, err := svc.Rotate(otherRaw, TokenMeta{}); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}
}
