package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"edutest-quiz-service/internal/domain"
)

// sessionRow mirrors the persisted session record.
type sessionRow struct {
	id           int64
	userID       int64
	topic        string
	total        int
	timerMinutes int
	startedAt    time.Time
	finishedAt   time.Time
	score        int
	details      []domain.TranscriptEntry
}

// ResultStore is an in-memory implementation of the persistence collaborator
// (users, session rows, points), useful for tests and demo runs without
// Postgres.
type ResultStore struct {
	mu          sync.RWMutex
	users       map[int64]*domain.User
	topicPoints map[int64]map[string]int
	sessions    map[int64]*sessionRow
	nextID      int64
	clock       func() time.Time
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		users:       make(map[int64]*domain.User),
		topicPoints: make(map[int64]map[string]int),
		sessions:    make(map[int64]*sessionRow),
		nextID:      1,
		clock:       time.Now,
	}
}

func (s *ResultStore) EnsureUser(_ context.Context, userID int64, fullName string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return *u, nil
	}
	u := &domain.User{ID: userID, FullName: fullName}
	s.users[userID] = u
	return *u, nil
}

func (s *ResultStore) SetUserName(_ context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.FullName = name
	return nil
}

func (s *ResultStore) SetApproved(_ context.Context, userID int64, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Approved = approved
	return nil
}

func (s *ResultStore) IsApproved(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return ok && u.Approved, nil
}

func (s *ResultStore) UserPoints(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return u.Points, nil
	}
	return 0, nil
}

func (s *ResultStore) ListPending(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []domain.User
	for _, u := range s.users {
		if !u.Approved {
			pending = append(pending, *u)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (s *ResultStore) StartSession(_ context.Context, userID int64, topic string, total, timerMinutes int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.sessions[id] = &sessionRow{
		id:           id,
		userID:       userID,
		topic:        topic,
		total:        total,
		timerMinutes: timerMinutes,
		startedAt:    s.clock(),
	}
	return id, nil
}

func (s *ResultStore) FinishSession(_ context.Context, sessionID int64, score int, details []domain.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	row.finishedAt = s.clock()
	row.score = score
	row.details = append([]domain.TranscriptEntry(nil), details...)
	return nil
}

func (s *ResultStore) AddPoints(_ context.Context, userID int64, points int, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Points += points
	if topic != "" {
		if s.topicPoints[userID] == nil {
			s.topicPoints[userID] = make(map[string]int)
		}
		s.topicPoints[userID][topic] += points
	}
	return nil
}

// TopScores lists approved users ordered by points descending, then name.
// With a topic it ranks by that topic's points instead of the overall total.
func (s *ResultStore) TopScores(_ context.Context, topic string, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.LeaderboardEntry
	for _, u := range s.users {
		if !u.Approved {
			continue
		}
		points := u.Points
		if topic != "" {
			pts, ok := s.topicPoints[u.ID][topic]
			if !ok {
				continue
			}
			points = pts
		}
		entries = append(entries, domain.LeaderboardEntry{DisplayName: u.FullName, Points: points})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Session returns a persisted session row's score, total, transcript, and
// whether it has finished. Test helper.
func (s *ResultStore) Session(sessionID int64) (score, total int, details []domain.TranscriptEntry, finished bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, found := s.sessions[sessionID]
	if !found {
		return 0, 0, nil, false, false
	}
	return row.score, row.total, row.details, !row.finishedAt.IsZero(), true
}
