// Package session хранит состояние диалога каждого пользователя в памяти процесса.
// Ничего не сохраняется в БД.
package session

import (
	"sync"
	"time"

	"github.com/psds-microservice/support-bot/internal/assistant"
)

// State: временное состояние одного участника чата.
type State struct {
	UserID int64

	// пользователь
	AwaitingDescription bool
	Conversation        []assistant.Message

	// администратор; SelectedTicketID и AwaitingReply меняются вместе
	SelectedTicketID uint64
	AwaitingReply    bool

	LastActivity time.Time
}

// Select направляет ответы администратора в тикет id.
func (st *State) Select(id uint64) {
	st.SelectedTicketID = id
	st.AwaitingReply = true
}

func (st *State) ClearSelection() {
	st.SelectedTicketID = 0
	st.AwaitingReply = false
}

// Empty: в состоянии нечего хранить.
func (st *State) Empty() bool {
	return !st.AwaitingDescription && len(st.Conversation) == 0 && !st.AwaitingReply
}

func (st State) clone() State {
	if st.Conversation != nil {
		st.Conversation = append([]assistant.Message(nil), st.Conversation...)
	}
	return st
}

// Store безопасен для конкурентного использования.
type Store struct {
	mu     sync.Mutex
	states map[int64]*State
	now    func() time.Time
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{states: make(map[int64]*State), now: now}
}

// Get возвращает копию состояния; если его нет, пустой State.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[userID]; ok {
		return st.clone()
	}
	return State{UserID: userID}
}

// Update применяет fn к состоянию под блокировкой и обновляет LastActivity.
// Опустевшее состояние удаляется.
func (s *Store) Update(userID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		st = &State{UserID: userID}
	}
	fn(st)
	st.LastActivity = s.now()
	if st.Empty() {
		delete(s.states, userID)
	} else {
		s.states[userID] = st
	}
	return st.clone()
}

func (s *Store) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[userID]
	delete(s.states, userID)
	return ok
}

// Sweep удаляет состояния, неактивные дольше ttl, и возвращает их.
func (s *Store) Sweep(ttl time.Duration) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	var expired []State
	for id, st := range s.states {
		if st.LastActivity.Before(cutoff) {
			expired = append(expired, st.clone())
			delete(s.states, id)
		}
	}
	return expired
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
