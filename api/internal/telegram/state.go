package telegram

import (
	"log/slog"
	"sync"
	"time"

	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
)

const (
	debounce  = 1200 * time.Millisecond
	maxPixels = 18_000_000
)

type mode string

const (
	modeIdle mode = ""
	modeChat mode = "chat"
	modeExam mode = "exam"
)

// Sessions gives every chat its own registry and input mode.
type Sessions struct {
	p      llm.Provider
	caller *llm.Caller
	log    *slog.Logger

	regs   sync.Map // chatID -> *session.Registry
	modes  sync.Map // chatID -> mode
	locks  sync.Map // chatID -> *sync.Mutex
	queues sync.Map // chatID -> *chatQueue
}

func NewSessions(p llm.Provider, caller *llm.Caller, logger *slog.Logger) *Sessions {
	return &Sessions{p: p, caller: caller, log: logger}
}

func (s *Sessions) For(chatID int64) *session.Registry {
	if v, ok := s.regs.Load(chatID); ok {
		return v.(*session.Registry)
	}
	v, _ := s.regs.LoadOrStore(chatID, session.NewRegistry(s.p, s.caller, s.log.With("chat_id", chatID)))
	return v.(*session.Registry)
}

func (s *Sessions) setMode(chatID int64, m mode) { s.modes.Store(chatID, m) }

func (s *Sessions) mode(chatID int64) mode {
	if v, ok := s.modes.Load(chatID); ok {
		return v.(mode)
	}
	return modeIdle
}

// lock serializes work per chat; different chats run in parallel.
func (s *Sessions) lock(chatID int64) func() {
	v, _ := s.locks.LoadOrStore(chatID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// enqueue runs fn after every earlier fn of the same chat has finished.
func (s *Sessions) enqueue(chatID int64, fn func()) {
	v, _ := s.queues.LoadOrStore(chatID, &chatQueue{})
	v.(*chatQueue).push(fn)
}

// chatQueue is a FIFO drained by at most one goroutine at a time. The worker
// exits when the queue is empty and push starts a new one.
type chatQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

func (q *chatQueue) push(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go q.drain()
}

func (q *chatQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
	}
}

type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}
