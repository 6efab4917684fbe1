// Package session はブラウザセッションごとの状態（Lookup Cache）を保持する。
// セッションはメモリ上にのみ存在し、一定時間アクセスがなければ破棄される。
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/repodigest/internal/lookup"
)

// Session は1つのブラウザセッションの状態。
type Session struct {
	ID        string
	Cache     *lookup.Cache
	CreatedAt time.Time

	lastAccess time.Time
}

// Store はセッションIDからSessionへの対応を管理する。
type Store struct {
	lister  lookup.SourceLister
	maxIdle time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore は新しいStoreを生成し、アイドルセッションの掃除を開始する。
// listerは各セッションのLookup Cacheがソース一覧の取得に使う。
func NewStore(lister lookup.SourceLister, maxIdle time.Duration) *Store {
	s := &Store{
		lister:   lister,
		maxIdle:  maxIdle,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Get はIDに対応するセッションを返し、最終アクセス時刻を更新する。
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastAccess = time.Now()
	return sess, true
}

// Create は新しいセッションを生成して登録する。
func (s *Store) Create() *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.New().String(),
		Cache:      lookup.NewCache(s.lister),
		CreatedAt:  now,
		lastAccess: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Count は現在保持しているセッション数を返す。
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanupLoop はmaxIdleの半分の間隔でアイドルセッションを掃除する。
func (s *Store) cleanupLoop() {
	interval := s.maxIdle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからmaxIdleを超えたセッションを削除し、削除件数を返す。
func (s *Store) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastAccess) > s.maxIdle {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}
