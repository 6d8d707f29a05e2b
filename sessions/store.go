package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/tokens"
	"github.com/authkit-go/authkit/users"
)

// Store owns the authoritative in-memory set of live sessions for the
// process, indexed twice (by id and by token) into the same owned objects.
// A single mutex guards both indices, so every operation observes them as a
// consistent pair; session volume and operation cost are low relative to
// network I/O, so finer locking buys nothing. Durable writes happen before
// the lock is taken: the durable store is the source of truth on restart,
// and a short window of memory/durable divergence is acceptable.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*Session
	byToken map[string]*Session

	repo        Repo
	userRepo    users.Repo
	idleTTL     time.Duration
	absoluteTTL time.Duration
	nowTime     func() time.Time
	log         zerolog.Logger
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithTTLs sets the idle and absolute TTLs. A zero value disables the
// corresponding check.
func WithTTLs(idle, absolute time.Duration) StoreOption {
	return func(s *Store) {
		s.idleTTL = idle
		s.absoluteTTL = absolute
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the store logger.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore initializes a Store with its persistence collaborators.
func NewStore(repo Repo, userRepo users.Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] session repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewStore] user repo is required")
	}

	s := &Store{
		byID:     make(map[string]*Session),
		byToken:  make(map[string]*Session),
		repo:     repo,
		userRepo: userRepo,
		nowTime:  time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Create generates a fresh token, durably inserts the session, and only then
// publishes it in both indices. On persistence failure nothing is inserted
// into memory.
func (s *Store) Create(ctx context.Context, user users.User) (*Session, error) {
	token, err := tokens.NewSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Create] token generation")
	}

	id, createdAt, err := s.repo.CreateSessionRow(ctx, token, user.ID)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}

	now := s.nowTime()
	session := &Session{
		ID:           id,
		Token:        token,
		User:         user,
		CreatedAt:    createdAt,
		LastActivity: now,
	}

	s.mu.Lock()
	if _, exists := s.byToken[token]; exists {
		s.mu.Unlock()
		// A token may never resolve to two ids. The durable row is
		// compensated asynchronously; the caller sees a fatal error.
		s.deleteDurableAsync(id)
		return nil, errors.Wrapf(apperrors.ErrTokenCollision, "[Store.Create] id %s", id)
	}
	s.byID[id] = session
	s.byToken[token] = session
	s.mu.Unlock()

	cp := *session
	return &cp, nil
}

// Get retrieves a session by its id. Expired sessions are evicted from both
// indices on read and deleted durably in the background; eviction-on-read is
// the only expiry mechanism.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(s.byID[id])
}

// GetByToken retrieves a session by its token, O(1) lookup.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(s.byToken[token])
}

// lookupLocked applies TTL checks to a candidate session and bumps its
// activity time on success. Caller holds s.mu.
func (s *Store) lookupLocked(session *Session) (*Session, error) {
	if session == nil {
		return nil, nil
	}

	now := s.nowTime()
	if s.expired(session, now) {
		delete(s.byID, session.ID)
		delete(s.byToken, session.Token)
		s.deleteDurableAsync(session.ID)
		return nil, nil
	}

	session.LastActivity = now
	cp := *session
	return &cp, nil
}

// Rotate issues a new token for an existing, still-valid session while
// preserving its id, user, and CreatedAt. The old token stops resolving in
// the same critical section in which the new one becomes resolvable, so no
// observer ever sees zero valid tokens for the session.
func (s *Store) Rotate(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	session, err := s.lookupLocked(s.byID[id])
	s.mu.Unlock()
	if err != nil || session == nil {
		return nil, err
	}

	newToken, err := tokens.NewSessionToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Rotate] token generation")
	}

	// Durable write first, outside the lock. The old token stays valid
	// until the in-memory switch below.
	if err := s.repo.UpdateSessionToken(ctx, id, newToken); err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		// Deleted concurrently; the durable row is gone or going.
		return nil, nil
	}
	if _, exists := s.byToken[newToken]; exists {
		return nil, errors.Wrapf(apperrors.ErrTokenCollision, "[Store.Rotate] id %s", id)
	}

	delete(s.byToken, current.Token)
	current.Token = newToken
	current.LastActivity = s.nowTime()
	s.byToken[newToken] = current

	cp := *current
	return &cp, nil
}

// Delete removes the session from both indices and deletes it durably.
// Deleting a non-existent id is a no-op, not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if session, ok := s.byID[id]; ok {
		delete(s.byToken, session.Token)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	if _, err := s.repo.DeleteSessionRow(ctx, id); err != nil {
		return errors.Wrap(apperrors.ErrPersistence, err.Error())
	}
	return nil
}

// LoadFromPersistence populates both indices from durable session rows at
// process start. Rows past the absolute TTL are discarded and deleted
// durably. A missing user for a non-expired row is a fatal inconsistency for
// that record: it is logged, skipped, and reported as ErrIntegrity, but does
// not stop the load.
func (s *Store) LoadFromPersistence(ctx context.Context, rows []SessionRow) error {
	var firstIntegrityErr error

	now := s.nowTime()
	for _, row := range rows {
		if s.absoluteTTL > 0 && now.Sub(row.CreatedAt) > s.absoluteTTL {
			if _, err := s.repo.DeleteSessionRow(ctx, row.ID); err != nil {
				s.log.Error().Err(err).Str("session_id", row.ID).Msg("failed to delete expired session row")
			}
			continue
		}

		user, err := s.userRepo.GetByID(ctx, row.UserID)
		if err != nil {
			return errors.Wrap(apperrors.ErrPersistence, err.Error())
		}
		if user == nil {
			err := errors.Wrapf(apperrors.ErrIntegrity, "[Store.LoadFromPersistence] session %s references missing user %s", row.ID, row.UserID)
			s.log.Error().Err(err).Str("session_id", row.ID).Str("user_id", row.UserID).Msg("orphaned session row")
			if firstIntegrityErr == nil {
				firstIntegrityErr = err
			}
			continue
		}

		session := &Session{
			ID:           row.ID,
			Token:        row.Token,
			User:         *user,
			CreatedAt:    row.CreatedAt,
			LastActivity: now,
		}

		s.mu.Lock()
		s.byID[session.ID] = session
		s.byToken[session.Token] = session
		s.mu.Unlock()
	}

	return firstIntegrityErr
}

// Len returns the number of live sessions currently indexed.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) expired(session *Session, now time.Time) bool {
	if s.absoluteTTL > 0 && now.Sub(session.CreatedAt) > s.absoluteTTL {
		return true
	}
	if s.idleTTL > 0 && now.Sub(session.LastActivity) > s.idleTTL {
		return true
	}
	return false
}

// deleteDurableAsync issues a background durable delete; eviction must not
// block the read path on persistence I/O.
func (s *Store) deleteDurableAsync(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.repo.DeleteSessionRow(ctx, id); err != nil {
			s.log.Error().Err(err).Str("session_id", id).Msg("failed to delete evicted session row")
		}
	}()
}
