package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/sessions"
	"github.com/authkit-go/authkit/sessions/repofake"
	"github.com/authkit-go/authkit/users"
	userrepofake "github.com/authkit-go/authkit/users/repofake"
)

const (
	testIdleTTL     = 1 * time.Hour
	testAbsoluteTTL = 24 * time.Hour
)

// testFixture holds the store under test with a controllable clock.
type testFixture struct {
	sessionRepo *repofake.FakeSessionRepo
	userRepo    *userrepofake.FakeUserRepo
	store       *sessions.Store

	mu  sync.Mutex
	now time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		sessionRepo: repofake.NewFakeSessionRepo(),
		userRepo:    userrepofake.NewFakeUserRepo(),
		now:         time.Now(),
	}

	store, err := sessions.NewStore(f.sessionRepo, f.userRepo,
		sessions.WithTTLs(testIdleTTL, testAbsoluteTTL),
		sessions.WithNowTime(f.nowTime),
	)
	require.NoError(t, err)
	f.store = store

	return f
}

func (f *testFixture) nowTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *testFixture) createTestUser(t *testing.T, email string) users.User {
	t.Helper()

	u, err := f.userRepo.Create(context.Background(), users.NewUser{
		Email:    email,
		Username: "tester",
		Roles:    []string{users.RoleUser},
	})
	require.NoError(t, err)
	return *u
}

func TestCreateAndGet(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.NotEmpty(t, session.Token)
	require.Equal(t, user.ID, session.User.ID)

	byID, err := f.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)

	byToken, err := f.store.GetByToken(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, byToken)

	// Both indices resolve to the same session.
	require.Equal(t, byID.ID, byToken.ID)
	require.Equal(t, byID.Token, byToken.Token)

	require.Equal(t, 1, f.sessionRepo.Count())
}

func TestGetUnknownReturnsNil(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session, err := f.store.Get(ctx, "no-such-id")
	require.NoError(t, err)
	require.Nil(t, session)

	session, err = f.store.GetByToken(ctx, "no-such-token")
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestCreatePersistenceFailureLeavesNoTrace(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	f.sessionRepo.CreateErr = context.DeadlineExceeded
	_, err := f.store.Create(ctx, user)
	require.ErrorIs(t, err, apperrors.ErrPersistence)
	require.Equal(t, 0, f.store.Len())
}

func TestRotate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)
	oldToken := session.Token

	rotated, err := f.store.Rotate(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, rotated)

	// Identity and creation time survive, the token does not.
	require.Equal(t, session.ID, rotated.ID)
	require.Equal(t, session.User.ID, rotated.User.ID)
	require.Equal(t, session.CreatedAt, rotated.CreatedAt)
	require.NotEqual(t, oldToken, rotated.Token)

	stale, err := f.store.GetByToken(ctx, oldToken)
	require.NoError(t, err)
	require.Nil(t, stale, "old token must stop resolving after rotation")

	fresh, err := f.store.GetByToken(ctx, rotated.Token)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.Equal(t, session.ID, fresh.ID)
}

func TestRotateUnknownSession(t *testing.T) {
	f := setupTestFixture(t)

	rotated, err := f.store.Rotate(context.Background(), "no-such-id")
	require.NoError(t, err)
	require.Nil(t, rotated)
}

func TestRotatePersistenceFailureKeepsOldToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)

	f.sessionRepo.UpdateErr = context.DeadlineExceeded
	_, err = f.store.Rotate(ctx, session.ID)
	require.ErrorIs(t, err, apperrors.ErrPersistence)

	// The durable write failed before the in-memory switch, so the old
	// token is still the valid one.
	still, err := f.store.GetByToken(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, still)
}

func TestIdleTTLEviction(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)

	f.advance(testIdleTTL + time.Minute)

	got, err := f.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 0, f.store.Len())
}

func TestActivityExtendsIdleTTL(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)

	// Touch the session just before each idle deadline.
	for i := 0; i < 5; i++ {
		f.advance(testIdleTTL - time.Minute)
		got, err := f.store.Get(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
	}
}

func TestAbsoluteTTLTrumpsActivity(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)

	// Stay active the whole time; the absolute deadline still wins.
	elapsed := time.Duration(0)
	step := testIdleTTL - time.Minute
	for elapsed <= testAbsoluteTTL {
		f.advance(step)
		elapsed += step
		if _, err := f.store.Get(ctx, session.ID); err != nil {
			require.NoError(t, err)
		}
	}

	got, err := f.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	session, err := f.store.Create(ctx, user)
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, session.ID))
	require.NoError(t, f.store.Delete(ctx, session.ID))

	got, err := f.store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 0, f.sessionRepo.Count())
}

func TestConcurrentCreatesGetDistinctTokens(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	const n = 50
	results := make(chan *sessions.Session, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := f.store.Create(ctx, user)
			if err == nil {
				results <- session
			}
		}()
	}
	wg.Wait()
	close(results)

	tokens := make(map[string]bool)
	ids := make(map[string]bool)
	for session := range results {
		require.False(t, tokens[session.Token], "token issued twice")
		require.False(t, ids[session.ID], "id issued twice")
		tokens[session.Token] = true
		ids[session.ID] = true
	}
	require.Len(t, tokens, n)
	require.Equal(t, n, f.store.Len())
}

func TestLoadFromPersistence(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	f.sessionRepo.Seed(sessions.SessionRow{
		ID:        "live-session",
		Token:     "live-token",
		UserID:    user.ID,
		CreatedAt: f.nowTime().Add(-time.Hour),
	})
	f.sessionRepo.Seed(sessions.SessionRow{
		ID:        "expired-session",
		Token:     "expired-token",
		UserID:    user.ID,
		CreatedAt: f.nowTime().Add(-testAbsoluteTTL - time.Hour),
	})

	rows, err := f.sessionRepo.ListSessionRows(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.LoadFromPersistence(ctx, rows))

	got, err := f.store.GetByToken(ctx, "live-token")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, user.ID, got.User.ID)

	gone, err := f.store.GetByToken(ctx, "expired-token")
	require.NoError(t, err)
	require.Nil(t, gone)

	// The expired row was purged durably during the load.
	require.False(t, f.sessionRepo.Has("expired-session"))
	require.True(t, f.sessionRepo.Has("live-session"))
}

func TestLoadFromPersistenceOrphanedRow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.createTestUser(t, "john.doe@example.com")

	f.sessionRepo.Seed(sessions.SessionRow{
		ID:        "orphaned-session",
		Token:     "orphaned-token",
		UserID:    "missing-user",
		CreatedAt: f.nowTime(),
	})
	f.sessionRepo.Seed(sessions.SessionRow{
		ID:        "live-session",
		Token:     "live-token",
		UserID:    user.ID,
		CreatedAt: f.nowTime(),
	})

	rows, err := f.sessionRepo.ListSessionRows(ctx)
	require.NoError(t, err)

	err = f.store.LoadFromPersistence(ctx, rows)
	require.ErrorIs(t, err, apperrors.ErrIntegrity)

	// The orphaned row is skipped, not fatal for the rest of the load.
	got, err := f.store.GetByToken(ctx, "live-token")
	require.NoError(t, err)
	require.NotNil(t, got)

	gone, err := f.store.GetByToken(ctx, "orphaned-token")
	require.NoError(t, err)
	require.Nil(t, gone)
}
