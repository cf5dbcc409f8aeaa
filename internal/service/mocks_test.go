package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"istream/internal/model"
)

// =============================================================================
// STUB DATABASE
// =============================================================================
//
// Services that own a transaction only use the *sqlx.DB for Begin/Commit/
// Rollback; every statement inside the transaction goes through a repository
// interface. This stub driver makes the transaction lifecycle a no-op so those
// paths are unit-testable with the mocks below.

type stubConnector struct{}

func (stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn{}, nil }
func (stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("stub: no statements") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func newStubDB() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(stubConnector{}), "postgres")
}

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// The services depend on repository interfaces, so tests swap in mocks whose
// behavior each test defines through function fields. Methods without a
// configured function fall back to a safe default.

type mockUserRepository struct {
	createFn                  func(ctx context.Context, tx *sqlx.Tx, user *model.User) error
	getByIDFn                 func(ctx context.Context, id int64) (*model.User, error)
	getByUsernameFn           func(ctx context.Context, username string) (*model.User, error)
	getByEmailFn              func(ctx context.Context, email string) (*model.User, error)
	getByIdentifierFn         func(ctx context.Context, identifier string) (*model.User, error)
	getByGoogleIDFn           func(ctx context.Context, googleID string) (*model.User, error)
	existsByUsernameOrEmailFn func(ctx context.Context, username, email string) (bool, error)
	updateAccountFn           func(ctx context.Context, id int64, req *model.UpdateAccountRequest) (*model.User, error)
	updatePasswordFn          func(ctx context.Context, id int64, passwordHashed string) error
	linkGoogleAccountFn       func(ctx context.Context, id int64, googleID string) error
	setOTPFn                  func(ctx context.Context, id int64, code string, expiresAt time.Time) error
	verifyOTPFn               func(ctx context.Context, id int64, code string, now time.Time) (bool, error)
	setRefreshTokenFn         func(ctx context.Context, id int64, token *string) error
	swapRefreshTokenFn        func(ctx context.Context, id int64, current, next string) (bool, error)

	// Track calls for assertions
	mu                    sync.Mutex
	createCalls           []*model.User
	setRefreshTokenCalls  []*string
	swapRefreshTokenCalls int
}

func (m *mockUserRepository) Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, user)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, tx, user)
	}
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	if m.getByIdentifierFn != nil {
		return m.getByIdentifierFn(ctx, identifier)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if m.getByGoogleIDFn != nil {
		return m.getByGoogleIDFn(ctx, googleID)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if m.existsByUsernameOrEmailFn != nil {
		return m.existsByUsernameOrEmailFn(ctx, username, email)
	}
	return false, nil
}

func (m *mockUserRepository) UpdateAccount(ctx context.Context, id int64, req *model.UpdateAccountRequest) (*model.User, error) {
	if m.updateAccountFn != nil {
		return m.updateAccountFn(ctx, id, req)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) UpdateAvatar(ctx context.Context, id int64, url string, key *string) error {
	return nil
}

func (m *mockUserRepository) UpdateCoverImage(ctx context.Context, id int64, url string, key *string) error {
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHashed string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, passwordHashed)
	}
	return nil
}

func (m *mockUserRepository) LinkGoogleAccount(ctx context.Context, id int64, googleID string) error {
	if m.linkGoogleAccountFn != nil {
		return m.linkGoogleAccountFn(ctx, id, googleID)
	}
	return nil
}

func (m *mockUserRepository) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	if m.setOTPFn != nil {
		return m.setOTPFn(ctx, id, code, expiresAt)
	}
	return nil
}

func (m *mockUserRepository) VerifyOTP(ctx context.Context, id int64, code string, now time.Time) (bool, error) {
	if m.verifyOTPFn != nil {
		return m.verifyOTPFn(ctx, id, code, now)
	}
	return false, nil
}

func (m *mockUserRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	m.mu.Lock()
	m.setRefreshTokenCalls = append(m.setRefreshTokenCalls, token)
	m.mu.Unlock()
	if m.setRefreshTokenFn != nil {
		return m.setRefreshTokenFn(ctx, id, token)
	}
	return nil
}

func (m *mockUserRepository) SwapRefreshToken(ctx context.Context, id int64, current, next string) (bool, error) {
	m.mu.Lock()
	m.swapRefreshTokenCalls++
	m.mu.Unlock()
	if m.swapRefreshTokenFn != nil {
		return m.swapRefreshTokenFn(ctx, id, current, next)
	}
	return true, nil
}

type mockSubscriptionRepository struct {
	createFn            func(ctx context.Context, sub *model.Subscription) (bool, error)
	deleteFn            func(ctx context.Context, subscriberID, channelID int64) error
	existsFn            func(ctx context.Context, subscriberID, channelID int64) (bool, error)
	listBySubscriberFn  func(ctx context.Context, subscriberID int64, offset, limit int) ([]model.Subscription, error)
	countBySubscriberFn func(ctx context.Context, subscriberID int64) (int, error)
	countByChannelFn    func(ctx context.Context, channelID int64) (int, error)

	createCalls []*model.Subscription
}

func (m *mockSubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) (bool, error) {
	m.createCalls = append(m.createCalls, sub)
	if m.createFn != nil {
		return m.createFn(ctx, sub)
	}
	return true, nil
}

func (m *mockSubscriptionRepository) Delete(ctx context.Context, subscriberID, channelID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, subscriberID, channelID)
	}
	return nil
}

func (m *mockSubscriptionRepository) Exists(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, subscriberID, channelID)
	}
	return false, nil
}

func (m *mockSubscriptionRepository) ListBySubscriber(ctx context.Context, subscriberID int64, offset, limit int) ([]model.Subscription, error) {
	if m.listBySubscriberFn != nil {
		return m.listBySubscriberFn(ctx, subscriberID, offset, limit)
	}
	return nil, nil
}

func (m *mockSubscriptionRepository) CountBySubscriber(ctx context.Context, subscriberID int64) (int, error) {
	if m.countBySubscriberFn != nil {
		return m.countBySubscriberFn(ctx, subscriberID)
	}
	return 0, nil
}

func (m *mockSubscriptionRepository) CountByChannel(ctx context.Context, channelID int64) (int, error) {
	if m.countByChannelFn != nil {
		return m.countByChannelFn(ctx, channelID)
	}
	return 0, nil
}

type mockReactionRepository struct {
	deleteMatchingFn  func(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) (bool, error)
	upsertFn          func(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) error
	getFn             func(ctx context.Context, userID, videoID int64) (*model.Reaction, error)
	countsFn          func(ctx context.Context, videoID int64) (*model.ReactionCounts, error)
	listLikedVideosFn func(ctx context.Context, userID int64, offset, limit int) ([]model.Video, error)
	countLikedFn      func(ctx context.Context, userID int64) (int, error)
}

func (m *mockReactionRepository) DeleteMatching(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) (bool, error) {
	if m.deleteMatchingFn != nil {
		return m.deleteMatchingFn(ctx, tx, userID, videoID, typ)
	}
	return false, nil
}

func (m *mockReactionRepository) Upsert(ctx context.Context, tx *sqlx.Tx, userID, videoID int64, typ string) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, tx, userID, videoID, typ)
	}
	return nil
}

func (m *mockReactionRepository) Get(ctx context.Context, userID, videoID int64) (*model.Reaction, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, videoID)
	}
	return nil, nil
}

func (m *mockReactionRepository) Counts(ctx context.Context, videoID int64) (*model.ReactionCounts, error) {
	if m.countsFn != nil {
		return m.countsFn(ctx, videoID)
	}
	return &model.ReactionCounts{}, nil
}

func (m *mockReactionRepository) ListLikedVideos(ctx context.Context, userID int64, offset, limit int) ([]model.Video, error) {
	if m.listLikedVideosFn != nil {
		return m.listLikedVideosFn(ctx, userID, offset, limit)
	}
	return nil, nil
}

func (m *mockReactionRepository) CountLikedVideos(ctx context.Context, userID int64) (int, error) {
	if m.countLikedFn != nil {
		return m.countLikedFn(ctx, userID)
	}
	return 0, nil
}

type mockVideoRepository struct {
	createFn         func(ctx context.Context, video *model.Video) error
	getByIDFn        func(ctx context.Context, id int64) (*model.Video, error)
	getPublicByIDFn  func(ctx context.Context, id int64) (*model.Video, error)
	existsFn         func(ctx context.Context, id int64) (bool, error)
	listApprovedFn   func(ctx context.Context, offset, limit int) ([]model.Video, error)
	countApprovedFn  func(ctx context.Context) (int, error)
	listByOwnerFn    func(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error)
	countByOwnerFn   func(ctx context.Context, ownerID int64) (int, error)
	listPublicFn     func(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error)
	countPublicFn    func(ctx context.Context, ownerID int64) (int, error)
	listPendingFn    func(ctx context.Context, offset, limit int) ([]model.Video, error)
	countPendingFn   func(ctx context.Context) (int, error)
	searchFn         func(ctx context.Context, query string, offset, limit int) ([]model.Video, error)
	countSearchFn    func(ctx context.Context, query string) (int, error)
	updateFn         func(ctx context.Context, video *model.Video) error
	setApprovalFn    func(ctx context.Context, id int64, approved bool) error
	setPublishedFn   func(ctx context.Context, id int64, published bool) error
	deleteFn         func(ctx context.Context, id int64) error
	incrementViewsFn func(ctx context.Context, tx *sqlx.Tx, id int64) error

	createCalls []*model.Video
	updateCalls []*model.Video
}

func (m *mockVideoRepository) Create(ctx context.Context, video *model.Video) error {
	m.createCalls = append(m.createCalls, video)
	if m.createFn != nil {
		return m.createFn(ctx, video)
	}
	return nil
}

func (m *mockVideoRepository) GetByID(ctx context.Context, id int64) (*model.Video, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrVideoNotFound
}

func (m *mockVideoRepository) GetPublicByID(ctx context.Context, id int64) (*model.Video, error) {
	if m.getPublicByIDFn != nil {
		return m.getPublicByIDFn(ctx, id)
	}
	return nil, model.ErrVideoNotFound
}

func (m *mockVideoRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return false, nil
}

func (m *mockVideoRepository) ListApproved(ctx context.Context, offset, limit int) ([]model.Video, error) {
	if m.listApprovedFn != nil {
		return m.listApprovedFn(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockVideoRepository) CountApproved(ctx context.Context) (int, error) {
	if m.countApprovedFn != nil {
		return m.countApprovedFn(ctx)
	}
	return 0, nil
}

func (m *mockVideoRepository) ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID, offset, limit)
	}
	return nil, nil
}

func (m *mockVideoRepository) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	if m.countByOwnerFn != nil {
		return m.countByOwnerFn(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockVideoRepository) ListPublicByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]model.Video, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx, ownerID, offset, limit)
	}
	return nil, nil
}

func (m *mockVideoRepository) CountPublicByOwner(ctx context.Context, ownerID int64) (int, error) {
	if m.countPublicFn != nil {
		return m.countPublicFn(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockVideoRepository) ListPending(ctx context.Context, offset, limit int) ([]model.Video, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockVideoRepository) CountPending(ctx context.Context) (int, error) {
	if m.countPendingFn != nil {
		return m.countPendingFn(ctx)
	}
	return 0, nil
}

func (m *mockVideoRepository) Search(ctx context.Context, query string, offset, limit int) ([]model.Video, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, offset, limit)
	}
	return nil, nil
}

func (m *mockVideoRepository) CountSearch(ctx context.Context, query string) (int, error) {
	if m.countSearchFn != nil {
		return m.countSearchFn(ctx, query)
	}
	return 0, nil
}

func (m *mockVideoRepository) Update(ctx context.Context, video *model.Video) error {
	m.updateCalls = append(m.updateCalls, video)
	if m.updateFn != nil {
		return m.updateFn(ctx, video)
	}
	return nil
}

func (m *mockVideoRepository) SetApproval(ctx context.Context, id int64, approved bool) error {
	if m.setApprovalFn != nil {
		return m.setApprovalFn(ctx, id, approved)
	}
	return nil
}

func (m *mockVideoRepository) SetPublished(ctx context.Context, id int64, published bool) error {
	if m.setPublishedFn != nil {
		return m.setPublishedFn(ctx, id, published)
	}
	return nil
}

func (m *mockVideoRepository) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockVideoRepository) IncrementViews(ctx context.Context, tx *sqlx.Tx, id int64) error {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, tx, id)
	}
	return nil
}

type mockWatchHistoryRepository struct {
	recordFirstViewFn func(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) (bool, error)
	promoteFn         func(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) error
	listVideosFn      func(ctx context.Context, userID int64) ([]model.Video, error)
	removeFn          func(ctx context.Context, userID, videoID int64) error
	clearFn           func(ctx context.Context, userID int64) error
}

func (m *mockWatchHistoryRepository) RecordFirstView(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) (bool, error) {
	if m.recordFirstViewFn != nil {
		return m.recordFirstViewFn(ctx, tx, userID, videoID)
	}
	return true, nil
}

func (m *mockWatchHistoryRepository) Promote(ctx context.Context, tx *sqlx.Tx, userID, videoID int64) error {
	if m.promoteFn != nil {
		return m.promoteFn(ctx, tx, userID, videoID)
	}
	return nil
}

func (m *mockWatchHistoryRepository) ListVideos(ctx context.Context, userID int64) ([]model.Video, error) {
	if m.listVideosFn != nil {
		return m.listVideosFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockWatchHistoryRepository) Remove(ctx context.Context, userID, videoID int64) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, videoID)
	}
	return nil
}

func (m *mockWatchHistoryRepository) Clear(ctx context.Context, userID int64) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID)
	}
	return nil
}

// mockEmailSender records sent codes.
type mockEmailSender struct {
	sendOTPFn func(ctx context.Context, toEmail, code string, expiresAt time.Time) error

	sentTo    []string
	sentCodes []string
}

func (m *mockEmailSender) SendOTP(ctx context.Context, toEmail, code string, expiresAt time.Time) error {
	m.sentTo = append(m.sentTo, toEmail)
	m.sentCodes = append(m.sentCodes, code)
	if m.sendOTPFn != nil {
		return m.sendOTPFn(ctx, toEmail, code, expiresAt)
	}
	return nil
}

// mockObjectStore records deleted keys.
type mockObjectStore struct {
	deleteObjectFn func(ctx context.Context, key string) error

	deletedKeys []string
}

func (m *mockObjectStore) DeleteObject(ctx context.Context, key string) error {
	m.deletedKeys = append(m.deletedKeys, key)
	if m.deleteObjectFn != nil {
		return m.deleteObjectFn(ctx, key)
	}
	return nil
}

// allowAllLimiter never throttles.
type allowAllLimiter struct{}

func (allowAllLimiter) Allow(key string) bool { return true }

// denyAllLimiter always throttles.
type denyAllLimiter struct{}

func (denyAllLimiter) Allow(key string) bool { return false }
