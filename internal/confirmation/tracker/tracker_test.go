package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"signbridge/internal/confirmation/mocks"
	confmodels "signbridge/internal/confirmation/models"
	"signbridge/internal/confirmation/reaper"
	"signbridge/internal/identity"
	"signbridge/internal/platform/logger"
	"signbridge/internal/profile/models"
	"signbridge/internal/profile/store"
	"signbridge/pkg/platform/sentinel"
)

type TrackerSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockProfiles *mocks.MockProfileStore
	mockIdents   *mocks.MockIdentityDirectory
	mockReaper   *mocks.MockReaper
	tracker      *Tracker
	t0           time.Time
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockProfiles = mocks.NewMockProfileStore(s.ctrl)
	s.mockIdents = mocks.NewMockIdentityDirectory(s.ctrl)
	s.mockReaper = mocks.NewMockReaper(s.ctrl)
	s.tracker = New(s.mockProfiles, s.mockIdents, s.mockReaper, WithLogger(logger.Discard()))
	s.t0 = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
}

func (s *TrackerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *TrackerSuite) unconfirmed(sentAt *time.Time) *models.Profile {
	return &models.Profile{
		ID:                 "id-1",
		Email:              "ada@example.com",
		Role:               models.RoleDeaf,
		RollNumber:         "123456",
		ConfirmationSentAt: sentAt,
	}
}

func (s *TrackerSuite) TestConfirmedProfile() {
	at := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(&models.Profile{
		ID: "id-1", RollNumber: "123456", EmailConfirmed: true, EmailConfirmedAt: &at,
	}, nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(confmodels.Confirmed(), status)
}

func (s *TrackerSuite) TestPendingWithinWindow() {
	// signup at T0, checked 200s later: six whole minutes remain
	sent := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(200*time.Second))
	s.Require().NoError(err)
	s.False(status.Confirmed)
	s.False(status.Expired)
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(6, *status.MinutesLeft)
}

func (s *TrackerSuite) TestExpiredTriggersReap() {
	sent := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)
	s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(true)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(650*time.Second))
	s.Require().NoError(err)
	s.Equal(confmodels.Expired(), status)
}

func (s *TrackerSuite) TestExpiredEvenWhenReapFails() {
	sent := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)
	s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(false)
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(11*time.Minute))
	s.Require().NoError(err)
	s.True(status.Expired)
}

func (s *TrackerSuite) TestConfirmationDuringReapWins() {
	sent := s.t0
	confirmedAt := s.t0.Add(640 * time.Second)
	confirmed := s.unconfirmed(&sent)
	confirmed.EmailConfirmed = true
	confirmed.EmailConfirmedAt = &confirmedAt

	gomock.InOrder(
		s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil),
		s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(false),
		s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(confirmed, nil),
	)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(650*time.Second))
	s.Require().NoError(err)
	s.Equal(confmodels.Confirmed(), status)
}

func (s *TrackerSuite) TestReapFailureWithLookupErrorStaysExpired() {
	sent := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)
	s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(false)
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(nil, errors.New("timeout"))

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(11*time.Minute))
	s.Require().NoError(err)
	s.Equal(confmodels.Expired(), status)
}

// confirmingStore confirms the profile right after the tracker's first read,
// mimicking a manual confirmation landing between read and reap.
type confirmingStore struct {
	*store.InMemoryStore
	once sync.Once
	at   time.Time
}

func (c *confirmingStore) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	p, err := c.InMemoryStore.FindByID(ctx, id)
	c.once.Do(func() {
		_, _ = c.InMemoryStore.Update(ctx, id, models.ConfirmUpdate(c.at))
	})
	return p, err
}

func TestConfirmedBetweenReadAndReapKeepsAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	idents := mocks.NewMockIdentityDirectory(ctrl)
	t0 := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

	profiles := &confirmingStore{InMemoryStore: store.NewInMemory(), at: t0.Add(640 * time.Second)}
	require.NoError(t, profiles.Upsert(context.Background(), &models.Profile{
		ID: "id-1", Email: "ada@example.com", Role: models.RoleDeaf, RollNumber: "123456",
		ConfirmationSentAt: &t0,
	}))
	r := reaper.New(profiles, idents, reaper.WithLogger(logger.Discard()))
	tr := New(profiles, idents, r, WithLogger(logger.Discard()))

	status, err := tr.CheckStatus(context.Background(), "id-1", t0.Add(650*time.Second))
	require.NoError(t, err)
	assert.Equal(t, confmodels.Confirmed(), status)

	kept, err := profiles.InMemoryStore.FindByID(context.Background(), "id-1")
	require.NoError(t, err)
	assert.True(t, kept.EmailConfirmed)
}

func (s *TrackerSuite) TestElapsedBoundary() {
	cases := []struct {
		name        string
		delta       time.Duration
		expired     bool
		minutesLeft int
	}{
		{name: "just sent", delta: 0, minutesLeft: 10},
		{name: "one second in", delta: time.Second, minutesLeft: 9},
		{name: "exactly one minute", delta: time.Minute, minutesLeft: 9},
		{name: "59 seconds left", delta: 541 * time.Second, minutesLeft: 0},
		{name: "exactly at the window", delta: 600 * time.Second, minutesLeft: 0},
		{name: "one second past", delta: 601 * time.Second, expired: true},
		{name: "hours later", delta: 5 * time.Hour, expired: true},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			sent := s.t0
			s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)
			if tc.expired {
				s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(true)
			}

			status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0.Add(tc.delta))
			s.Require().NoError(err)
			s.Equal(tc.expired, status.Expired)
			if !tc.expired {
				s.Require().NotNil(status.MinutesLeft)
				s.Equal(tc.minutesLeft, *status.MinutesLeft)
				s.Equal(int((600*time.Second-tc.delta)/time.Minute), *status.MinutesLeft)
			}
		})
	}
}

func (s *TrackerSuite) TestMissingTimestampGetsGrace() {
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(nil), nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
	s.Require().NoError(err)
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(5, *status.MinutesLeft)
}

func (s *TrackerSuite) TestZeroTimestampGetsGrace() {
	zero := time.Time{}
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&zero), nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
	s.Require().NoError(err)
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(5, *status.MinutesLeft)
}

func (s *TrackerSuite) TestFutureTimestampCountsAsJustSent() {
	sent := s.t0.Add(3 * time.Minute)
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
	s.Require().NoError(err)
	s.Equal(10, *status.MinutesLeft)
}

func (s *TrackerSuite) TestProfileMissingIdentityPresent() {
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(nil, sentinel.ErrNotFound)
	s.mockIdents.EXPECT().GetIdentity(gomock.Any(), "id-1").Return(&identity.Identity{ID: "id-1"}, nil)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
	s.Require().NoError(err)
	s.False(status.Confirmed)
	s.False(status.Expired)
	s.True(status.NeedsProfileCreation)
	s.Require().NotNil(status.MinutesLeft)
	s.Equal(10, *status.MinutesLeft)
}

func (s *TrackerSuite) TestProfileAndIdentityMissing() {
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(nil, sentinel.ErrNotFound)
	s.mockIdents.EXPECT().GetIdentity(gomock.Any(), "id-1").Return(nil, sentinel.ErrNotFound)

	status, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
	s.Require().NoError(err)
	s.Equal(confmodels.Expired(), status)
}

func (s *TrackerSuite) TestStoreErrorsPropagate() {
	boom := errors.New("connection refused")

	s.Run("profile store", func() {
		s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(nil, boom)
		_, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
		s.ErrorIs(err, boom)
	})

	s.Run("identity provider", func() {
		s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(nil, sentinel.ErrNotFound)
		s.mockIdents.EXPECT().GetIdentity(gomock.Any(), "id-1").Return(nil, boom)
		_, err := s.tracker.CheckStatus(context.Background(), "id-1", s.t0)
		s.ErrorIs(err, boom)
	})
}

func (s *TrackerSuite) TestCustomWindow() {
	tr := New(s.mockProfiles, s.mockIdents, s.mockReaper, WithLogger(logger.Discard()), WithWindow(2*time.Minute))
	sent := s.t0
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), "id-1").Return(s.unconfirmed(&sent), nil)
	s.mockReaper.EXPECT().Reap(gomock.Any(), "id-1").Return(true)

	status, err := tr.CheckStatus(context.Background(), "id-1", s.t0.Add(3*time.Minute))
	s.Require().NoError(err)
	s.True(status.Expired)
}
