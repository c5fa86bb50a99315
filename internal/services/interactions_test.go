package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/streamsense/recengine/pkg/models"
)

type MockDNAQueue struct {
	mock.Mock
}

func (m *MockDNAQueue) Enqueue(ctx context.Context, tmdbID int, mediaType models.MediaType) bool {
	args := m.Called(ctx, tmdbID, mediaType)
	return args.Bool(0)
}

func (m *MockDNAQueue) ScanWatchlistForMissingDNA(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockDNAQueue) Status() models.QueueStatus {
	args := m.Called()
	return args.Get(0).(models.QueueStatus)
}

type MockTasteProfileService struct {
	mock.Mock
}

func (m *MockTasteProfileService) Load(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error) {
	args := m.Called(ctx, userID)
	state, _ := args.Get(0).(*TasteProfileState)
	return state, args.Error(1)
}

func (m *MockTasteProfileService) Refresh(ctx context.Context, userID uuid.UUID) (*TasteProfileState, error) {
	args := m.Called(ctx, userID)
	state, _ := args.Get(0).(*TasteProfileState)
	return state, args.Error(1)
}

func (m *MockTasteProfileService) ApplyInteraction(ctx context.Context, userID uuid.UUID, ref models.ContentRef, rating *int) (*TasteProfileState, error) {
	args := m.Called(ctx, userID, ref, rating)
	state, _ := args.Get(0).(*TasteProfileState)
	return state, args.Error(1)
}

func TestInteractionProcessor_Handle(t *testing.T) {
	userID := uuid.New()
	ref := models.ContentRef{TMDbID: 603, MediaType: models.MediaTypeMovie}
	event := func(action models.WatchlistAction, status models.WatchStatus, rating *int) models.WatchlistEvent {
		return models.WatchlistEvent{
			EventID:   uuid.New(),
			UserID:    userID,
			TMDbID:    ref.TMDbID,
			MediaType: ref.MediaType,
			Action:    action,
			Status:    status,
			Rating:    rating,
		}
	}

	tests := []struct {
		name         string
		event        models.WatchlistEvent
		expectQueue  bool
		expectApply  bool
		expectReload bool
	}{
		{
			name:        "added to plan",
			event:       event(models.WatchlistActionAdded, models.WatchStatusWantToWatch, nil),
			expectQueue: true,
		},
		{
			name:        "added as watched",
			event:       event(models.WatchlistActionAdded, models.WatchStatusWatched, nil),
			expectQueue: true,
			expectApply: true,
		},
		{
			name:        "marked watched",
			event:       event(models.WatchlistActionStatusChanged, models.WatchStatusWatched, nil),
			expectQueue: true,
			expectApply: true,
		},
		{
			name:        "started watching",
			event:       event(models.WatchlistActionStatusChanged, models.WatchStatusWatching, nil),
			expectQueue: true,
		},
		{
			name:        "rated",
			event:       event(models.WatchlistActionRated, models.WatchStatusWatching, intPtr(4)),
			expectQueue: true,
			expectApply: true,
		},
		{
			name:         "removed",
			event:        event(models.WatchlistActionRemoved, "", nil),
			expectReload: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &MockDNAQueue{}
			profiles := &MockTasteProfileService{}
			if tt.expectQueue {
				queue.On("Enqueue", mock.Anything, ref.TMDbID, ref.MediaType).Return(true)
			}
			if tt.expectApply {
				profiles.On("ApplyInteraction", mock.Anything, userID, ref, tt.event.Rating).Return(&TasteProfileState{}, nil)
			}
			if tt.expectReload {
				profiles.On("Refresh", mock.Anything, userID).Return(&TasteProfileState{}, nil)
			}

			p := NewInteractionProcessor(queue, profiles, testLogger())
			require.NoError(t, p.Handle(context.Background(), tt.event))

			queue.AssertExpectations(t)
			profiles.AssertExpectations(t)
			if !tt.expectApply {
				profiles.AssertNotCalled(t, "ApplyInteraction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestInteractionProcessor_Errors(t *testing.T) {
	userID := uuid.New()

	t.Run("invalid reference", func(t *testing.T) {
		p := NewInteractionProcessor(&MockDNAQueue{}, &MockTasteProfileService{}, testLogger())
		err := p.Handle(context.Background(), models.WatchlistEvent{UserID: userID, TMDbID: 0, MediaType: models.MediaTypeMovie, Action: models.WatchlistActionAdded})
		assert.Error(t, err)
	})

	t.Run("unknown action", func(t *testing.T) {
		p := NewInteractionProcessor(&MockDNAQueue{}, &MockTasteProfileService{}, testLogger())
		err := p.Handle(context.Background(), models.WatchlistEvent{UserID: userID, TMDbID: 1, MediaType: models.MediaTypeTV, Action: "archived"})
		assert.Error(t, err)
	})

	t.Run("apply failure is returned", func(t *testing.T) {
		queue := &MockDNAQueue{}
		queue.On("Enqueue", mock.Anything, 1, models.MediaTypeTV).Return(false)
		profiles := &MockTasteProfileService{}
		profiles.On("ApplyInteraction", mock.Anything, userID, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		p := NewInteractionProcessor(queue, profiles, testLogger())
		err := p.Handle(context.Background(), models.WatchlistEvent{UserID: userID, TMDbID: 1, MediaType: models.MediaTypeTV, Action: models.WatchlistActionRated, Rating: intPtr(5)})
		assert.Error(t, err)
	})

	t.Run("rebuild already running is not an error", func(t *testing.T) {
		profiles := &MockTasteProfileService{}
		profiles.On("Refresh", mock.Anything, userID).Return(nil, ErrRebuildInProgress)

		p := NewInteractionProcessor(&MockDNAQueue{}, profiles, testLogger())
		err := p.Handle(context.Background(), models.WatchlistEvent{UserID: userID, TMDbID: 1, MediaType: models.MediaTypeTV, Action: models.WatchlistActionRemoved})
		assert.NoError(t, err)
	})
}
