package service

import (
	"context"
	"time"

	"flariki/internal/domain"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

// StateService keeps per-chat dialog state of the bot.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *StateService) GetUserState(ctx context.Context, telegramID int64) (*models.UserState, error) {
	state, err := s.stateRepo.GetState(ctx, telegramID)
	if err != nil {
		s.logger.Error().Err(err).Int64("telegram_id", telegramID).Msg("failed to get user state")
		return nil, err
	}

	return state, nil
}

// Step returns the current dialog step, StateIdle when there is none.
func (s *StateService) Step(ctx context.Context, telegramID int64) string {
	state, err := s.GetUserState(ctx, telegramID)
	if err != nil || state == nil || state.CurrentStep == "" {
		return models.StateIdle
	}
	return state.CurrentStep
}

func (s *StateService) SetUserState(ctx context.Context, telegramID int64, step string, data map[string]interface{}) error {
	state := &models.UserState{
		UserID:      telegramID,
		CurrentStep: step,
		TempData:    data,
	}
	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) ClearUserState(ctx context.Context, telegramID int64) error {
	return s.stateRepo.ClearState(ctx, telegramID)
}

func (s *StateService) UpdateUserStateData(ctx context.Context, telegramID int64, key string, value interface{}) error {
	state, err := s.stateRepo.GetState(ctx, telegramID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.UserState{UserID: telegramID}
	}
	state.Set(key, value)

	return s.stateRepo.SetState(ctx, state)
}

// Allow applies a sliding per-key message limit. Store errors let the message through.
func (s *StateService) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	ok, err := s.stateRepo.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true
	}
	return ok
}
