package service

import (
	"context"

	"flariki/internal/domain"
	"flariki/internal/models"
)

func insufficientRole() *domain.Error {
	return domain.Forbidden(domain.ReasonInsufficientRole, "Недостаточно прав", nil)
}

func activeGate(user *models.User) error {
	switch user.Status {
	case models.UserActive:
		return nil
	case models.UserPending:
		return domain.Forbidden(domain.ReasonPendingModeration, "Ваш аккаунт ожидает модерации",
			map[string]interface{}{"status": user.Status})
	default:
		return domain.Forbidden(domain.ReasonAccountBlocked, "Ваш аккаунт заблокирован",
			map[string]interface{}{"status": user.Status})
	}
}

func profileGate(user *models.User) error {
	contact, address := user.HasContact(), user.HasAddress()
	if contact && address {
		return nil
	}
	return domain.Forbidden(domain.ReasonProfileIncomplete, "Заполните контактные данные и адрес доставки",
		map[string]interface{}{
			"required": map[string]bool{
				"contact": !contact,
				"address": !address,
			},
		})
}

// GateService re-reads the caller on every request and applies the status
// and profile gates.
type GateService struct {
	users domain.UserStore
}

func NewGateService(users domain.UserStore) *GateService {
	return &GateService{users: users}
}

func (g *GateService) load(ctx context.Context, userID string) (*models.User, error) {
	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		if domain.KindOf(translate(err, "user")) == domain.KindNotFound {
			return nil, domain.Unauthenticated("user not found")
		}
		return nil, translate(err, "user")
	}
	return user, nil
}

// RequireActive returns the current user when its status is ACTIVE.
func (g *GateService) RequireActive(ctx context.Context, userID string) (*models.User, error) {
	user, err := g.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := activeGate(user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequireProfile applies the active gate and then the profile gate.
func (g *GateService) RequireProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := g.RequireActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := profileGate(user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequireRole checks the identity's role against the allowed set.
func RequireRole(id *Identity, roles ...models.Role) error {
	if id == nil {
		return domain.Unauthenticated("authentication required")
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return insufficientRole()
}
