package service

import (
	"errors"
	"fmt"

	"flariki/internal/database"
	"flariki/internal/domain"
)

// translate maps store sentinels to the domain taxonomy. entity names the
// subject of a NotFound.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.As(err); ok {
		return err
	}

	var balanceErr *database.BalanceError
	var transitionErr *database.TransitionError

	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFound(entity)
	case errors.As(err, &balanceErr):
		return domain.Conflict(domain.CodeInsufficientBalance,
			fmt.Sprintf("Недостаточно флариков. Требуется: %d, доступно: %d", balanceErr.Required, balanceErr.Available), err)
	case errors.Is(err, database.ErrInsufficientBalance):
		return domain.Conflict(domain.CodeInsufficientBalance, "Недостаточно флариков", err)
	case errors.Is(err, database.ErrInsufficientStock):
		return domain.Conflict(domain.CodeInsufficientStock, "Недостаточно товара на складе", err)
	case errors.Is(err, database.ErrItemUnavailable):
		return domain.Conflict(domain.CodeItemUnavailable, "Товар недоступен", err)
	case errors.As(err, &transitionErr):
		return domain.Conflict(domain.CodeInvalidTransition, transitionErr.Error(), err)
	case errors.Is(err, database.ErrInUse):
		return domain.Conflict(domain.CodeInUse, entity+" is referenced and cannot be deleted", err)
	case errors.Is(err, database.ErrDuplicate):
		return domain.Conflict(domain.CodeDuplicate, entity+" already exists", err)
	case errors.Is(err, database.ErrReasonRequired):
		return domain.Validation("rejection reason is required",
			domain.FieldError{Field: "rejectionReason", Message: "required when status is REJECTED"})
	case errors.Is(err, database.ErrNoAssignees):
		return domain.Validation("personal task requires at least one assignee",
			domain.FieldError{Field: "assignedUserIds", Message: "at least one assignee is required"})
	case errors.Is(err, database.ErrInvalidProducts):
		return domain.Validation("some products are missing or inactive",
			domain.FieldError{Field: "productIds", Message: "every product must exist and be active"})
	case errors.Is(err, database.ErrInvalidAmount):
		return domain.Validation("invalid amount",
			domain.FieldError{Field: "amount", Message: "must be a positive integer"})
	}
	return domain.Internal(err)
}
