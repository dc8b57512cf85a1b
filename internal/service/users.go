package service

import (
	"context"
	"net/mail"
	"strings"

	"flariki/internal/domain"
	"flariki/internal/events"
	"flariki/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	users      domain.UserStore
	dispatcher domain.Dispatcher
	audit      *Auditor
	eventBus   domain.EventPublisher
	links      Links
	logger     *zerolog.Logger
}

func NewUserService(
	users domain.UserStore,
	dispatcher domain.Dispatcher,
	audit *Auditor,
	eventBus domain.EventPublisher,
	links Links,
	logger *zerolog.Logger,
) *UserService {
	return &UserService{
		users:      users,
		dispatcher: dispatcher,
		audit:      audit,
		eventBus:   eventBus,
		links:      links,
		logger:     logger,
	}
}

// Me returns the caller with its tags.
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}
	tags, err := s.users.GetUserTags(ctx, userID)
	if err != nil {
		return nil, translate(err, "tag")
	}
	user.Tags = tags
	return user, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// UpdateProfile applies the provided fields. Empty strings clear a field.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	upd = models.ProfileUpdate{
		Phone:         trimPtr(upd.Phone),
		Email:         trimPtr(upd.Email),
		CdekPvz:       trimPtr(upd.CdekPvz),
		Address:       trimPtr(upd.Address),
		InstagramLink: trimPtr(upd.InstagramLink),
		YoutubeLink:   trimPtr(upd.YoutubeLink),
		TiktokLink:    trimPtr(upd.TiktokLink),
		VkLink:        trimPtr(upd.VkLink),
	}

	var fields []domain.FieldError
	if upd.Email != nil && *upd.Email != "" {
		if addr, err := mail.ParseAddress(*upd.Email); err != nil || addr.Address != *upd.Email {
			fields = append(fields, domain.FieldError{Field: "email", Message: "must be a valid email"})
		}
	}
	links := map[string]*string{
		"instagramLink": upd.InstagramLink,
		"youtubeLink":   upd.YoutubeLink,
		"tiktokLink":    upd.TiktokLink,
		"vkLink":        upd.VkLink,
	}
	for _, name := range []string{"instagramLink", "youtubeLink", "tiktokLink", "vkLink"} {
		if v := links[name]; v != nil && *v != "" && !validURL(*v) {
			fields = append(fields, domain.FieldError{Field: name, Message: "must be a valid URL"})
		}
	}
	if len(fields) > 0 {
		return nil, domain.Validation("invalid profile", fields...)
	}

	user, err := s.users.UpdateUserProfile(ctx, userID, upd)
	if err != nil {
		return nil, translate(err, "email")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, f models.UserFilter) ([]*models.User, models.Pagination, error) {
	users, total, err := s.users.ListUsers(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, translate(err, "user")
	}
	return users, models.NewPagination(f.Page, total), nil
}

// Moderate sets a user's status. Activation notifies the user.
func (s *UserService) Moderate(ctx context.Context, actorID, userID string, status models.UserStatus, notes *string) (*models.User, error) {
	if !status.Valid() {
		return nil, domain.Validation("invalid status",
			domain.FieldError{Field: "status", Message: "must be PENDING, ACTIVE, INACTIVE or SUSPENDED"})
	}

	before, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}

	var moderator *string
	if actorID != "" {
		moderator = &actorID
	}
	user, err := s.users.SetUserStatus(ctx, userID, status, moderator)
	if err != nil {
		return nil, translate(err, "user")
	}

	details := map[string]interface{}{
		"previousStatus": before.Status,
		"status":         status,
	}
	if notes != nil && *notes != "" {
		details["notes"] = *notes
	}
	s.audit.Record(ctx, actorID, AuditUserModerated, "user", userID, details)
	publishEvent(s.eventBus, s.logger, events.EventUserModerated, events.UserEventPayload{
		UserID:  userID,
		Status:  string(status),
		ActorID: actorID,
	})

	if status == models.UserActive && before.Status != models.UserActive {
		single(s.dispatcher, "user_activated", accountActivatedNotification(s.links, user.TelegramID))
	}
	return user, nil
}

// AssignTags replaces the user's tag set.
func (s *UserService) AssignTags(ctx context.Context, actorID, userID string, tagIDs []string) ([]models.Tag, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, translate(err, "user")
	}
	if err := s.users.SetUserTags(ctx, userID, tagIDs); err != nil {
		return nil, translate(err, "tag")
	}
	s.audit.Record(ctx, actorID, AuditTagsAssigned, "user", userID, map[string]interface{}{"tagIds": tagIDs})

	tags, err := s.users.GetUserTags(ctx, userID)
	return tags, translate(err, "tag")
}
