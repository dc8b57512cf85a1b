package models

import "time"

type Role string

const (
	RoleAmbassador Role = "AMBASSADOR"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAmbassador, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may use the admin panel.
func (r Role) IsStaff() bool {
	return r == RoleManager || r == RoleAdmin
}

type UserStatus string

const (
	UserPending   UserStatus = "PENDING"
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserPending, UserActive, UserInactive, UserSuspended:
		return true
	}
	return false
}

type User struct {
	ID             string     `json:"id"`
	TelegramID     int64      `json:"telegramId"`
	Username       *string    `json:"username"`
	FirstName      *string    `json:"firstName"`
	LastName       *string    `json:"lastName"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email"`
	CdekPvz        *string    `json:"cdekPvz"`
	Address        *string    `json:"address"`
	InstagramLink  *string    `json:"instagramLink"`
	YoutubeLink    *string    `json:"youtubeLink"`
	TiktokLink     *string    `json:"tiktokLink"`
	VkLink         *string    `json:"vkLink"`
	Role           Role       `json:"role"`
	Status         UserStatus `json:"status"`
	FlarikiBalance int64      `json:"flarikiBalance"`
	PasswordHash   *string    `json:"-"`
	ModeratedAt    *time.Time `json:"moderatedAt"`
	ModeratedByID  *string    `json:"moderatedById"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Tags           []Tag      `json:"tags,omitempty"`
}

// HasContact: телефон или email.
func (u *User) HasContact() bool {
	return nonEmpty(u.Phone) || nonEmpty(u.Email)
}

// HasAddress: пункт СДЭК или адрес доставки.
func (u *User) HasAddress() bool {
	return nonEmpty(u.CdekPvz) || nonEmpty(u.Address)
}

func (u *User) DisplayName() string {
	switch {
	case nonEmpty(u.FirstName) && nonEmpty(u.LastName):
		return *u.FirstName + " " + *u.LastName
	case nonEmpty(u.FirstName):
		return *u.FirstName
	case nonEmpty(u.Username):
		return "@" + *u.Username
	}
	return u.ID
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
