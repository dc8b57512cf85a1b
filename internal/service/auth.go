package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flariki/internal/database"
	"flariki/internal/domain"
	"flariki/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted staff password.
const MinPasswordLength = 6

type AuthMethod string

const (
	MethodTelegram AuthMethod = "telegram"
	MethodBearer   AuthMethod = "bearer"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID     string
	TelegramID int64
	Role       models.Role
	Status     models.UserStatus
	Method     AuthMethod
}

func identityOf(user *models.User, method AuthMethod) *Identity {
	return &Identity{
		UserID:     user.ID,
		TelegramID: user.TelegramID,
		Role:       user.Role,
		Status:     user.Status,
		Method:     method,
	}
}

// CredentialResolver turns one kind of credential into an Identity.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// TelegramResolver authenticates Mini App users by signed init data.
type TelegramResolver struct {
	users    domain.UserStore
	botToken string
	maxAge   time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewTelegramResolver(users domain.UserStore, botToken string, maxAge time.Duration, logger *zerolog.Logger) *TelegramResolver {
	return &TelegramResolver{
		users:    users,
		botToken: botToken,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger,
	}
}

func (r *TelegramResolver) Resolve(ctx context.Context, initData string) (*Identity, error) {
	if r.botToken == "" {
		return nil, domain.Unauthenticated("telegram authentication is not configured")
	}

	data, err := ValidateInitData(initData, r.botToken, r.maxAge, r.now())
	if err != nil {
		r.logger.Debug().Err(err).Msg("init data rejected")
		return nil, domain.Unauthenticated("invalid telegram init data")
	}

	user, created, err := r.users.UpsertTelegramUser(ctx, models.TelegramProfile{
		TelegramID: data.User.ID,
		Username:   data.User.Username,
		FirstName:  data.User.FirstName,
		LastName:   data.User.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert telegram user: %w", err)
	}
	if created {
		r.logger.Info().Str("user_id", user.ID).Int64("telegram_id", user.TelegramID).Msg("new ambassador registered")
	}

	return identityOf(user, MethodTelegram), nil
}

// BearerResolver authenticates admin panel users by JWT.
type BearerResolver struct {
	users  domain.UserStore
	tokens *TokenIssuer
}

func NewBearerResolver(users domain.UserStore, tokens *TokenIssuer) *BearerResolver {
	return &BearerResolver{users: users, tokens: tokens}
}

func (r *BearerResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil, domain.Unauthenticated("invalid or expired token")
	}

	// роль и статус берем из базы, а не из токена
	user, err := r.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.Unauthenticated("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token user: %w", err)
	}
	if !user.Role.IsStaff() {
		return nil, insufficientRole()
	}
	if err := activeGate(user); err != nil {
		return nil, err
	}

	return identityOf(user, MethodBearer), nil
}

// Credentials are the raw authentication headers of a request.
type Credentials struct {
	InitData      string
	Authorization string
}

// AccessGate picks the resolver for a request's credentials.
type AccessGate struct {
	telegram CredentialResolver
	bearer   CredentialResolver
}

func NewAccessGate(telegram, bearer CredentialResolver) *AccessGate {
	return &AccessGate{telegram: telegram, bearer: bearer}
}

func (g *AccessGate) Authenticate(ctx context.Context, c Credentials) (*Identity, error) {
	initData := strings.TrimSpace(c.InitData)
	authorization := strings.TrimSpace(c.Authorization)

	switch {
	case initData != "" && authorization != "":
		return nil, domain.Unauthenticated("provide either telegram init data or a bearer token, not both")
	case authorization != "":
		token, ok := bearerToken(authorization)
		if !ok {
			return nil, domain.Unauthenticated("malformed authorization header")
		}
		return g.bearer.Resolve(ctx, token)
	case initData != "":
		return g.telegram.Resolve(ctx, initData)
	}
	return nil, domain.Unauthenticated("authentication required")
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Claims are the JWT claims of an admin session.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 admin tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(user *models.User) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.ttl)
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HashPassword validates and bcrypt-hashes a staff password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", domain.Validation("password is too short",
			domain.FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// LoginResult is returned by a successful admin login.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// AdminAuthService handles email/password login to the admin panel.
type AdminAuthService struct {
	users     domain.UserStore
	tokens    *TokenIssuer
	bootstrap bool
	logger    *zerolog.Logger
}

func NewAdminAuthService(users domain.UserStore, tokens *TokenIssuer, bootstrapPasswords bool, logger *zerolog.Logger) *AdminAuthService {
	return &AdminAuthService{
		users:     users,
		tokens:    tokens,
		bootstrap: bootstrapPasswords,
		logger:    logger,
	}
}

func (s *AdminAuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.Validation("email and password are required")
	}

	invalid := domain.Unauthenticated("invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.Role.IsStaff() {
		return nil, insufficientRole()
	}

	if user.PasswordHash == nil || *user.PasswordHash == "" {
		if !s.bootstrap {
			return nil, invalid
		}
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		if err := s.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
			return nil, fmt.Errorf("failed to store password: %w", err)
		}
		s.logger.Warn().Str("user_id", user.ID).Msg("staff password set on first login")
	} else if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}

	if err := activeGate(user); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AdminAuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	return user, translate(err, "user")
}
