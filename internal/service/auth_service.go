package service

import (
	"context"
	"strings"

	"pivot/internal/auth"
	"pivot/internal/models"
	"pivot/internal/repository"
	"pivot/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Unable to log in with provided credentials."

// AuthService registers users and turns credentials into users and tokens.
type AuthService struct {
	userRepo   repository.UserRepository
	tokenRepo  repository.TokenRepository
	tokens     *auth.TokenManager
	bcryptCost int
}

type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	IsStaff   bool
}

// TokenPair is the result of a JWT login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	tokens *auth.TokenManager,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost lowers the hashing cost. Tests only.
func (s *AuthService) WithBcryptCost(cost int) *AuthService {
	s.bcryptCost = cost
	return s
}

// Tokens exposes the token manager used for sessions.
func (s *AuthService) Tokens() *auth.TokenManager { return s.tokens }

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password, username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user := &models.User{
		Username:  username,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsStaff:   in.IsStaff,
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Email = &email
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user.Password = string(hashed)

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks a username and password.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, models.NewValidationError("Must include \"username\" and \"password\".")
	}
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError(invalidCredentials)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError(invalidCredentials)
	}
	return user, nil
}

// ObtainAPIToken authenticates and returns the user's API token, creating it
// on first use.
func (s *AuthService) ObtainAPIToken(ctx context.Context, username, password string) (*models.AuthToken, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.tokenRepo.GetOrCreate(ctx, user.ID, auth.NewAPIKey)
}

// UserForAPIToken resolves "Authorization: Token <key>".
func (s *AuthService) UserForAPIToken(ctx context.Context, key string) (*models.User, error) {
	token, err := s.tokenRepo.GetByKey(ctx, key)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("Invalid token.")
		}
		return nil, err
	}
	user := token.User
	return &user, nil
}

// CreateJWT authenticates and issues an access/refresh pair.
func (s *AuthService) CreateJWT(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issuePair(user)
}

// RefreshJWT exchanges a refresh token for a new access token. The user must
// still exist.
func (s *AuthService) RefreshJWT(ctx context.Context, refresh string) (string, error) {
	claims, err := s.tokens.ParseAs(refresh, auth.TypeRefresh)
	if err != nil {
		return "", models.NewUnauthorizedError("Token is invalid or expired")
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsNotFound(err) {
			return "", models.NewUnauthorizedError("User not found")
		}
		return "", err
	}
	access, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return access, nil
}

// VerifyJWT accepts any valid token, access or refresh.
func (s *AuthService) VerifyJWT(raw string) error {
	if _, err := s.tokens.Parse(raw); err != nil {
		return models.NewUnauthorizedError("Token is invalid or expired")
	}
	return nil
}

// UserForAccessToken resolves "Authorization: Bearer <jwt>" and the session
// cookie.
func (s *AuthService) UserForAccessToken(ctx context.Context, raw string) (*models.User, error) {
	claims, err := s.tokens.ParseAs(raw, auth.TypeAccess)
	if err != nil {
		return nil, models.NewUnauthorizedError("Token is invalid or expired")
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("User not found")
		}
		return nil, err
	}
	return user, nil
}

// IssueSession signs the access token stored in the page session cookie.
func (s *AuthService) IssueSession(user *models.User) (string, error) {
	token, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return token, nil
}

// EnsureStaff creates username as a staff user, or promotes it and resets
// its password when it already exists.
func (s *AuthService) EnsureStaff(ctx context.Context, username, password string) (*models.User, bool, error) {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil && !models.IsNotFound(err) {
		return nil, false, err
	}
	if existing == nil {
		user, err := s.Register(ctx, RegisterInput{Username: username, Password: password, IsStaff: true})
		return user, true, err
	}

	if err := validation.ValidatePassword(password, username); err != nil {
		return nil, false, models.NewValidationError(err.Error())
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}
	existing.Password = string(hashed)
	existing.IsStaff = true
	if err := s.userRepo.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *AuthService) issuePair(user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
