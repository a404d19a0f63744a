package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

var (
	// ErrUnauthorized means the caller is not signed in as any staff member.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller's role may not use the resource.
	ErrForbidden = errors.New("forbidden")
)

// Claims is what a staff token carries.
type Claims struct {
	StaffID string
	Email   string
	Role    string
}

type StaffService struct {
	repo     StaffRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewStaffService(repo StaffRepository, secret string, tokenTTL time.Duration, log zerolog.Logger) *StaffService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &StaffService{
		repo:     repo,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
		log:      log.With().Str("service", "staff").Logger(),
	}
}

var validRoles = map[string]bool{models.RoleAdmin: true, models.RoleAccountant: true}

// CreateStaff hashes the password and stores the account.
func (s *StaffService) CreateStaff(ctx context.Context, fullName, email, password, role string) (*models.Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validRoles[role] {
		return nil, &ledger.ValidationError{Field: "role", Value: role, Message: "must be admin or accountant"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	staff := &models.Staff{
		FullName:  strings.TrimSpace(fullName),
		Email:     email,
		Role:      role,
		HPassword: string(hash),
		CreatedAt: s.now(),
	}
	if err := s.repo.Insert(ctx, staff); err != nil {
		return nil, err
	}
	s.log.Info().Str("email", email).Str("role", role).Msg("Staff created")
	return staff, nil
}

// EnsureAdmin creates the bootstrap admin unless the email is already taken.
func (s *StaffService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.CreateStaff(ctx, "Administrator", email, password, models.RoleAdmin)
	if errors.Is(err, ledger.ErrDuplicateStaff) {
		return nil
	}
	return err
}

func (s *StaffService) List(ctx context.Context) ([]models.Staff, error) {
	return s.repo.List(ctx)
}

// Login checks the credentials and returns a signed token.
func (s *StaffService) Login(ctx context.Context, email, password string) (string, *models.Staff, error) {
	staff, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ledger.ErrStaffNotFound) {
			return "", nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.HPassword), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   staff.ID.Hex(),
		"email": staff.Email,
		"role":  staff.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, staff, nil
}

// ParseToken verifies an HS256 token and returns its claims.
func (s *StaffService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	claims := &Claims{}
	claims.StaffID, _ = mc["sub"].(string)
	claims.Email, _ = mc["email"].(string)
	claims.Role, _ = mc["role"].(string)
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: token has no role", ErrUnauthorized)
	}
	return claims, nil
}
