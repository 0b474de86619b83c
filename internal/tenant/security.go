package tenant

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"relay/internal/platform/auth"
	"relay/internal/platform/models"
)

const (
	minSessionTimeout = 15   // minutes
	maxSessionTimeout = 1440 // minutes
	minEncryptionKey  = 32   // bytes
)

// Violation codes returned by ValidateSecurity.
const (
	CodeInvalidEncryptionKey  = "INVALID_ENCRYPTION_KEY"
	CodeInvalidSessionTimeout = "INVALID_SESSION_TIMEOUT"
	CodeInvalidPasswordPolicy = "INVALID_PASSWORD_POLICY"
)

// SuperAdminRole bypasses all role and permission checks.
const SuperAdminRole = "super_admin"

// Role-granted capabilities. A user's effective permission set is the union
// of these with their direct grants.
var rolePermissions = map[string][]models.Permission{
	"admin": {
		{Resource: "tenants", Action: "manage"},
		{Resource: "users", Action: "manage"},
		{Resource: "connections", Action: "manage"},
		{Resource: "webhooks", Action: "manage"},
	},
	"manager": {
		{Resource: "connections", Action: "read"},
		{Resource: "connections", Action: "write"},
		{Resource: "webhooks", Action: "read"},
		{Resource: "orders", Action: "manage"},
	},
	"viewer": {
		{Resource: "connections", Action: "read"},
		{Resource: "webhooks", Action: "read"},
		{Resource: "orders", Action: "read"},
	},
}

type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidateSecurity checks a tenant security policy and returns every
// violation found, not just the first.
func ValidateSecurity(p models.SecurityPolicy) []Violation {
	var violations []Violation

	if p.EncryptionEnabled && len(p.EncryptionKey) < minEncryptionKey {
		violations = append(violations, Violation{
			Code:    CodeInvalidEncryptionKey,
			Message: "encryption is enabled but the configured key is shorter than 32 bytes",
		})
	}

	if p.SessionTimeout < minSessionTimeout || p.SessionTimeout > maxSessionTimeout {
		violations = append(violations, Violation{
			Code:    CodeInvalidSessionTimeout,
			Message: "session timeout must be between 15 and 1440 minutes",
		})
	}

	if p.PasswordPolicy.MinLength < 8 || p.PasswordPolicy.MinLength > 128 {
		violations = append(violations, Violation{
			Code:    CodeInvalidPasswordPolicy,
			Message: "password minimum length must be between 8 and 128",
		})
	}

	return violations
}

// effectivePermissions is the union of role-granted and direct permissions.
func effectivePermissions(u *models.TenantUser) []models.Permission {
	perms := make([]models.Permission, 0, len(u.Permissions))
	perms = append(perms, u.Permissions...)
	for _, role := range u.Roles {
		perms = append(perms, rolePermissions[role]...)
	}
	return perms
}

func isSuperAdmin(u *models.TenantUser) bool {
	for _, role := range u.Roles {
		if role == SuperAdminRole {
			return true
		}
	}
	return false
}

// CheckPermissions reports whether the user holds every required permission.
func CheckPermissions(u *models.TenantUser, required []models.Permission) bool {
	if isSuperAdmin(u) {
		return true
	}

	held := effectivePermissions(u)
	for _, req := range required {
		if !permissionGranted(held, req) {
			return false
		}
	}
	return true
}

func permissionGranted(held []models.Permission, req models.Permission) bool {
	for _, p := range held {
		if (p.Resource == req.Resource || p.Resource == "*") &&
			(p.Action == req.Action || p.Action == "manage" || p.Action == "*") {
			return true
		}
	}
	return false
}

// CheckRoles reports whether the user holds every required role.
func CheckRoles(u *models.TenantUser, required []string) bool {
	if isSuperAdmin(u) {
		return true
	}

	for _, req := range required {
		found := false
		for _, role := range u.Roles {
			if role == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword checks a candidate password against the tenant policy.
func ValidatePassword(p models.PasswordPolicy, password string) error {
	if len(password) < p.MinLength {
		return errors.New("password is shorter than the tenant minimum length")
	}

	var hasUpper, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case (r >= '!' && r <= '/') || (r >= ':' && r <= '@') || (r >= '[' && r <= '`') || (r >= '{' && r <= '~'):
			hasSymbol = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		return errors.New("password must contain an uppercase letter")
	}
	if p.RequireNumbers && !hasNumber {
		return errors.New("password must contain a number")
	}
	if p.RequireSymbols && !hasSymbol {
		return errors.New("password must contain a symbol")
	}
	return nil
}

// SecurityService issues and verifies tenant user sessions. Session tokens
// are HS256 JWTs; expiry follows the tenant's session timeout policy.
type SecurityService struct {
	tokens *auth.TokenService
}

func NewSecurityService(tokens *auth.TokenService) *SecurityService {
	return &SecurityService{tokens: tokens}
}

type SessionPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

func (s *SecurityService) IssueSession(t *models.Tenant, u *models.TenantUser) (*SessionPair, error) {
	ttl := time.Duration(t.Security.SessionTimeout) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	access, err := s.tokens.GenerateAccessToken(u.ID, t.ID, u.Email, u.Roles, ttl)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}

	return &SessionPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ttl.Seconds()),
	}, nil
}

func (s *SecurityService) VerifySession(token string) (*auth.Claims, error) {
	return s.tokens.ValidateToken(token)
}
