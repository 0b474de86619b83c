package tenant

import (
	"testing"
	"time"

	"relay/internal/platform/auth"
	"relay/internal/platform/config"
	"relay/internal/platform/models"
)

func validPolicy() models.SecurityPolicy {
	return models.SecurityPolicy{
		EncryptionEnabled: false,
		SessionTimeout:    60,
		PasswordPolicy:    models.PasswordPolicy{MinLength: 10},
	}
}

func TestValidateSecurity(t *testing.T) {
	if v := ValidateSecurity(validPolicy()); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}

	p := validPolicy()
	p.SessionTimeout = 10
	violations := ValidateSecurity(p)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}
	if violations[0].Code != CodeInvalidSessionTimeout {
		t.Errorf("expected %s, got %s", CodeInvalidSessionTimeout, violations[0].Code)
	}

	p = validPolicy()
	p.SessionTimeout = 1441
	if v := ValidateSecurity(p); len(v) != 1 || v[0].Code != CodeInvalidSessionTimeout {
		t.Errorf("expected session timeout violation for 1441, got %v", v)
	}
}

func TestValidateSecurityCollectsAllViolations(t *testing.T) {
	p := models.SecurityPolicy{
		EncryptionEnabled: true,
		EncryptionKey:     "short",
		SessionTimeout:    5,
		PasswordPolicy:    models.PasswordPolicy{MinLength: 4},
	}

	violations := ValidateSecurity(p)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(violations), violations)
	}

	codes := map[string]bool{}
	for _, v := range violations {
		codes[v.Code] = true
	}
	for _, want := range []string{CodeInvalidEncryptionKey, CodeInvalidSessionTimeout, CodeInvalidPasswordPolicy} {
		if !codes[want] {
			t.Errorf("missing violation %s", want)
		}
	}
}

func TestCheckPermissions(t *testing.T) {
	viewer := &models.TenantUser{Roles: []string{"viewer"}}
	if !CheckPermissions(viewer, []models.Permission{{Resource: "orders", Action: "read"}}) {
		t.Error("viewer should read orders")
	}
	if CheckPermissions(viewer, []models.Permission{{Resource: "orders", Action: "write"}}) {
		t.Error("viewer should not write orders")
	}

	manager := &models.TenantUser{Roles: []string{"manager"}}
	if !CheckPermissions(manager, []models.Permission{{Resource: "orders", Action: "delete"}}) {
		t.Error("manage on orders should imply delete")
	}

	direct := &models.TenantUser{
		Permissions: []models.Permission{{Resource: "*", Action: "read"}},
	}
	if !CheckPermissions(direct, []models.Permission{{Resource: "connections", Action: "read"}}) {
		t.Error("wildcard resource grant should allow read on any resource")
	}

	super := &models.TenantUser{Roles: []string{SuperAdminRole}}
	if !CheckPermissions(super, []models.Permission{{Resource: "tenants", Action: "delete"}}) {
		t.Error("super_admin should bypass permission checks")
	}
}

func TestCheckRoles(t *testing.T) {
	u := &models.TenantUser{Roles: []string{"admin", "manager"}}
	if !CheckRoles(u, []string{"admin"}) {
		t.Error("expected admin role to match")
	}
	if CheckRoles(u, []string{"admin", "viewer"}) {
		t.Error("missing viewer role should fail")
	}

	super := &models.TenantUser{Roles: []string{SuperAdminRole}}
	if !CheckRoles(super, []string{"viewer"}) {
		t.Error("super_admin should bypass role checks")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery") {
		t.Error("expected password to verify")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("wrong password should not verify")
	}
}

func TestValidatePassword(t *testing.T) {
	policy := models.PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireNumbers:   true,
		RequireSymbols:   true,
	}

	if err := ValidatePassword(policy, "Ab3!defg"); err != nil {
		t.Errorf("expected valid password, got %v", err)
	}
	if err := ValidatePassword(policy, "short"); err == nil {
		t.Error("expected length error")
	}
	if err := ValidatePassword(policy, "ab3!defg"); err == nil {
		t.Error("expected uppercase error")
	}
	if err := ValidatePassword(policy, "Abc!defg"); err == nil {
		t.Error("expected number error")
	}
	if err := ValidatePassword(policy, "Ab3defgh"); err == nil {
		t.Error("expected symbol error")
	}
}

func TestIssueAndVerifySession(t *testing.T) {
	tokens := auth.NewTokenService(config.JWTConfig{
		Secret:          "test-secret-key-for-sessions",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	svc := NewSecurityService(tokens)

	tn := &models.Tenant{ID: "tnt_1"}
	tn.Security.SessionTimeout = 30
	user := &models.TenantUser{ID: "usr_1", Email: "a@b.test", Roles: []string{"admin"}}

	pair, err := svc.IssueSession(tn, user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.ExpiresIn != 30*60 {
		t.Errorf("expected expires_in 1800, got %d", pair.ExpiresIn)
	}

	claims, err := svc.VerifySession(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "usr_1" || claims.TenantID != "tnt_1" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("unexpected roles: %v", claims.Roles)
	}
}
