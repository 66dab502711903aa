package authz

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluator_AdminCanOverrideBackupCodes(t *testing.T) {
	e, err := NewEvaluator("")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	admin := Actor{ID: "admin-1", Roles: []string{"admin"}}
	if err := e.Require(context.Background(), admin, ActionBackupCodeOverride); err != nil {
		t.Errorf("admin should hold backup_code_override: %v", err)
	}
	if err := e.Require(context.Background(), admin, ActionWebAuthnAdminDelete); err != nil {
		t.Errorf("admin should hold webauthn_admin_delete: %v", err)
	}
}

func TestEvaluator_NonAdminDenied(t *testing.T) {
	e, _ := NewEvaluator("")
	user := Actor{ID: "user-7", Roles: []string{"user"}}
	err := e.Require(context.Background(), user, ActionBackupCodeOverride)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("want ErrNotAuthorized, got %v", err)
	}
}

func TestEvaluator_GlobalDisableRequiresSuperadmin(t *testing.T) {
	e, _ := NewEvaluator("")
	admin := Actor{ID: "admin-1", Roles: []string{"admin"}}
	if err := e.Require(context.Background(), admin, ActionWebAuthnGlobalDisable); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("plain admin must not disable globally, got %v", err)
	}
	super := Actor{ID: "root-1", Roles: []string{"superadmin"}}
	if err := e.Require(context.Background(), super, ActionWebAuthnGlobalDisable); err != nil {
		t.Errorf("superadmin should hold webauthn_global_disable: %v", err)
	}
}

func TestEvaluator_EmptyActorDenied(t *testing.T) {
	e, _ := NewEvaluator("")
	if err := e.Require(context.Background(), Actor{}, ActionBackupCodeOverride); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("empty actor should be denied, got %v", err)
	}
}

func TestEvaluator_HealthCheck(t *testing.T) {
	e, _ := NewEvaluator("")
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestNewEvaluator_RejectsBadPolicy(t *testing.T) {
	if _, err := NewEvaluator("package broken\nallow if {"); err == nil {
		t.Error("invalid rego should fail to compile")
	}
}
