// Package authz evaluates explicit authorization capabilities for admin-only
// MFA operations. Callers pass the acting principal in; nothing is read from
// ambient request context.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// ErrNotAuthorized is returned when the actor lacks the capability for an
// admin-only operation. Callers must audit the attempt regardless.
var ErrNotAuthorized = errors.New("actor is not authorized for this operation")

// Admin-only actions evaluated against the policy.
const (
	ActionBackupCodeOverride    = "backup_code_override"
	ActionWebAuthnAdminDelete   = "webauthn_admin_delete"
	ActionWebAuthnGlobalDisable = "webauthn_global_disable"
)

// Actor is the principal attempting an admin-only operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Default Rego policy: admins may override backup codes and delete
// credentials; only superadmins may disable WebAuthn globally.
const defaultRegoPolicy = `package mfa.admin

default allow := false

allow if {
	input.action == "backup_code_override"
	is_admin
}

allow if {
	input.action == "webauthn_admin_delete"
	is_admin
}

allow if {
	input.action == "webauthn_global_disable"
	input.actor.roles[_] == "superadmin"
}

is_admin if {
	input.actor.roles[_] == "admin"
}

is_admin if {
	input.actor.roles[_] == "superadmin"
}
`

// Evaluator checks admin capabilities using an in-process OPA Rego policy.
type Evaluator struct {
	compiler *ast.Compiler
}

// NewEvaluator compiles the capability policy. policy may be empty to use the
// default.
func NewEvaluator(policy string) (*Evaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"capability.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile capability policy: %w", err)
	}
	return &Evaluator{compiler: compiler}, nil
}

// Require returns nil when actor holds the capability for action, and
// ErrNotAuthorized otherwise. Evaluation errors deny by default.
func (e *Evaluator) Require(ctx context.Context, actor Actor, action string) error {
	if actor.ID == "" {
		return ErrNotAuthorized
	}
	input := map[string]interface{}{
		"action": action,
		"actor": map[string]interface{}{
			"id":    actor.ID,
			"roles": actor.Roles,
		},
	}
	q := rego.New(
		rego.Query("data.mfa.admin.allow"),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("evaluate capability policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ErrNotAuthorized
	}
	if allowed, ok := rs[0].Expressions[0].Value.(bool); !ok || !allowed {
		return ErrNotAuthorized
	}
	return nil
}

// HealthCheck verifies that the in-process Rego engine can evaluate the
// compiled policy. Returns nil on success.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	return ignoreNotAuthorized(e.Require(ctx, Actor{ID: "healthcheck"}, ActionBackupCodeOverride))
}

func ignoreNotAuthorized(err error) error {
	if errors.Is(err, ErrNotAuthorized) {
		return nil
	}
	return err
}
