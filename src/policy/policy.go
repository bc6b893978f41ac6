// Package policy evaluates the access policies attached to streams.
//
// Policies are considered in order. A policy matches a request when each of
// its subject, resource and action lists is either empty or contains the
// request's value. Among matching policies the most specific one wins, where
// specificity counts the non-empty lists; on ties the later policy wins. An
// empty policy list allows everything, while a non-empty list that nothing
// matches denies.
package policy

import (
	"fmt"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/object"
)

// Request is the question put to a list of policies.
type Request struct {
	Subject  keys.PublicKey
	Resource string
	Action   object.PolicyAction
}

// decision is the state carried across the fold.
type decision struct {
	effect      object.PolicyEffect
	specificity int
	matched     bool
}

// Evaluate returns the effect of the policies for the request.
func Evaluate(policies []object.Policy, req Request) object.PolicyEffect {
	if len(policies) == 0 {
		return object.AllowEffect
	}

	d := decision{effect: object.DenyEffect}
	for _, p := range policies {
		d = step(d, p, req)
	}

	return d.effect
}

// Allowed is a shortcut for Evaluate(...) == allow.
func Allowed(policies []object.Policy, req Request) bool {
	return Evaluate(policies, req) == object.AllowEffect
}

// Specificity counts the non-empty lists of a policy.
func Specificity(p object.Policy) int {
	s := 0
	if len(p.Subjects) > 0 {
		s++
	}
	if len(p.Resources) > 0 {
		s++
	}
	if len(p.Actions) > 0 {
		s++
	}
	return s
}

// Matches reports whether the policy applies to the request.
func Matches(p object.Policy, req Request) bool {
	if p.Type != "" && p.Type != object.SignaturePolicy {
		return false
	}
	if len(p.Subjects) > 0 && !containsKey(p.Subjects, req.Subject) {
		return false
	}
	if len(p.Resources) > 0 && !contains(p.Resources, req.Resource) {
		return false
	}
	if len(p.Actions) > 0 && !containsAction(p.Actions, req.Action) {
		return false
	}
	return true
}

func step(d decision, p object.Policy, req Request) decision {
	if !Matches(p, req) {
		return d
	}
	s := Specificity(p)
	if d.matched && s < d.specificity {
		return d
	}
	return decision{
		effect:      p.Effect,
		specificity: s,
		matched:     true,
	}
}

func containsKey(list []keys.PublicKey, k keys.PublicKey) bool {
	for _, l := range list {
		if l.Equals(k) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func containsAction(list []object.PolicyAction, a object.PolicyAction) bool {
	for _, l := range list {
		if l == a {
			return true
		}
	}
	return false
}

// DeniedError is returned when a request is refused by the policies of a
// stream.
type DeniedError struct {
	Request Request
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied %s of %q by %s", e.Request.Action, e.Request.Resource, e.Request.Subject)
}

// Check returns a DeniedError when the policies do not allow the request.
func Check(policies []object.Policy, req Request) error {
	if !Allowed(policies, req) {
		return &DeniedError{Request: req}
	}
	return nil
}
