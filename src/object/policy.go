package object

import (
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
)

// PolicyType names the kind of subjects a policy speaks about.
type PolicyType string

// PolicyEffect is the outcome of a policy.
type PolicyEffect string

// PolicyAction is the operation a policy governs.
type PolicyAction string

const (
	// SignaturePolicy matches requests by the public key of the signer.
	SignaturePolicy PolicyType = "signature"

	AllowEffect PolicyEffect = "allow"
	DenyEffect  PolicyEffect = "deny"

	ReadAction   PolicyAction = "read"
	AppendAction PolicyAction = "append"
)

// Policy is an access rule attached to a stream. Empty Subjects, Resources
// or Actions match everything.
type Policy struct {
	Type      PolicyType
	Subjects  []keys.PublicKey
	Resources []string
	Actions   []PolicyAction
	Effect    PolicyEffect
}

// ToMap returns the hinted map form of the policy.
func (p Policy) ToMap() Map {
	m := NewMap()
	if p.Type != "" {
		m.Set("type", String(p.Type))
	}
	if len(p.Subjects) > 0 {
		subjects := make([]string, len(p.Subjects))
		for i, s := range p.Subjects {
			subjects[i] = s.String()
		}
		m.Set("subjects", StringArray(subjects...))
	}
	if len(p.Resources) > 0 {
		m.Set("resources", StringArray(p.Resources...))
	}
	if len(p.Actions) > 0 {
		actions := make([]string, len(p.Actions))
		for i, a := range p.Actions {
			actions[i] = string(a)
		}
		m.Set("actions", StringArray(actions...))
	}
	m.Set("effect", String(p.Effect))
	return m
}

// PolicyFromMap parses the hinted map form of a policy.
func PolicyFromMap(m Map) (Policy, error) {
	p := Policy{}

	strings := func(name string) ([]string, error) {
		v, ok := m.Get(name)
		if !ok {
			return nil, nil
		}
		arr, ok := v.(Array)
		if !ok || arr.Elem() != StringHint {
			return nil, &TypeMismatchError{Key: "policy." + name, Expected: ArrayHint + StringHint, Got: v.Hint()}
		}
		return arr.Strings(), nil
	}

	for _, name := range m.Keys() {
		switch name {
		case "type", "effect", "subjects", "resources", "actions":
		default:
			return p, &DecodeError{Key: "policy." + name, Reason: "unknown policy field"}
		}
	}

	if v, ok := m.Get("type"); ok {
		s, ok := v.(String)
		if !ok {
			return p, &TypeMismatchError{Key: "policy.type", Expected: StringHint, Got: v.Hint()}
		}
		p.Type = PolicyType(s)
	}

	v, ok := m.Get("effect")
	if !ok {
		return p, &MalformedObjectError{Reason: "policy without effect"}
	}
	effect, ok := v.(String)
	if !ok {
		return p, &TypeMismatchError{Key: "policy.effect", Expected: StringHint, Got: v.Hint()}
	}
	p.Effect = PolicyEffect(effect)
	if p.Effect != AllowEffect && p.Effect != DenyEffect {
		return p, &DecodeError{Key: "policy.effect", Reason: "effect must be allow or deny"}
	}

	subjects, err := strings("subjects")
	if err != nil {
		return p, err
	}
	for _, s := range subjects {
		pub, err := keys.ParsePublicKey(s)
		if err != nil {
			return p, &DecodeError{Key: "policy.subjects", Reason: err.Error()}
		}
		p.Subjects = append(p.Subjects, pub)
	}

	if p.Resources, err = strings("resources"); err != nil {
		return p, err
	}

	actions, err := strings("actions")
	if err != nil {
		return p, err
	}
	for _, a := range actions {
		p.Actions = append(p.Actions, PolicyAction(a))
	}

	return p, nil
}

func (p Policy) copy() Policy {
	c := Policy{
		Type:      p.Type,
		Effect:    p.Effect,
		Resources: append([]string(nil), p.Resources...),
		Actions:   append([]PolicyAction(nil), p.Actions...),
	}
	for _, s := range p.Subjects {
		c.Subjects = append(c.Subjects, append(keys.PublicKey(nil), s...))
	}
	return c
}
