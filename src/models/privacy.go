package models

import (
	"reflect"
	"slices"
)

type PrivacyKind string

const (
	PrivacyPublic     PrivacyKind = "public"
	PrivacyPrivate    PrivacyKind = "private"
	PrivacyInviteOnly PrivacyKind = "invite_only"
	PrivacyGated      PrivacyKind = "gated"
)

type GatedKind string

const (
	GatedNeuron GatedKind = "neuron"
	GatedToken  GatedKind = "token"
)

// Privacy is the admission mode attached to a group.
type Privacy struct {
	Kind  PrivacyKind `json:"kind"`
	Gated *GatedType  `json:"gated,omitempty"`
}

// GatedType lists the external sources a joiner must satisfy.
type GatedType struct {
	Kind              GatedKind     `json:"kind"`
	Neurons           []NeuronGated `json:"neurons,omitempty"`
	Tokens            []TokenGated  `json:"tokens,omitempty"`
	RequiredPassCount int           `json:"required_pass_count"`
}

// NeuronGated names a governance canister and the rules every counted neuron must pass.
type NeuronGated struct {
	Name               string       `json:"name,omitempty"`
	GovernanceCanister string       `json:"governance_canister"`
	Rules              []NeuronRule `json:"rules"`
}

type NeuronRuleKind string

const (
	RuleIsDissolving     NeuronRuleKind = "is_dissolving"
	RuleMinAge           NeuronRuleKind = "min_age"
	RuleMinStake         NeuronRuleKind = "min_stake"
	RuleMinDissolveDelay NeuronRuleKind = "min_dissolve_delay"
)

// NeuronRule is a single neuron predicate. Value is seconds for MinAge and
// MinDissolveDelay, e8s for MinStake, unused for IsDissolving.
type NeuronRule struct {
	Kind  NeuronRuleKind `json:"kind"`
	Value uint64         `json:"value,omitempty"`
}

type TokenStandard string

const (
	StandardEXT          TokenStandard = "EXT"
	StandardDIP20        TokenStandard = "DIP20"
	StandardDIP721       TokenStandard = "DIP721"
	StandardDIP721Legacy TokenStandard = "DIP721_LEGACY"
	StandardICRC         TokenStandard = "ICRC"
)

// KnownStandard reports whether the standard has a balance query.
func KnownStandard(s TokenStandard) bool {
	switch s {
	case StandardEXT, StandardDIP20, StandardDIP721, StandardDIP721Legacy, StandardICRC:
		return true
	default:
		return false
	}
}

// TokenGated is a token contract with the minimum balance a joiner must hold.
type TokenGated struct {
	Name     string        `json:"name,omitempty"`
	Contract string        `json:"contract"`
	Standard TokenStandard `json:"standard"`
	Amount   uint64        `json:"amount"`
}

func (p Privacy) Equal(other Privacy) bool {
	return reflect.DeepEqual(p, other)
}

// SourceCount is the number of gate sources configured.
func (g GatedType) SourceCount() int {
	if g.Kind == GatedNeuron {
		return len(g.Neurons)
	}
	return len(g.Tokens)
}

func (p Privacy) Clone() Privacy {
	out := Privacy{Kind: p.Kind}
	if p.Gated != nil {
		gated := *p.Gated
		gated.Tokens = slices.Clone(p.Gated.Tokens)
		if p.Gated.Neurons != nil {
			gated.Neurons = make([]NeuronGated, 0, len(p.Gated.Neurons))
			for _, n := range p.Gated.Neurons {
				n.Rules = slices.Clone(n.Rules)
				gated.Neurons = append(gated.Neurons, n)
			}
		}
		out.Gated = &gated
	}
	return out
}
