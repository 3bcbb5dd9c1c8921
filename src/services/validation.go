package services

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"group-registry/src/apierr"
	"group-registry/src/models"
)

const (
	minNameLength        = 3
	maxNameLength        = 64
	maxDescriptionLength = 2500
	maxWebsiteLength     = 200
	maxTags              = 25
)

var nameFolder = cases.Fold()

// NameKey is the case-insensitive identity used for name uniqueness.
func NameKey(name string) string {
	return nameFolder.String(norm.NFC.String(strings.TrimSpace(name)))
}

// textLength counts user-perceived characters as NFC segments, so a base
// letter with combining marks counts once.
func textLength(s string) int {
	var it norm.Iter
	it.InitString(norm.NFC, s)
	n := 0
	for !it.Done() {
		it.Next()
		n++
	}
	return n
}

type groupFields struct {
	name        string
	description string
	website     string
	tags        []string
}

func validateGroupFields(f groupFields) error {
	if n := textLength(strings.TrimSpace(f.name)); n < minNameLength || n > maxNameLength {
		return apierr.BadRequest(fmt.Sprintf("name must be between %d and %d characters", minNameLength, maxNameLength))
	}
	if textLength(f.description) > maxDescriptionLength {
		return apierr.BadRequest(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	if textLength(f.website) > maxWebsiteLength {
		return apierr.BadRequest(fmt.Sprintf("website must be at most %d characters", maxWebsiteLength))
	}
	if len(f.tags) > maxTags {
		return apierr.BadRequest(fmt.Sprintf("at most %d tags are allowed", maxTags))
	}
	return nil
}

// normalizePrivacy validates a privacy configuration and returns the form
// that is stored: gate details are dropped for non-gated kinds and a zero
// required pass count becomes 1.
func normalizePrivacy(p models.Privacy) (models.Privacy, error) {
	switch p.Kind {
	case models.PrivacyPublic, models.PrivacyPrivate, models.PrivacyInviteOnly:
		return models.Privacy{Kind: p.Kind}, nil
	case models.PrivacyGated:
	default:
		return models.Privacy{}, apierr.BadRequest("unknown privacy kind " + string(p.Kind))
	}

	if p.Gated == nil {
		return models.Privacy{}, apierr.BadRequest("gated privacy requires a gate")
	}
	out := p.Clone()
	gated := out.Gated

	switch gated.Kind {
	case models.GatedNeuron:
		gated.Tokens = nil
		for i, source := range gated.Neurons {
			if strings.TrimSpace(source.GovernanceCanister) == "" {
				return models.Privacy{}, apierr.BadRequest(fmt.Sprintf("neuron source %d has no governance canister", i))
			}
			for _, rule := range source.Rules {
				if !slices.Contains(neuronRuleKinds, rule.Kind) {
					return models.Privacy{}, apierr.BadRequest("unknown neuron rule " + string(rule.Kind))
				}
			}
		}
	case models.GatedToken:
		gated.Neurons = nil
		for i, source := range gated.Tokens {
			if strings.TrimSpace(source.Contract) == "" {
				return models.Privacy{}, apierr.BadRequest(fmt.Sprintf("token source %d has no contract", i))
			}
			if !models.KnownStandard(source.Standard) {
				return models.Privacy{}, apierr.BadRequest("unknown token standard " + string(source.Standard))
			}
		}
	default:
		return models.Privacy{}, apierr.BadRequest("unknown gate kind " + string(gated.Kind))
	}

	sources := gated.SourceCount()
	if sources == 0 {
		return models.Privacy{}, apierr.BadRequest("gated privacy requires at least one source")
	}
	if gated.RequiredPassCount <= 0 {
		gated.RequiredPassCount = 1
	}
	if gated.RequiredPassCount > sources {
		return models.Privacy{}, apierr.BadRequest(fmt.Sprintf("required pass count %d exceeds %d sources", gated.RequiredPassCount, sources))
	}
	return out, nil
}

var neuronRuleKinds = []models.NeuronRuleKind{
	models.RuleIsDissolving,
	models.RuleMinAge,
	models.RuleMinStake,
	models.RuleMinDissolveDelay,
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
