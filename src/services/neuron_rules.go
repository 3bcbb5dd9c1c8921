package services

import "group-registry/src/models"

const e8sPerToken = 100_000_000

// NeuronPassesRules reports whether a neuron satisfies every rule.
func NeuronPassesRules(neuron models.Neuron, rules []models.NeuronRule) bool {
	for _, rule := range rules {
		if !neuronPassesRule(neuron, rule) {
			return false
		}
	}
	return true
}

func neuronPassesRule(neuron models.Neuron, rule models.NeuronRule) bool {
	state := neuron.DissolveState
	switch rule.Kind {
	case models.RuleIsDissolving:
		return state != nil && state.DelaySeconds == nil && state.WhenDissolvedSeconds != nil
	case models.RuleMinAge:
		return neuron.CreatedTimestampSeconds >= rule.Value
	case models.RuleMinStake:
		return ceilTokens(neuron.StakeE8s) >= ceilTokens(rule.Value)
	case models.RuleMinDissolveDelay:
		if state == nil || state.DelaySeconds == nil {
			return false
		}
		return *state.DelaySeconds >= rule.Value
	default:
		return false
	}
}

// ceilTokens converts e8s to whole tokens, rounding up.
func ceilTokens(e8s uint64) uint64 {
	tokens := e8s / e8sPerToken
	if e8s%e8sPerToken != 0 {
		tokens++
	}
	return tokens
}
