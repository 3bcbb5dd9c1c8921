package models

// DissolveState is a neuron's lock state. Exactly one field is set: a fixed
// delay while locked, or the timestamp at which a dissolving neuron unlocks.
type DissolveState struct {
	DelaySeconds         *uint64 `json:"dissolve_delay_seconds,omitempty"`
	WhenDissolvedSeconds *uint64 `json:"when_dissolved_timestamp_seconds,omitempty"`
}

// Neuron is a governance voting entity as reported by a verifier.
type Neuron struct {
	ID                      string         `json:"id"`
	DissolveState           *DissolveState `json:"dissolve_state,omitempty"`
	CreatedTimestampSeconds uint64         `json:"created_timestamp_seconds"`
	StakeE8s                uint64         `json:"cached_neuron_stake_e8s"`
}

// NeuronPage is one page of a principal's neurons.
type NeuronPage struct {
	Neurons    []Neuron `json:"neurons"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
