// Package verifier talks to the external ownership verifier that answers
// neuron and token balance questions for gated groups.
package verifier

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"group-registry/src/models"
)

const (
	listNeuronsMethod = "/verifier.v1.Verifier/ListNeurons"
	balanceOfMethod   = "/verifier.v1.Verifier/BalanceOf"
)

// GRPCClient calls the verifier service. Requests and responses are
// google.protobuf.Struct messages; uint64 quantities travel as decimal
// strings so they survive the float64 number type.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. The connection is established lazily on
// the first call.
func Dial(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial verifier: %w", err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) ListNeurons(ctx context.Context, governanceCanister, principal string, pageSize int, cursor string) (models.NeuronPage, error) {
	req, err := structpb.NewStruct(map[string]any{
		"governance_canister": governanceCanister,
		"principal":           principal,
		"page_size":           pageSize,
		"cursor":              cursor,
	})
	if err != nil {
		return models.NeuronPage{}, fmt.Errorf("build list neurons request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, listNeuronsMethod, req, resp); err != nil {
		return models.NeuronPage{}, fmt.Errorf("list neurons: %w", err)
	}
	return decodeNeuronPage(resp)
}

func (c *GRPCClient) BalanceOf(ctx context.Context, standard models.TokenStandard, contract, owner string) (*big.Int, error) {
	req, err := structpb.NewStruct(map[string]any{
		"standard": string(standard),
		"contract": contract,
		"owner":    owner,
	})
	if err != nil {
		return nil, fmt.Errorf("build balance request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, balanceOfMethod, req, resp); err != nil {
		return nil, fmt.Errorf("balance of: %w", err)
	}

	raw, ok := resp.GetFields()["balance"]
	if !ok {
		return nil, fmt.Errorf("balance of: response has no balance")
	}
	balance, ok := new(big.Int).SetString(raw.GetStringValue(), 10)
	if !ok || balance.Sign() < 0 {
		return nil, fmt.Errorf("balance of: malformed balance %q", raw.GetStringValue())
	}
	return balance, nil
}

func decodeNeuronPage(resp *structpb.Struct) (models.NeuronPage, error) {
	fields := resp.GetFields()
	page := models.NeuronPage{NextCursor: fields["next_cursor"].GetStringValue()}
	for i, v := range fields["neurons"].GetListValue().GetValues() {
		neuron, err := decodeNeuron(v.GetStructValue())
		if err != nil {
			return models.NeuronPage{}, fmt.Errorf("decode neuron %d: %w", i, err)
		}
		page.Neurons = append(page.Neurons, neuron)
	}
	return page, nil
}

func decodeNeuron(s *structpb.Struct) (models.Neuron, error) {
	if s == nil {
		return models.Neuron{}, fmt.Errorf("not an object")
	}
	fields := s.GetFields()
	neuron := models.Neuron{ID: fields["id"].GetStringValue()}

	var err error
	if neuron.CreatedTimestampSeconds, _, err = uintField(fields, "created_timestamp_seconds"); err != nil {
		return models.Neuron{}, err
	}
	if neuron.StakeE8s, _, err = uintField(fields, "cached_neuron_stake_e8s"); err != nil {
		return models.Neuron{}, err
	}

	delay, hasDelay, err := uintField(fields, "dissolve_delay_seconds")
	if err != nil {
		return models.Neuron{}, err
	}
	when, hasWhen, err := uintField(fields, "when_dissolved_timestamp_seconds")
	if err != nil {
		return models.Neuron{}, err
	}
	switch {
	case hasDelay && hasWhen:
		return models.Neuron{}, fmt.Errorf("both dissolve delay and dissolve timestamp set")
	case hasDelay:
		neuron.DissolveState = &models.DissolveState{DelaySeconds: &delay}
	case hasWhen:
		neuron.DissolveState = &models.DissolveState{WhenDissolvedSeconds: &when}
	}
	return neuron, nil
}

// uintField reads a non-negative integer given either as a decimal string
// or as a whole number.
func uintField(fields map[string]*structpb.Value, key string) (uint64, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return n, true, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f < 0 || f != float64(uint64(f)) {
			return 0, false, fmt.Errorf("%s: %v is not a non-negative integer", key, f)
		}
		return uint64(f), true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%s: unexpected value type", key)
	}
}
