package services

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"group-registry/src/lib"
	"group-registry/src/models"
)

type AdmissionKind string

const (
	AdmissionGranted AdmissionKind = "granted"
	AdmissionPending AdmissionKind = "pending"
	AdmissionDenied  AdmissionKind = "denied"
)

// Admission is the outcome of evaluating a group's privacy against a joiner.
type Admission struct {
	Kind       AdmissionKind
	InviteKind models.InviteKind
	Reason     string
}

// Evidence is caller-supplied input to gated checks.
type Evidence struct {
	// AccountIdentifier is required by EXT token contracts.
	AccountIdentifier string
}

type GatekeeperConfig struct {
	Concurrency    int
	NeuronPageSize int
	NeuronMaxPages int
	CallTimeout    time.Duration
}

// Gatekeeper evaluates privacy policies. It never mutates state, so its
// result is only advisory until re-validated inside a transaction.
type Gatekeeper struct {
	verifier Verifier
	cfg      GatekeeperConfig
	metrics  *lib.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewGatekeeper(verifier Verifier, cfg GatekeeperConfig, metrics *lib.Metrics, logger *slog.Logger) *Gatekeeper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.NeuronPageSize <= 0 {
		cfg.NeuronPageSize = 100
	}
	if cfg.NeuronMaxPages <= 0 {
		cfg.NeuronMaxPages = 1
	}
	if logger == nil {
		logger = lib.DiscardLogger()
	}
	if verifier == nil {
		verifier = unavailableVerifier{}
	}
	return &Gatekeeper{
		verifier: verifier,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer("group-registry/services"),
	}
}

var errVerifierUnavailable = errors.New("verifier not configured")

// unavailableVerifier fails every call, so gated sources never pass.
type unavailableVerifier struct{}

func (unavailableVerifier) ListNeurons(context.Context, string, string, int, string) (models.NeuronPage, error) {
	return models.NeuronPage{}, errVerifierUnavailable
}

func (unavailableVerifier) BalanceOf(context.Context, models.TokenStandard, string, string) (*big.Int, error) {
	return nil, errVerifierUnavailable
}

func (g *Gatekeeper) Evaluate(ctx context.Context, group models.Group, caller string, evidence Evidence) Admission {
	switch group.Privacy.Kind {
	case models.PrivacyPublic:
		return Admission{Kind: AdmissionGranted}
	case models.PrivacyPrivate:
		return Admission{Kind: AdmissionPending, InviteKind: models.InviteUserRequest}
	case models.PrivacyInviteOnly:
		return Admission{Kind: AdmissionDenied, Reason: "group is invite only"}
	case models.PrivacyGated:
		return g.evaluateGated(ctx, group, caller, evidence)
	default:
		return Admission{Kind: AdmissionDenied, Reason: "unknown privacy"}
	}
}

func (g *Gatekeeper) evaluateGated(ctx context.Context, group models.Group, caller string, evidence Evidence) Admission {
	gated := group.Privacy.Gated
	if gated == nil || gated.SourceCount() == 0 {
		return Admission{Kind: AdmissionDenied, Reason: "gate has no sources"}
	}
	required := max(gated.RequiredPassCount, 1)

	var passed int
	switch gated.Kind {
	case models.GatedNeuron:
		passed = g.countPassing(ctx, len(gated.Neurons), required, func(ctx context.Context, i int) bool {
			return g.neuronSourcePasses(ctx, gated.Neurons[i], caller)
		})
	case models.GatedToken:
		passed = g.countPassing(ctx, len(gated.Tokens), required, func(ctx context.Context, i int) bool {
			return g.tokenSourcePasses(ctx, gated.Tokens[i], caller, evidence)
		})
	default:
		return Admission{Kind: AdmissionDenied, Reason: "unknown gate kind"}
	}

	if passed >= required {
		return Admission{Kind: AdmissionGranted}
	}
	if gated.Kind == models.GatedNeuron {
		return Admission{Kind: AdmissionDenied, Reason: "caller does not own the required neurons"}
	}
	return Admission{Kind: AdmissionDenied, Reason: "caller does not own the required tokens"}
}

// countPassing runs check for sources [0,n) with bounded parallelism and
// stops launching work once required sources have passed.
func (g *Gatekeeper) countPassing(ctx context.Context, n, required int, check func(ctx context.Context, i int) bool) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var passed atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i := range n {
		if passed.Load() >= int64(required) || egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			if check(egCtx, i) && passed.Add(1) >= int64(required) {
				cancel()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return int(min(passed.Load(), int64(n)))
}

func (g *Gatekeeper) neuronSourcePasses(ctx context.Context, source models.NeuronGated, caller string) bool {
	cursor := ""
	for range g.cfg.NeuronMaxPages {
		page, err := g.listNeurons(ctx, source.GovernanceCanister, caller, cursor)
		if err != nil {
			g.verifierFailed(ctx, "list_neurons", source.GovernanceCanister, err)
			return false
		}
		for _, neuron := range page.Neurons {
			if NeuronPassesRules(neuron, source.Rules) {
				return true
			}
		}
		if page.NextCursor == "" {
			return false
		}
		cursor = page.NextCursor
	}
	return false
}

func (g *Gatekeeper) tokenSourcePasses(ctx context.Context, source models.TokenGated, caller string, evidence Evidence) bool {
	var owner string
	switch source.Standard {
	case models.StandardEXT:
		if evidence.AccountIdentifier == "" {
			return false
		}
		owner = evidence.AccountIdentifier
	case models.StandardDIP20, models.StandardDIP721, models.StandardDIP721Legacy, models.StandardICRC:
		owner = caller
	default:
		return false
	}

	balance, err := g.balanceOf(ctx, source, owner)
	if err != nil {
		g.verifierFailed(ctx, "balance_of", source.Contract, err)
		return false
	}
	if balance == nil {
		return false
	}
	return balance.Cmp(new(big.Int).SetUint64(source.Amount)) >= 0
}

func (g *Gatekeeper) listNeurons(ctx context.Context, canister, caller, cursor string) (models.NeuronPage, error) {
	ctx, span := g.tracer.Start(ctx, "verifier.ListNeurons", trace.WithAttributes(
		attribute.String("verifier.canister", canister),
		attribute.Int("verifier.page_size", g.cfg.NeuronPageSize),
	))
	defer span.End()

	ctx, cancel := g.withCallTimeout(ctx)
	defer cancel()

	page, err := g.verifier.ListNeurons(ctx, canister, caller, g.cfg.NeuronPageSize, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return page, err
}

func (g *Gatekeeper) balanceOf(ctx context.Context, source models.TokenGated, owner string) (*big.Int, error) {
	ctx, span := g.tracer.Start(ctx, "verifier.BalanceOf", trace.WithAttributes(
		attribute.String("verifier.contract", source.Contract),
		attribute.String("verifier.standard", string(source.Standard)),
	))
	defer span.End()

	ctx, cancel := g.withCallTimeout(ctx)
	defer cancel()

	balance, err := g.verifier.BalanceOf(ctx, source.Standard, source.Contract, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return balance, err
}

func (g *Gatekeeper) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.CallTimeout)
}

func (g *Gatekeeper) verifierFailed(ctx context.Context, call, target string, err error) {
	// Sources abandoned once the threshold was met are not failures.
	if ctx.Err() != nil {
		return
	}
	g.metrics.Inc("verifier_failure_total")
	g.logger.Warn("verifier call failed", "call", call, "target", target, "error", err)
}
