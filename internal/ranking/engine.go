package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"photorank-backend/internal/ratelimit"
)

// Store is the rating store and vote ledger.
type Store interface {
	// PartitionItems returns every photo in a category.
	PartitionItems(ctx context.Context, partitionID int64) ([]Item, error)
	// JudgedPairs returns the pairs the voter has judged inside a category.
	JudgedPairs(ctx context.Context, voter Voter, partitionID int64) (PairSet, error)
	// HasJudged reports whether the voter already judged the pair.
	HasJudged(ctx context.Context, voter Voter, pair PairKey) (bool, error)
	// RecordJudgment appends j to the ledger and applies the ELO update to both photos
	// in a single atomic step. For guest voters with a non-nil quota the session counter
	// is admitted under the same step. It fails with ErrDuplicateJudgment, ErrItemNotFound,
	// ErrPartitionMismatch, a *ratelimit.LimitError, or an ErrStorageUnavailable wrap.
	RecordJudgment(ctx context.Context, j Judgment, quota *ratelimit.Policy) (*Outcome, error)
	// IncrementVoterTotal bumps a user's lifetime vote counter.
	IncrementVoterTotal(ctx context.Context, userID int64) error
}

// Observer receives the result of engine operations.
type Observer interface {
	ObservePair(partitionID int64, err error, elapsed time.Duration)
	ObserveJudgment(anonymous bool, err error, elapsed time.Duration)
}

// PairRequest asks for a pair in a category. A nil Voter draws purely at random.
type PairRequest struct {
	PartitionID int64
	Voter       *Voter
}

// Pair is two distinct photos of one category, in display order.
type Pair struct {
	First  Item `json:"first"`
	Second Item `json:"second"`
}

// JudgmentRequest is a vote submitted by a voter.
type JudgmentRequest struct {
	Voter         Voter
	WinnerID      int64
	LoserID       int64
	IPHash        string
	UserAgentHash string
}

// Engine serves pairs and records judgments.
type Engine struct {
	store    Store
	limiter  *ratelimit.Limiter
	sampler  *Sampler
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock replaces the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSampler replaces the pair sampler.
func WithSampler(s *Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// NewEngine creates an engine. limiter guards guest votes and must share its
// counters with store so that the in-transaction admit and the pre-check agree.
func NewEngine(store Store, limiter *ratelimit.Limiter, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		limiter: limiter,
		sampler: NewSampler(),
		tracer:  otel.Tracer("ranking-engine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequestPair returns two distinct photos of the category. Voters never get a pair
// they already judged; ErrPairsExhausted is returned once they judged them all.
func (e *Engine) RequestPair(ctx context.Context, req PairRequest) (_ *Pair, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "Engine.RequestPair",
		trace.WithAttributes(
			attribute.Int64("category.id", req.PartitionID),
			attribute.Bool("voter.present", req.Voter != nil),
		),
	)
	defer func() {
		endSpan(span, err)
		if e.observer != nil {
			e.observer.ObservePair(req.PartitionID, err, time.Since(start))
		}
	}()

	items, err := e.store.PartitionItems(ctx, req.PartitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category photos: %w", err)
	}
	if len(items) < 2 {
		return nil, ErrInsufficientItems
	}

	byID := make(map[int64]Item, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}

	var a, b int64
	if req.Voter == nil || req.Voter.IsZero() {
		a, b, err = e.sampler.RandomPair(ids)
	} else {
		var judged PairSet
		judged, err = e.store.JudgedPairs(ctx, *req.Voter, req.PartitionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load judged pairs: %w", err)
		}
		span.SetAttributes(attribute.Int("pairs.judged", len(judged)))
		a, b, err = e.sampler.UnjudgedPair(ids, judged)
	}
	if err != nil {
		return nil, err
	}

	return &Pair{First: byID[a], Second: byID[b]}, nil
}

// SubmitJudgment records that WinnerID beat LoserID and returns the updated ratings.
// A repeated pair is rejected before guest voters are checked against the rate limiter,
// so a duplicate never reads as a quota problem. If the counter store cannot be read
// the vote is refused.
func (e *Engine) SubmitJudgment(ctx context.Context, req JudgmentRequest) (_ *Outcome, err error) {
	start := time.Now()
	anonymous := req.Voter.Anonymous()
	ctx, span := e.tracer.Start(ctx, "Engine.SubmitJudgment",
		trace.WithAttributes(
			attribute.Int64("vote.winner_id", req.WinnerID),
			attribute.Int64("vote.loser_id", req.LoserID),
			attribute.Bool("voter.anonymous", anonymous),
		),
	)
	defer func() {
		endSpan(span, err)
		if e.observer != nil {
			e.observer.ObserveJudgment(anonymous, err, time.Since(start))
		}
	}()

	if req.Voter.IsZero() {
		return nil, ErrNoVoter
	}
	if req.WinnerID == req.LoserID {
		return nil, ErrSameItem
	}

	judged, err := e.store.HasJudged(ctx, req.Voter, NewPairKey(req.WinnerID, req.LoserID))
	if err != nil {
		return nil, fmt.Errorf("failed to check judged pairs: %w", err)
	}
	if judged {
		return nil, ErrDuplicateJudgment
	}

	var quota *ratelimit.Policy
	if anonymous {
		if e.limiter == nil {
			return nil, fmt.Errorf("%w: guest voting has no rate limiter", ErrStorageUnavailable)
		}
		if err := e.limiter.Check(ctx, req.Voter.SessionToken); err != nil {
			return nil, mapLimiterError(err)
		}
		policy := e.limiter.Policy()
		quota = &policy
	}

	j := Judgment{
		Voter:         req.Voter,
		WinnerID:      req.WinnerID,
		LoserID:       req.LoserID,
		IPHash:        req.IPHash,
		UserAgentHash: req.UserAgentHash,
		CreatedAt:     e.now(),
	}
	out, err := e.store.RecordJudgment(ctx, j, quota)
	if err != nil {
		return nil, err
	}

	if !anonymous {
		if err := e.store.IncrementVoterTotal(ctx, req.Voter.UserID); err != nil {
			log.Warn().
				Err(err).
				Int64("user_id", req.Voter.UserID).
				Msg("Failed to update lifetime vote counter")
		}
		out.Remaining = Unlimited
	}

	span.SetAttributes(
		attribute.Float64("vote.winner_delta", out.WinnerDelta),
		attribute.Float64("vote.winner_rating", out.Winner.Rating),
		attribute.Float64("vote.loser_rating", out.Loser.Rating),
	)
	return out, nil
}

// RemainingQuota returns how many votes a guest has left, or Unlimited for users.
func (e *Engine) RemainingQuota(ctx context.Context, voter Voter) (int, error) {
	if !voter.Anonymous() {
		return Unlimited, nil
	}
	if e.limiter == nil {
		return 0, fmt.Errorf("%w: guest voting has no rate limiter", ErrStorageUnavailable)
	}
	n, err := e.limiter.Remaining(ctx, voter.SessionToken)
	if err != nil {
		return 0, mapLimiterError(err)
	}
	return n, nil
}

// QuotaStatus returns the guest quota snapshot.
func (e *Engine) QuotaStatus(ctx context.Context, voter Voter) (ratelimit.Status, error) {
	if e.limiter == nil {
		return ratelimit.Status{}, fmt.Errorf("%w: guest voting has no rate limiter", ErrStorageUnavailable)
	}
	s, err := e.limiter.Status(ctx, voter.SessionToken)
	if err != nil {
		return ratelimit.Status{}, mapLimiterError(err)
	}
	return s, nil
}

func mapLimiterError(err error) error {
	if errors.Is(err, ratelimit.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
