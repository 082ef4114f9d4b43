package quorum

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories/memory"
	"github.com/upb/governance-ledger/services"
	"go.uber.org/zap"
)

var reviewers = []models.ReviewerType{models.ReviewerTech, models.ReviewerSafety}

func newTestEngine() *Engine {
	return NewEngine(memory.NewQuorumRepository(), memory.NewTransactionManager(), zap.NewNop())
}

func vote(policyID, voter string, v models.VoteValue) VoteRequest {
	return VoteRequest{
		PolicyID:    policyID,
		VoterID:     voter,
		Vote:        v,
		QuorumTypes: reviewers,
		Threshold:   2,
	}
}

func TestEngine_ApprovesAtThreshold(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	state, err := engine.Vote(ctx, vote("p1", "alice", models.VoteApprove))
	require.NoError(t, err)
	assert.Equal(t, models.QuorumPending, state.Result)

	state, err = engine.Vote(ctx, vote("p1", "bob", models.VoteApprove))
	require.NoError(t, err)
	assert.Equal(t, models.QuorumApproved, state.Result)
	assert.NotNil(t, state.ResolvedAt)

	decision, err := engine.GetDecision(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.QuorumApproved, decision.Result)
	assert.Equal(t, reviewers, decision.QuorumTypes)
}

func TestEngine_ThirdVoteDoesNotChangeTerminalResult(t *testing.T) {
	for _, third := range []models.VoteValue{models.VoteApprove, models.VoteReject} {
		t.Run(string(third), func(t *testing.T) {
			ctx := context.Background()
			engine := newTestEngine()

			_, err := engine.Vote(ctx, vote("p1", "alice", models.VoteApprove))
			require.NoError(t, err)
			_, err = engine.Vote(ctx, vote("p1", "bob", models.VoteApprove))
			require.NoError(t, err)

			state, err := engine.Vote(ctx, vote("p1", "carol", third))
			require.NoError(t, err)
			assert.Equal(t, models.QuorumApproved, state.Result)
			assert.Len(t, state.Votes, 2, "votes on a terminal decision are not recorded")

			again, err := engine.GetDecision(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, models.QuorumApproved, again.Result)
		})
	}
}

func TestEngine_RepeatVoteReplacesPrior(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	_, err := engine.Vote(ctx, vote("p1", "alice", models.VoteApprove))
	require.NoError(t, err)
	state, err := engine.Vote(ctx, vote("p1", "alice", models.VoteApprove))
	require.NoError(t, err)

	assert.Equal(t, models.QuorumPending, state.Result, "same voter must not count twice")
	assert.Len(t, state.Votes, 1)

	state, err = engine.Vote(ctx, vote("p1", "alice", models.VoteReject))
	require.NoError(t, err)
	approvals, rejections := state.Tally()
	assert.Equal(t, 0, approvals)
	assert.Equal(t, 1, rejections)
}

func TestEngine_RejectsAtThreshold(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	_, err := engine.Vote(ctx, vote("p1", "alice", models.VoteReject))
	require.NoError(t, err)
	_, err = engine.Vote(ctx, vote("p1", "bob", models.VoteApprove))
	require.NoError(t, err)
	state, err := engine.Vote(ctx, vote("p1", "carol", models.VoteReject))
	require.NoError(t, err)

	assert.Equal(t, models.QuorumRejected, state.Result)
}

func TestEngine_FirstCallFixesThreshold(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	_, err := engine.Open(ctx, "p1", []models.ReviewerType{models.ReviewerFinance}, 1)
	require.NoError(t, err)

	req := vote("p1", "alice", models.VoteApprove)
	req.Threshold = 5
	state, err := engine.Vote(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, state.Threshold)
	assert.Equal(t, models.QuorumApproved, state.Result)
	assert.Equal(t, []models.ReviewerType{models.ReviewerFinance}, state.QuorumTypes)
}

func TestEngine_OpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	first, err := engine.Open(ctx, "p1", reviewers, 2)
	require.NoError(t, err)
	assert.Empty(t, first.Votes)
	assert.Equal(t, models.QuorumPending, first.Result)

	second, err := engine.Open(ctx, "p1", reviewers, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Threshold)

	pending, err := engine.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEngine_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	tests := []struct {
		name string
		req  VoteRequest
	}{
		{"empty voter", VoteRequest{PolicyID: "p1", Vote: models.VoteApprove, Threshold: 1}},
		{"empty policy", VoteRequest{VoterID: "a", Vote: models.VoteApprove, Threshold: 1}},
		{"abstain", VoteRequest{PolicyID: "p1", VoterID: "a", Vote: "abstain", Threshold: 1}},
		{"zero threshold", VoteRequest{PolicyID: "p1", VoterID: "a", Vote: models.VoteApprove, Threshold: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Vote(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))
		})
	}

	_, err := engine.Open(ctx, "p1", reviewers, 0)
	assert.True(t, services.IsValidationError(err))
}

func TestEngine_GetDecisionNotFound(t *testing.T) {
	_, err := newTestEngine().GetDecision(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestEngine_ConcurrentVotesResolveOnce(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	var fired int32
	done := make(chan *models.QuorumDecisionState, 10)
	engine.AddObserver(ObserverFunc(func(ctx context.Context, state *models.QuorumDecisionState) {
		atomic.AddInt32(&fired, 1)
		done <- state
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Vote(ctx, vote("p1", fmt.Sprintf("voter-%d", i), models.VoteApprove))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	select {
	case state := <-done:
		assert.Equal(t, models.QuorumApproved, state.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not notified")
	}

	// Give any duplicate notification a chance to arrive
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	state, err := engine.GetDecision(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, state.Votes, 2)
}

func TestEngine_PanickingObserverIsContained(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()

	done := make(chan struct{})
	engine.AddObserver(ObserverFunc(func(ctx context.Context, state *models.QuorumDecisionState) {
		panic("boom")
	}))
	engine.AddObserver(ObserverFunc(func(ctx context.Context, state *models.QuorumDecisionState) {
		close(done)
	}))

	req := vote("p1", "alice", models.VoteApprove)
	req.Threshold = 1
	state, err := engine.Vote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.QuorumApproved, state.Result)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second observer was not notified")
	}
}
