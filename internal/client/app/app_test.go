package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/client/progress"
	"github.com/atinyakov/learnpath/internal/client/syncadapter"
	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(t *testing.T, owner string, tier models.Tier) string {
	t.Helper()
	tok, err := authtoken.Issue("secret", owner, tier, time.Hour)
	require.NoError(t, err)
	return tok
}

func newApp(t *testing.T, cfg *config.Options) (*App, *syncadapter.Memory) {
	t.Helper()
	remote := syncadapter.NewMemory()
	remote.Seed(models.Plan{
		ID:         "a1",
		OwnerID:    "alice",
		Title:      "Alice's plan",
		Visibility: models.VisibilityPrivate,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		Steps: []models.Step{
			{ID: "s1", PlanID: "a1", Title: "one", Order: 1},
			{ID: "s2", PlanID: "a1", Title: "two", Order: 2},
			{ID: "s3", PlanID: "a1", Title: "three", Order: 3},
		},
	})
	if cfg == nil {
		cfg = config.Default()
	}
	a, err := New(context.Background(), cfg, remote, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, remote
}

func TestSessionChangesReloadStore(t *testing.T) {
	a, _ := newApp(t, nil)

	require.NoError(t, a.SignIn(token(t, "alice", models.TierFree)))
	assert.Equal(t, "alice", a.Owner())
	_, ok := a.Store.Get("a1")
	assert.True(t, ok)
	assert.Len(t, a.Store.List(nil), a.Templates.Len()+1)

	a.Session.SignOut()
	require.NoError(t, a.LoadErr())
	_, ok = a.Store.Get("a1")
	assert.False(t, ok)
	assert.Len(t, a.Store.List(nil), a.Templates.Len())

	require.NoError(t, a.SignInGuest())
	assert.Empty(t, a.Owner())
	assert.Len(t, a.Store.List(nil), a.Templates.Len())
}

func TestSignIn_LoadFailureIsReported(t *testing.T) {
	a, remote := newApp(t, nil)
	remote.FailNext(syncadapter.OpFetchOwnerPlans, &models.NetworkError{Op: "fetch plans", Err: errors.New("refused")})

	err := a.SignIn(token(t, "alice", models.TierFree))
	var netErr *models.NetworkError
	require.ErrorAs(t, err, &netErr)

	require.NoError(t, a.Reload(context.Background()))
	_, ok := a.Store.Get("a1")
	assert.True(t, ok)
}

func TestSignIn_BadToken(t *testing.T) {
	a, _ := newApp(t, nil)
	assert.Error(t, a.SignIn("not-a-token"))
	_, ok := a.Session.Current()
	assert.False(t, ok)
}

func TestEngineEndToEnd(t *testing.T) {
	a, remote := newApp(t, nil)
	ctx := context.Background()
	require.NoError(t, a.SignIn(token(t, "alice", models.TierFree)))

	_, err := a.Pipeline.ToggleCompletion(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 33, progressPercent(a, "a1"))

	shared, err := a.Pipeline.SetVisibility(ctx, "a1", true)
	require.NoError(t, err)
	resolved, err := a.Share.Resolve(ctx, shared.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, "a1", resolved.ID)

	require.NoError(t, a.Pipeline.DeletePlan(ctx, "a1"))
	_, ok := remote.Completion("alice", "s1")
	assert.False(t, ok)
	assert.Zero(t, progressPercent(a, "a1"))
}

func progressPercent(a *App, planID string) int {
	return progress.Percent(a.Progress.Progress(planID))
}

func TestGenerator(t *testing.T) {
	a, _ := newApp(t, nil)
	_, err := a.RequireGenerator()
	assert.ErrorContains(t, err, "OpenAI")

	cfg := config.Default()
	cfg.OpenAIKey = "sk-test"
	withKey, _ := newApp(t, cfg)
	gen, err := withKey.RequireGenerator()
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestNew_HTTPAdapter(t *testing.T) {
	cfg := config.Default()
	a, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.Remote.(*syncadapter.HTTPAdapter)
	assert.True(t, ok)

	cfg.CAFile = "/does/not/exist.pem"
	_, err = New(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

func TestUpgrade_AdoptsProToken(t *testing.T) {
	a, remote := newApp(t, nil)
	pro := token(t, "alice", models.TierPro)
	remote.UpgradeToken = func(string) (string, error) { return pro, nil }
	require.NoError(t, a.SignIn(token(t, "alice", models.TierFree)))

	s, err := a.Upgrade(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, s.Tier)
	assert.Equal(t, pro, a.Session.Token())
	assert.Equal(t, 1, remote.CallCount(syncadapter.OpConfirmUpgrade))
}

func TestUpgrade_Declined(t *testing.T) {
	a, remote := newApp(t, nil)
	remote.UpgradeToken = func(string) (string, error) {
		return "", &models.ValidationError{Field: "order_id", Reason: "receipt is not valid"}
	}
	require.NoError(t, a.SignIn(token(t, "alice", models.TierFree)))

	_, err := a.Upgrade(context.Background(), "order-1")
	assert.ErrorIs(t, err, models.ErrValidation)
	s, _ := a.Session.Current()
	assert.Equal(t, models.TierFree, s.Tier)
}
