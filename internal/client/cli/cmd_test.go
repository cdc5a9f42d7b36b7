package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/client/app"
	"github.com/atinyakov/learnpath/internal/client/cli/formatter"
	"github.com/atinyakov/learnpath/internal/client/draft"
	"github.com/atinyakov/learnpath/internal/client/storage"
	"github.com/atinyakov/learnpath/internal/client/syncadapter"
	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	formatter.DisableColor()
	m.Run()
}

type generatorFunc func(ctx context.Context, topic string) (*draft.PlanDraft, error)

func (f generatorFunc) GenerateDraft(ctx context.Context, topic string) (*draft.PlanDraft, error) {
	return f(ctx, topic)
}

func testToken(t *testing.T, owner string, tier models.Tier) string {
	t.Helper()
	tok, err := authtoken.Issue("secret", owner, tier, time.Hour)
	require.NoError(t, err)
	return tok
}

// testApp wires the CLI against an in-memory remote and a credentials file
// in a temp dir.
func testApp(t *testing.T, credPath string) (*App, *syncadapter.Memory) {
	t.Helper()
	remote := syncadapter.NewMemory()
	return testAppWithRemote(t, credPath, remote), remote
}

func testAppWithRemote(t *testing.T, credPath string, remote *syncadapter.Memory) *App {
	t.Helper()
	cfg := config.Default()
	cfg.RefreshInterval = config.Duration{}

	engine, err := app.New(context.Background(), cfg, remote, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	if credPath == "" {
		credPath = filepath.Join(t.TempDir(), "session.json")
	}
	creds := storage.NewLocalStorage(credPath)
	require.NoError(t, creds.Load())

	return &App{
		Engine:      engine,
		Credentials: creds,
		Config:      cfg,
		Interactive: func() bool { return false },
	}
}

func executeCmd(t *testing.T, a *App, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(a)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func login(t *testing.T, a *App, owner string, tier models.Tier) {
	t.Helper()
	out, err := executeCmd(t, a, "", "login", "--token", testToken(t, owner, tier))
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as "+owner)
}

func ownedPlans(a *App, owner string) []models.Plan {
	return a.Engine.Store.List(func(p *models.Plan) bool {
		return !p.IsTemplate && p.OwnerID == owner
	})
}

// --- Session commands ---

func TestTemplates_SignedOut(t *testing.T) {
	a, _ := testApp(t, "")

	out, err := executeCmd(t, a, "", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "tmpl-go")
	assert.Contains(t, out, "Backend Development with Go")
}

func TestLogin_SavesCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	a, _ := testApp(t, path)

	login(t, a, "alice", models.TierFree)

	saved := storage.NewLocalStorage(path)
	require.NoError(t, saved.Load())
	assert.NotEmpty(t, saved.Get().Token)

	out, err := executeCmd(t, a, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "alice (FREE, 0 of 3 plans)\n", out)
}

func TestLogin_RequiresToken(t *testing.T) {
	a, _ := testApp(t, "")

	_, err := executeCmd(t, a, "", "login")
	assert.EqualError(t, err, "--token is required")
}

func TestRestore_FromSavedCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	first, remote := testApp(t, path)
	login(t, first, "alice", models.TierPro)
	_, err := executeCmd(t, first, "", "create", "--title", "Kept plan")
	require.NoError(t, err)

	second := testAppWithRemote(t, path, remote)
	out, err := executeCmd(t, second, "", "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "Kept plan")
}

func TestLogout_ForgetsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	a, _ := testApp(t, path)
	login(t, a, "alice", models.TierFree)

	out, err := executeCmd(t, a, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)

	saved := storage.NewLocalStorage(path)
	require.NoError(t, saved.Load())
	assert.Equal(t, storage.Credentials{}, saved.Get())

	out, err = executeCmd(t, a, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in\n", out)
}

func TestCommandsRequireSignIn(t *testing.T) {
	a, _ := testApp(t, "")

	_, err := executeCmd(t, a, "", "create", "--title", "Nope")
	require.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.Contains(t, err.Error(), "learnpath login")

	_, err = executeCmd(t, a, "", "plans")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestGuest_IsReadOnlyByDefault(t *testing.T) {
	a, remote := testApp(t, "")

	out, err := executeCmd(t, a, "", "guest")
	require.NoError(t, err)
	assert.Contains(t, out, "Browsing as guest")
	assert.True(t, a.Credentials.Get().Guest)

	out, err = executeCmd(t, a, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "guest\n", out)

	_, err = executeCmd(t, a, "", "create", "--title", "Local")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	out, err = executeCmd(t, a, "", "show", "tmpl-go")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] ")
	assert.Zero(t, remote.CallCount(syncadapter.OpCreatePlan))
}

// --- Plan commands ---

func TestCreateShowComplete(t *testing.T) {
	a, remote := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	out, err := executeCmd(t, a, "", "create",
		"--title", "Learn Go",
		"--category", "Backend",
		"--step", "Tour|basics|https://go.dev/tour",
		"--step", "Concurrency")
	require.NoError(t, err)
	assert.Contains(t, out, "Created plan ")

	plans := ownedPlans(a, "alice")
	require.Len(t, plans, 1)
	p := plans[0]
	require.Len(t, p.Steps, 2)
	_, ok := remote.Plan(p.ID)
	assert.True(t, ok)

	out, err = executeCmd(t, a, "", "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "Learn Go")
	assert.Contains(t, out, "[░░░░░░░░░░]   0%")

	out, err = executeCmd(t, a, "", "complete", p.Steps[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "marked done")
	assert.Contains(t, out, "50%")

	out, err = executeCmd(t, a, "", "show", p.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Learn Go")
	assert.Contains(t, out, "Category:   Backend")
	assert.Contains(t, out, "[x] Tour")
	assert.Contains(t, out, "[ ] Concurrency")
	assert.Contains(t, out, "article: Tour https://go.dev/tour")
	assert.Contains(t, out, "Visibility: private")

	out, err = executeCmd(t, a, "", "complete", p.Steps[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "marked not done")
}

func TestCreate_Prompt(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	_, err := executeCmd(t, a, "", "create")
	assert.EqualError(t, err, "--title is required")

	a.Interactive = func() bool { return true }
	out, err := executeCmd(t, a, "Prompted plan\nfrom stdin\n\nFirst step\n\n", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "Enter title: ")
	assert.Contains(t, out, "Created plan ")

	plans := ownedPlans(a, "alice")
	require.Len(t, plans, 1)
	assert.Equal(t, "Prompted plan", plans[0].Title)
	assert.Equal(t, "from stdin", plans[0].Description)
	require.Len(t, plans[0].Steps, 1)
	assert.Equal(t, "First step", plans[0].Steps[0].Title)
}

func TestCreate_QuotaHint(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	for i := 0; i < 3; i++ {
		_, err := executeCmd(t, a, "", "create", "--title", "Plan")
		require.NoError(t, err)
	}
	_, err := executeCmd(t, a, "", "create", "--title", "One too many")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FREE plan is limited to 3 plans")
	assert.Contains(t, err.Error(), "learnpath upgrade --order")
}

func TestUpgrade_LiftsQuotaForNextCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	a, remote := testApp(t, path)
	pro := testToken(t, "alice", models.TierPro)
	var order string
	remote.UpgradeToken = func(id string) (string, error) {
		order = id
		return pro, nil
	}
	login(t, a, "alice", models.TierFree)

	for i := 0; i < 3; i++ {
		_, err := executeCmd(t, a, "", "create", "--title", "Plan")
		require.NoError(t, err)
	}

	out, err := executeCmd(t, a, "", "upgrade", "--order", "receipt-1")
	require.NoError(t, err)
	assert.Equal(t, "Upgraded alice to PRO (up to 25 plans)\n", out)
	assert.Equal(t, "receipt-1", order)

	_, err = executeCmd(t, a, "", "create", "--title", "Fourth")
	require.NoError(t, err)
	assert.Len(t, ownedPlans(a, "alice"), 4)

	saved := storage.NewLocalStorage(path)
	require.NoError(t, saved.Load())
	assert.Equal(t, pro, saved.Get().Token)
}

func TestUpgrade_Errors(t *testing.T) {
	a, _ := testApp(t, "")

	_, err := executeCmd(t, a, "", "upgrade")
	assert.EqualError(t, err, "--order is required")

	_, err = executeCmd(t, a, "", "upgrade", "--order", "receipt-1")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestEdit(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)
	_, err := executeCmd(t, a, "", "create", "--title", "Old", "--description", "keep me", "--step", "First")
	require.NoError(t, err)
	id := ownedPlans(a, "alice")[0].ID
	firstStep := ownedPlans(a, "alice")[0].Steps[0].ID

	out, err := executeCmd(t, a, "", "edit", id, "--title", "New", "--add-step", "Second")
	require.NoError(t, err)
	assert.Equal(t, "Updated plan "+id+"\n", out)

	p, ok := a.Engine.Store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "New", p.Title)
	assert.Equal(t, "keep me", p.Description)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, firstStep, p.Steps[0].ID)
	assert.Equal(t, "Second", p.Steps[1].Title)

	_, err = executeCmd(t, a, "", "edit", id, "--step", "Only")
	require.NoError(t, err)
	p, _ = a.Engine.Store.Get(id)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "Only", p.Steps[0].Title)

	_, err = executeCmd(t, a, "", "edit", id, "--clear-steps")
	require.NoError(t, err)
	p, _ = a.Engine.Store.Get(id)
	assert.Empty(t, p.Steps)

	_, err = executeCmd(t, a, "", "edit", id, "--title", " ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = executeCmd(t, a, "", "edit", "tmpl-go", "--title", "Mine")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestDelete(t *testing.T) {
	a, remote := testApp(t, "")
	login(t, a, "alice", models.TierFree)
	_, err := executeCmd(t, a, "", "create", "--title", "Short lived")
	require.NoError(t, err)
	id := ownedPlans(a, "alice")[0].ID

	out, err := executeCmd(t, a, "", "delete", id)
	require.NoError(t, err)
	assert.Equal(t, "Deleted plan "+id+"\n", out)
	_, ok := remote.Plan(id)
	assert.False(t, ok)

	out, err = executeCmd(t, a, "", "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "No plans yet")

	_, err = executeCmd(t, a, "", "delete", id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCopyTemplate(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	out, err := executeCmd(t, a, "", "copy", "tmpl-go")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend Development with Go")

	plans := ownedPlans(a, "alice")
	require.Len(t, plans, 1)
	assert.NotEqual(t, "tmpl-go", plans[0].ID)

	_, err = executeCmd(t, a, "", "copy", "tmpl-nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDraft(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	_, err := executeCmd(t, a, "", "draft", "rust")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI")

	var topic string
	a.Engine.Generator = generatorFunc(func(_ context.Context, tp string) (*draft.PlanDraft, error) {
		topic = tp
		return &draft.PlanDraft{
			Title: "Rust basics",
			Steps: []draft.StepDraft{{Title: "Ownership"}, {Title: "Traits"}},
		}, nil
	})
	out, err := executeCmd(t, a, "", "draft", "rust", "for", "beginners")
	require.NoError(t, err)
	assert.Equal(t, "rust for beginners", topic)
	assert.Contains(t, out, "Rust basics (2 steps)")

	a.Engine.Generator = generatorFunc(func(context.Context, string) (*draft.PlanDraft, error) {
		return nil, nil
	})
	_, err = executeCmd(t, a, "", "draft", "nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more specific topic")
}

// --- Sharing ---

func TestShareResolveUnshare(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)
	_, err := executeCmd(t, a, "", "create", "--title", "Shared plan", "--step", "Read")
	require.NoError(t, err)
	id := ownedPlans(a, "alice")[0].ID

	out, err := executeCmd(t, a, "", "share", id)
	require.NoError(t, err)
	p, _ := a.Engine.Store.Get(id)
	require.NotEmpty(t, p.ShareToken)
	assert.Contains(t, out, "Share link: "+p.ShareToken)
	assert.Contains(t, out, "expires")

	out, err = executeCmd(t, a, "", "resolve", p.ShareToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Shared plan")
	assert.Contains(t, out, "Visibility: public")

	out, err = executeCmd(t, a, "", "unshare", id)
	require.NoError(t, err)
	assert.Equal(t, "Plan "+id+" is private\n", out)

	_, err = executeCmd(t, a, "", "resolve", p.ShareToken)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolve_TemplateLink(t *testing.T) {
	a, _ := testApp(t, "")

	out, err := executeCmd(t, a, "", "resolve", "tmpl-share-go")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend Development with Go")
	assert.NotContains(t, out, "Progress:")
}

// --- Shell ---

func TestShell(t *testing.T) {
	a, _ := testApp(t, "")
	tok := testToken(t, "alice", models.TierFree)

	input := strings.Join([]string{
		"login --token " + tok,
		`create --title "Shell plan"`,
		"plans",
		"show missing",
		`create --title "unterminated`,
		"shell",
		"exit",
		"plans",
	}, "\n") + "\n"

	out, err := executeCmd(t, a, input, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")
	assert.Contains(t, out, "Created plan ")
	assert.Contains(t, out, "Shell plan")
	assert.Contains(t, out, "Error: plan missing: not found")
	assert.Contains(t, out, "Error: already in the shell")
	assert.Contains(t, out, "Bye")
	assert.Len(t, ownedPlans(a, "alice"), 1)
}

func TestShell_PromptReadsShellInput(t *testing.T) {
	a, _ := testApp(t, "")
	login(t, a, "alice", models.TierFree)

	input := "create\nFrom shell\n\n\n\nplans\nquit\n"
	out, err := executeCmd(t, a, input, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "Created plan ")
	assert.Contains(t, out, "From shell")

	plans := ownedPlans(a, "alice")
	require.Len(t, plans, 1)
	assert.Equal(t, "From shell", plans[0].Title)
}

func TestShell_EOFEnds(t *testing.T) {
	a, _ := testApp(t, "")

	out, err := executeCmd(t, a, "templates\n", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "tmpl-go")
}

func TestHelp_DoesNotTouchRemote(t *testing.T) {
	a, remote := testApp(t, "")
	a.Credentials.SetToken(testToken(t, "alice", models.TierFree))

	out, err := executeCmd(t, a, "", "help")
	require.NoError(t, err)
	assert.Contains(t, out, "learnpath")
	assert.Empty(t, remote.Calls())
}
