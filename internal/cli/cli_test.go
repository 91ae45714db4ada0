package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stoqplus/backend/internal/config"
	"stoqplus/backend/internal/store/memory"
)

type testRoot struct {
	opts   *RootOptions
	out    *bytes.Buffer
	closed int
}

func newTestRoot(t *testing.T, repo *memory.Store) *testRoot {
	t.Helper()
	root := &testRoot{out: &bytes.Buffer{}}
	root.opts = &RootOptions{
		Config: &config.Config{Admin: config.AdminConfig{Name: "Root"}},
		OpenBackend: func(_ context.Context, url string) (*Backend, error) {
			assert.Equal(t, "postgres://test", url)
			return &Backend{Repo: repo, Close: func() error { root.closed++; return nil }}, nil
		},
	}
	return root
}

func (r *testRoot) execute(args ...string) error {
	cmd := NewRootCommand(r.opts)
	cmd.SetOut(r.out)
	cmd.SetErr(r.out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootRequiresDatabaseURL(t *testing.T) {
	root := newTestRoot(t, memory.New())

	err := root.execute("seed-admin", "--email", "root@stoqplus.test", "--password", "Root#Pass2026")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestRootFallsBackToConfiguredURL(t *testing.T) {
	repo := memory.New()
	root := newTestRoot(t, repo)
	root.opts.Config.DB.URL = "postgres://test"

	require.NoError(t, root.execute("seed-admin", "--email", "root@stoqplus.test", "--password", "Root#Pass2026"))
}

func TestSeedAdminCreatesVerifiedSuperAdmin(t *testing.T) {
	repo := memory.New()
	root := newTestRoot(t, repo)

	err := root.execute("--database-url", "postgres://test",
		"seed-admin", "--email", "Root@StoqPlus.test", "--password", "Root#Pass2026")
	require.NoError(t, err)
	assert.Contains(t, root.out.String(), "ready")
	assert.Equal(t, 1, root.closed)

	user, err := repo.GetUserByEmail(context.Background(), "root@stoqplus.test")
	require.NoError(t, err)
	assert.True(t, user.IsSuperAdmin)
	assert.True(t, user.IsVerified)
	assert.Equal(t, "Root", user.Name)

	membership, err := repo.GetMembershipByUser(context.Background(), user.ID)
	require.NoError(t, err)
	st, err := repo.GetStore(context.Background(), membership.StoreID)
	require.NoError(t, err)
	assert.Equal(t, "PRO", st.Plan)
}

func TestSeedAdminRequiresCredentials(t *testing.T) {
	root := newTestRoot(t, memory.New())

	err := root.execute("--database-url", "postgres://test", "seed-admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email and --password are required")
}

func TestSetPasswordReplacesHash(t *testing.T) {
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#Test2026")
	repo := memory.NewSeeded()
	root := newTestRoot(t, repo)

	err := root.execute("--database-url", "postgres://test",
		"user", "set-password", memory.DemoSellerEmail, "--password", "Nova#Senha2026")
	require.NoError(t, err)

	user, err := repo.GetUserByEmail(context.Background(), memory.DemoSellerEmail)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Nova#Senha2026")))
}

func TestSetPasswordRejectsWeakPassword(t *testing.T) {
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#Test2026")
	repo := memory.NewSeeded()
	root := newTestRoot(t, repo)

	err := root.execute("--database-url", "postgres://test",
		"user", "set-password", memory.DemoSellerEmail, "--password", "weak")
	require.Error(t, err)

	user, err := repo.GetUserByEmail(context.Background(), memory.DemoSellerEmail)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Demo#Test2026")))
}

func TestSetPasswordReadsEnvironment(t *testing.T) {
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#Test2026")
	t.Setenv(newPasswordEnv, "Env#Senha2026")
	repo := memory.NewSeeded()
	root := newTestRoot(t, repo)

	require.NoError(t, root.execute("--database-url", "postgres://test",
		"user", "set-password", memory.DemoOwnerEmail))

	user, err := repo.GetUserByEmail(context.Background(), memory.DemoOwnerEmail)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Env#Senha2026")))
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	root := newTestRoot(t, memory.New())

	err := root.execute("--database-url", "postgres://test", "migrate", "sideways")
	require.Error(t, err)
}
