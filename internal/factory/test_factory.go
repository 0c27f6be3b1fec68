package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameserver/internal/dependencies/mocks"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/auth"
	"github.com/mcoot/gameserver/internal/storage/memory"
	"github.com/mcoot/gameserver/internal/sweeper"
	"github.com/mcoot/gameserver/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	cfg := Config{
		AuthConfig: auth.Config{
			BcryptCost:      bcrypt.MinCost,
			SessionIDLength: auth.DefaultConfig().SessionIDLength,
		},
		SweeperConfig: sweeper.DefaultConfig(),
	}
	app := newWithDependencies(store, mockClock, mockRandom, cfg, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}

// Connect opens a fake connection on the dispatcher
func (t *TestApp) Connect() (*registry.Client, *testutil.FakeConn) {
	conn := testutil.NewFakeConn()
	return t.Dispatcher.Connect(conn), conn
}
