package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gameserver/internal/api"
	"github.com/mcoot/gameserver/internal/factory"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/transport/ws"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(projectRoot, "bin", "gsctl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/gsctl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

// as returns a runner sharing the binary but keeping its own session
func (r *cliRunner) as(t *testing.T) *cliRunner {
	return &cliRunner{
		binaryPath: r.binaryPath,
		serverURL:  r.serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) command(args ...string) *exec.Cmd {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = append(os.Environ(), "GSCTL_TOKEN=")
	return cmd
}

func (r *cliRunner) run(args ...string) (string, error) {
	output, err := r.command(args...).CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.App
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	app, err := factory.New(factory.Config{
		Logger:      logger,
		StorageType: factory.StorageTypeMemory,
	})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		ServerName:  "e2e",
		StorageType: factory.StorageTypeMemory,
		Storage:     app.Storage,
		Dispatcher:  app.Dispatcher,
		WebSocket:   ws.NewHandler(app.Dispatcher, ws.Config{ServerName: "e2e"}, app.Metrics, logger),
		Metrics:     app.Metrics,
	})

	server := api.NewServer(router, api.ServerConfig{ShutdownTimeout: 5 * time.Second}, logger)
	server.RegisterOnShutdown(func() {
		app.Connections.DisconnectAll(registry.CloseGoingAway, "Server shutting down")
	})

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := "http://" + listener.Addr().String()
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			_ = server.Shutdown(context.Background())
			_ = app.Close()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

func decode(t *testing.T, output string) protocol.Envelope {
	t.Helper()

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal([]byte(output), &env), "output: %s", output)
	return env
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	var resp struct {
		Status string `json:"status"`
		Server string `json:"server"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "e2e", resp.Server)
}

func TestCLI_SessionCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	// Create guest
	output, err := cli.run("guest", "--name", "Alice")
	require.NoError(t, err, "output: %s", output)
	auth := decode(t, output)
	require.NotNil(t, auth.Success)
	assert.True(t, *auth.Success)
	assert.NotEmpty(t, auth.SessionID)

	// The saved token resumes the session in a new process
	output, err = cli.run("resume")
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, "Alice", decode(t, output).Value)

	// Signing out forgets it
	output, err = cli.run("signout")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("resume")
	assert.Error(t, err)
	assert.Contains(t, output, "not signed in")
}

func TestCLI_RoomFlow(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	alice := newCLIRunner(t, ts.addr)
	bob := alice.as(t)

	output, err := alice.run("guest", "--name", "Alice")
	require.NoError(t, err, "output: %s", output)
	output, err = bob.run("guest", "--name", "Bob")
	require.NoError(t, err, "output: %s", output)

	// Alice opens a room
	output, err = alice.run("create")
	require.NoError(t, err, "output: %s", output)
	gameID := decode(t, output).GameID
	require.NotEmpty(t, gameID)
	t.Logf("Created room: %s", gameID)

	// Bob enters it
	output, err = bob.run("enter", gameID)
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, gameID, decode(t, output).GameID)

	// The host was recorded when the room opened
	output, err = bob.run("send", "get_data", "--value", "host")
	require.NoError(t, err, "output: %s", output)
	assert.JSONEq(t, `"Alice"`, string(decode(t, output).Data))

	// Alice watches while Bob broadcasts
	var watchOut bytes.Buffer
	watch := alice.command("watch", "--count", "1", "--duration", "10s")
	watch.Stdout = &watchOut
	watch.Stderr = &watchOut
	require.NoError(t, watch.Start())

	require.Eventually(t, func() bool {
		return ts.app.Dispatcher.Stats().Connections == 1 &&
			len(ts.app.Rooms.MembersOf(model.RoomID(gameID))) == 1
	}, 5*time.Second, 20*time.Millisecond, "watcher did not rejoin the room")

	output, err = bob.run("send", "broadcast", "--data", `{"move":"e4"}`)
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, float64(1), decode(t, output).Value)

	require.NoError(t, watch.Wait(), "output: %s", watchOut.String())
	relayed := decode(t, strings.TrimSpace(watchOut.String()))
	assert.Equal(t, "broadcast", relayed.Action)
	assert.Equal(t, "Bob", relayed.Username)
	assert.JSONEq(t, `{"move":"e4"}`, string(relayed.Data))

	// Bob leaves
	output, err = bob.run("leave")
	require.NoError(t, err, "output: %s", output)

	output, err = bob.run("value", "game_id")
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, "", decode(t, output).Value)
}

func TestCLI_ErrorHandling(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	// Room commands need a session
	output, err := cli.run("create")
	assert.Error(t, err)
	assert.Contains(t, output, "not signed in")

	// Bad credentials
	output, err = cli.run("login", "--username", "nobody", "--password", "secret")
	assert.Error(t, err)
	assert.Contains(t, output, "LOGIN_ERROR")

	// Unknown room
	_, err = cli.run("guest", "--name", "Alice")
	require.NoError(t, err)

	output, err = cli.run("enter", "NOSUCH")
	assert.Error(t, err)
	assert.Contains(t, output, "GAME_NOT_FOUND")
}
