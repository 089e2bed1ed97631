package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/engine"
	"github.com/cinevideo/api/internal/handler"
	"github.com/cinevideo/api/internal/middleware"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/queue"
	"github.com/cinevideo/api/internal/server"
	"github.com/cinevideo/api/internal/service"
	"github.com/cinevideo/api/internal/store"
	ws "github.com/cinevideo/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

type testApp struct {
	app    *fiber.App
	queue  *queue.Queue
	secret string
}

// setupApp wires the same components as cmd/server with in-process
// infrastructure: memory store, local dispatcher and an instant simulated engine.
func setupApp(t *testing.T, jwtSecret string) *testApp {
	t.Helper()

	log := zerolog.Nop()
	rendersDir := t.TempDir()
	assetsDir := t.TempDir()

	renderer := engine.NewSimulated(0)
	hub := ws.NewHub(log)
	q := queue.New(queue.Config{
		RendersDir:    rendersDir,
		PublicURL:     "http://localhost:8000",
		CompositionID: model.CompositionCine,
		Codec:         "h264",
	}, store.NewMemory(), queue.NewLocalDispatcher(), renderer,
		queue.WithLogger(log), queue.WithNotifier(hub))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = hub.Run(ctx); done <- struct{}{} }()
	go func() { _ = q.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	svc := service.NewRenderService(q, model.NewValidator(), log)
	app := server.New(server.Options{
		Render:     handler.NewRenderHandler(svc, log),
		Health:     handler.NewHealthHandler("Remotion Pro Video Service", renderer.Name()),
		Assets:     handler.NewAssetHandler(service.NewAssetService(assetsDir, "http://localhost:8000"), log),
		Hub:        hub,
		Auth:       middleware.NewAuthMiddleware(jwtSecret).Authenticate(),
		RateLimit:  middleware.NewRateLimiter(nil).RenderLimit(10000),
		RendersDir: rendersDir,
		AssetsDir:  assetsDir,
		Logger:     log,
	})

	return &testApp{app: app, queue: q, secret: jwtSecret}
}

func generateToken(t *testing.T, secret string) string {
	t.Helper()
	claims := middleware.UserClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cinevideo-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, ta *testApp, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, ta.secret),
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// waitForStatus polls GET /status/:jobId until the job reports want.
func waitForStatus(t *testing.T, ta *testApp, jobID, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := doRequest(ta.app, http.MethodGet, "/status/"+jobID, "", nil)
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		result := parseJSON(t, resp)
		if result["status"] == want {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %q, last: %v", jobID, want, result)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
