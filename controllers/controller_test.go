package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"wacast/config"
	"wacast/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.MigrateDB(db))
	return db
}

func testLog() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// withTestUser injects an authenticated user the way the JWT middleware does
func withTestUser(db *gorm.DB, t *testing.T) (fiber.Handler, *models.User) {
	t.Helper()

	user := &models.User{Email: "op@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	return func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	}, user
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

// okGateway accepts every send
type okGateway struct {
	mu     sync.Mutex
	calls  int
	nextID int
}

func (g *okGateway) IsConfigured() bool { return true }

func (g *okGateway) SendText(to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.nextID++
	return fmt.Sprintf("wamid-%d", g.nextID), nil
}

func (g *okGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// offGateway reports itself unconfigured
type offGateway struct{}

func (offGateway) IsConfigured() bool { return false }

func (offGateway) SendText(to, body string) (string, error) {
	return "", fmt.Errorf("gateway not configured")
}

// downGateway fails every send
type downGateway struct{}

func (downGateway) IsConfigured() bool { return true }

func (downGateway) SendText(to, body string) (string, error) {
	return "", fmt.Errorf("connection refused")
}
