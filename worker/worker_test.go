package worker

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"wacast/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema
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
	// sqlite serializes writes; one connection avoids busy errors
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.MigrateDB(db))
	return db
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeGateway scripts gateway outcomes per call. A nil entry in errs means
// success; once errs is exhausted every call succeeds.
type fakeGateway struct {
	mu           sync.Mutex
	errs         []error
	calls        []string
	bodies       []string
	unconfigured bool
	nextID       int
}

func (g *fakeGateway) IsConfigured() bool {
	return !g.unconfigured
}

func (g *fakeGateway) SendText(to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, to)
	g.bodies = append(g.bodies, body)

	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}

	g.nextID++
	return fmt.Sprintf("wamid-%d", g.nextID), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
