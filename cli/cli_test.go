// ABOUTME: Shared fixtures for CLI command tests
// ABOUTME: Provides a fake scheduling feed, an in-memory calendar and a temp config writer
package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/doctosync/config"
	"github.com/harperreed/doctosync/models"
	"github.com/harperreed/doctosync/sync"
)

const feedBody = `{"data": [
	{"start_date": "2025-01-06T09:00:00+01:00", "end_date": "2025-01-06T09:30:00+01:00", "new_patient": false, "status": "confirmed"},
	{"start_date": "2025-01-06T10:00:00+01:00", "end_date": "2025-01-06T10:30:00+01:00", "new_patient": true, "status": "confirmed"}
]}`

// newFeed serves feedBody, or the given status code when it is not 200.
func newFeed(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	t.Cleanup(server.Close)
	return server
}

type memoryStore struct {
	events map[string]models.DestinationEvent
	nextID int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: make(map[string]models.DestinationEvent)}
}

func (m *memoryStore) ListEvents(context.Context, time.Time, time.Time) ([]models.DestinationEvent, error) {
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.DestinationEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.events[id])
	}
	return out, nil
}

func (m *memoryStore) CreateEvent(_ context.Context, p models.EventPayload) (string, error) {
	m.nextID++
	id := fmt.Sprintf("ev-%d", m.nextID)
	m.events[id] = models.DestinationEvent{
		ID:          id,
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Reminders:   p.Reminders,
	}
	return id, nil
}

func (m *memoryStore) UpdateEvent(_ context.Context, id string, p models.EventPayload) error {
	ev := m.events[id]
	ev.Summary, ev.Description, ev.Location, ev.Reminders = p.Summary, p.Description, p.Location, p.Reminders
	m.events[id] = ev
	return nil
}

func (m *memoryStore) DeleteEvent(_ context.Context, id string) error {
	delete(m.events, id)
	return nil
}

// testEnv is a config file in a temp dir plus Globals wired to fakes.
type testEnv struct {
	dir   string
	out   *bytes.Buffer
	store *memoryStore
	g     *Globals
}

func newTestEnv(t *testing.T, feedURL string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
api:
  url: %s/appointments
calendar:
  id: primary
  timezone: Europe/Paris
  token_path: token.json
config:
  notification: 30
  first_of_day: 60
  localisation: Clinic A
sync:
  db_path: history.db
`, feedURL)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2025, time.January, 8, 10, 0, 0, 0, paris)

	env := &testEnv{dir: dir, out: &bytes.Buffer{}, store: newMemoryStore()}
	env.g = &Globals{
		ConfigPath: configPath,
		Out:        env.out,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
		NewCalendar: func(context.Context, *config.Config, zerolog.Logger) (sync.EventStore, error) {
			return env.store, nil
		},
	}
	return env
}
