package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/attendance/internal/types"
)

type recordingBroadcaster struct {
	got []Notification
}

func (b *recordingBroadcaster) Broadcast(n Notification) {
	b.got = append(b.got, n)
}

func newPublisher(t *testing.T) *Publisher {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewPublisher(t.TempDir(), logger)
}

func sampleNotification(at time.Time) Notification {
	return Notification{
		Type:   TypeFileImport,
		Source: "file",
		Units: []UnitResult{{
			Label:  "week33.xlsx",
			Date:   "2024-08-16",
			Result: types.SyncResult{Created: 2, ErrorDetails: []string{}},
		}},
		Result:    types.SyncResult{Created: 2, ErrorDetails: []string{}},
		Timestamp: at,
	}
}

func TestPublisher_PublishAndLatest(t *testing.T) {
	p := newPublisher(t)
	b := &recordingBroadcaster{}
	p.SetBroadcaster(b)

	n, err := p.Latest(time.Time{})
	require.NoError(t, err)
	require.Nil(t, n, "no notification before first publish")

	at := time.Date(2024, 8, 16, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), sampleNotification(at)))
	require.Len(t, b.got, 1)

	_, err = os.Stat(p.Path() + ".tmp")
	require.True(t, os.IsNotExist(err))

	n, err = p.Latest(time.Time{})
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 2, n.Result.Created)

	n, err = p.Latest(at)
	require.NoError(t, err)
	require.Nil(t, n, "notification at lastCheck is not new")

	n, err = p.Latest(at.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, n)
}

func TestPublisher_DefaultsTimestamp(t *testing.T) {
	p := newPublisher(t)
	require.NoError(t, p.Publish(context.Background(), Notification{Type: TypeRemoteImport, Source: "remote"}))

	n, err := p.Latest(time.Time{})
	require.NoError(t, err)
	require.False(t, n.Timestamp.IsZero())
	require.NotNil(t, n.Units)
}

func TestHandleNotifications(t *testing.T) {
	p := newPublisher(t)
	logger, _ := test.NewNullLogger()
	s := NewServer(p, &Config{Port: 0, Logger: logger})
	router := s.Router()

	get := func(query string) (int, notificationsResponse) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications"+query, nil))
		var resp notificationsResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return rec.Code, resp
	}

	code, resp := get("")
	require.Equal(t, http.StatusOK, code)
	require.False(t, resp.HasUpdates)
	require.Empty(t, resp.Notifications)

	at := time.Date(2024, 8, 16, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), sampleNotification(at)))

	_, resp = get("?lastCheck=2024-08-16T09:00:00Z")
	require.True(t, resp.HasUpdates)
	require.Len(t, resp.Notifications, 1)

	_, resp = get("?lastCheck=2024-08-16T11:00:00Z")
	require.False(t, resp.HasUpdates)

	code, _ = get("?lastCheck=yesterday")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHandleHealth(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewServer(newPublisher(t), &Config{Logger: logger})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_BroadcastsPublishedNotification(t *testing.T) {
	p := newPublisher(t)
	logger, _ := test.NewNullLogger()
	s := NewServer(p, &Config{Port: 0, Logger: logger})
	require.NoError(t, s.Start())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Publish(ctx, sampleNotification(time.Now())))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var n Notification
	require.NoError(t, json.Unmarshal(data, &n))
	require.Equal(t, TypeFileImport, n.Type)
	require.Equal(t, 2, n.Result.Created)
}

func TestParseLastCheck(t *testing.T) {
	got, err := parseLastCheck("1723802400000")
	require.NoError(t, err)
	require.Equal(t, time.UnixMilli(1723802400000), got)

	got, err = parseLastCheck("")
	require.NoError(t, err)
	require.True(t, got.IsZero())
}
