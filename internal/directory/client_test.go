package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrade/chatcore/internal/auth"
	"github.com/freshtrade/chatcore/internal/domain"
)

func newFakeAPI(t *testing.T, rooms string, history string) *httptest.Server {
	t.Helper()

	e := echo.New()
	e.GET("/api/chat/rooms", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer tok" {
			return c.NoContent(http.StatusUnauthorized)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(rooms))
	})
	e.GET("/api/chat/rooms/:id/messages", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer tok" {
			return c.NoContent(http.StatusUnauthorized)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(history))
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	return NewClient(baseURL, auth.StaticSource{Token: token, UserID: 1}, 2*time.Second)
}

func TestClient_ListRoomsForUser(t *testing.T) {
	rooms := `[
		{"chattingRoomPk": 7, "message": "안녕하세요", "messageAt": "2026-08-29T10:00:00", "chatWith": 2, "chatWithNickname": "farmer-kim", "readYn": "N", "postPk": 30, "memberPk": 2},
		{"chattingRoomPk": 9, "message": "ok", "messageAt": "2026-08-30T09:30:00", "chatWith": 3, "chatWithNickname": "grower-lee", "readYn": "Y", "postPk": 31, "memberPk": 1}
	]`
	srv := newFakeAPI(t, rooms, `[]`)
	client := newTestClient(t, srv.URL, "tok")

	got, err := client.ListRoomsForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recently active first.
	assert.Equal(t, int64(9), got[0].RoomID)
	assert.Equal(t, int64(7), got[1].RoomID)

	assert.Equal(t, "farmer-kim", got[1].CounterpartName)
	assert.Equal(t, int64(30), got[1].ListingID)
	assert.True(t, got[1].Unread, `readYn "N" maps to unread`)
	assert.False(t, got[0].Unread)
}

func TestClient_TiedTimestampsOrderByRoomID(t *testing.T) {
	rooms := `[
		{"chattingRoomPk": 9, "message": "b", "messageAt": "2026-08-30T09:30:00", "chatWith": 3, "chatWithNickname": "b", "readYn": "Y", "postPk": 31, "memberPk": 1},
		{"chattingRoomPk": 7, "message": "a", "messageAt": "2026-08-30T09:30:00", "chatWith": 2, "chatWithNickname": "a", "readYn": "Y", "postPk": 30, "memberPk": 2}
	]`
	srv := newFakeAPI(t, rooms, `[]`)
	client := newTestClient(t, srv.URL, "tok")

	got, err := client.ListRoomsForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].RoomID)
	assert.Equal(t, int64(9), got[1].RoomID)
}

func TestClient_NoRoomsIsEmptyNotError(t *testing.T) {
	srv := newFakeAPI(t, `[]`, `[]`)
	client := newTestClient(t, srv.URL, "tok")

	got, err := client.ListRoomsForUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_MissingTokenFailsWithoutRequest(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0", "")

	_, err := client.ListRoomsForUser(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
}

func TestClient_RejectedTokenMapsToAuthError(t *testing.T) {
	srv := newFakeAPI(t, `[]`, `[]`)
	client := newTestClient(t, srv.URL, "stale-token")

	_, err := client.ListRoomsForUser(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAuthMissing)
}

func TestClient_ServerErrorMapsToFetchFailed(t *testing.T) {
	e := echo.New()
	e.GET("/api/chat/rooms", func(c echo.Context) error {
		return c.NoContent(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, "tok")
	_, err := client.ListRoomsForUser(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
}

func TestClient_RoomHistoryIsOrdered(t *testing.T) {
	history := `[
		{"chattingRoomPk": 7, "memberPk": 1, "message": "later", "messageAt": "2026-08-30T09:02:00"},
		{"chattingRoomPk": 7, "memberPk": 2, "message": "earlier", "messageAt": "2026-08-30T09:01:00"}
	]`
	srv := newFakeAPI(t, `[]`, history)
	client := newTestClient(t, srv.URL, "tok")

	got, err := client.RoomHistory(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "earlier", got[0].Body)
	assert.Equal(t, "later", got[1].Body)
	assert.Equal(t, domain.DeliveryDelivered, got[0].State)
}

func TestClient_ListingScopedRooms(t *testing.T) {
	e := echo.New()
	var gotQuery string
	e.GET("/api/chat/rooms", func(c echo.Context) error {
		gotQuery = c.QueryString()
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(`[]`))
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, "tok")
	_, err := client.ListRoomsForListing(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "postPk=30", gotQuery)
}
