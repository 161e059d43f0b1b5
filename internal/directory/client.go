package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/freshtrade/chatcore/internal/auth"
	"github.com/freshtrade/chatcore/internal/domain"
)

// Client fetches the room directory and room history from the REST API.
// It keeps no cache beyond the caller's snapshot; a caller that needs
// freshness re-invokes the listing call.
type Client struct {
	baseURL string
	http    *http.Client
	auth    auth.Source
}

// NewClient creates a directory client for the given API base URL.
func NewClient(baseURL string, authSource auth.Source, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		auth:    authSource,
	}
}

// roomItem is the wire shape of one directory row.
type roomItem struct {
	ChattingRoomPk   int64    `json:"chattingRoomPk"`
	Message          string   `json:"message"`
	MessageAt        wireTime `json:"messageAt"`
	ChatWith         int64    `json:"chatWith"`
	ChatWithNickname string   `json:"chatWithNickname"`
	ReadYn           string   `json:"readYn"`
	PostPk           int64    `json:"postPk"`
	MemberPk         int64    `json:"memberPk"`
}

// historyItem is the wire shape of one archived message.
type historyItem struct {
	ChattingRoomPk int64    `json:"chattingRoomPk"`
	MemberPk       int64    `json:"memberPk"`
	Message        string   `json:"message"`
	MessageAt      wireTime `json:"messageAt"`
}

// wireTime tolerates both RFC 3339 timestamps and the zoneless form the
// API emits.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		parsed, err = time.Parse("2006-01-02T15:04:05", raw)
		if err != nil {
			return fmt.Errorf("unrecognized timestamp %q", raw)
		}
	}
	t.Time = parsed
	return nil
}

// ListRoomsForUser returns the current user's rooms, most recently
// active first. A user with no rooms gets an empty slice, not an error.
func (c *Client) ListRoomsForUser(ctx context.Context, userID int64) ([]domain.ChatRoomSummary, error) {
	query := url.Values{}
	query.Set("memberPk", strconv.FormatInt(userID, 10))
	return c.listRooms(ctx, query)
}

// ListRoomsForListing returns all rooms attached to one listing, used by
// a seller to see every buyer chatting about the item.
func (c *Client) ListRoomsForListing(ctx context.Context, listingID int64) ([]domain.ChatRoomSummary, error) {
	query := url.Values{}
	query.Set("postPk", strconv.FormatInt(listingID, 10))
	return c.listRooms(ctx, query)
}

func (c *Client) listRooms(ctx context.Context, query url.Values) ([]domain.ChatRoomSummary, error) {
	var items []roomItem
	if err := c.get(ctx, "/api/chat/rooms", query, &items); err != nil {
		return nil, err
	}

	rooms := make([]domain.ChatRoomSummary, 0, len(items))
	for _, item := range items {
		rooms = append(rooms, domain.ChatRoomSummary{
			RoomID:          item.ChattingRoomPk,
			CounterpartID:   item.ChatWith,
			CounterpartName: item.ChatWithNickname,
			ListingID:       item.PostPk,
			OwnerID:         item.MemberPk,
			LastMessage:     item.Message,
			LastMessageAt:   item.MessageAt.Time,
			Unread:          item.ReadYn == "N",
		})
	}

	// Most recently active first; ties broken by room id for a
	// deterministic order.
	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].LastMessageAt.Equal(rooms[j].LastMessageAt) {
			return rooms[i].LastMessageAt.After(rooms[j].LastMessageAt)
		}
		return rooms[i].RoomID < rooms[j].RoomID
	})
	return rooms, nil
}

// RoomHistory returns the archived messages of one room in SentAt order.
func (c *Client) RoomHistory(ctx context.Context, roomID int64) ([]domain.ChatMessage, error) {
	path := fmt.Sprintf("/api/chat/rooms/%d/messages", roomID)
	var items []historyItem
	if err := c.get(ctx, path, nil, &items); err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(items))
	for _, item := range items {
		messages = append(messages, domain.ChatMessage{
			RoomID:   item.ChattingRoomPk,
			SenderID: item.MemberPk,
			Body:     item.Message,
			SentAt:   item.MessageAt.Time,
			State:    domain.DeliveryDelivered,
		})
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, ok := c.auth.AccessToken()
	if !ok {
		return domain.ErrAuthMissing
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", domain.ErrFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: server rejected token", domain.ErrAuthMissing)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d from %s", domain.ErrFetchFailed, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrFetchFailed, err)
	}
	return nil
}
