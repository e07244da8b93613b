package ledgerclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const closeWait = time.Second

// pushMessage is a frame line sent by the push endpoint
type pushMessage struct {
	Type   string                `json:"type"`
	Change *domain.ProfileChange `json:"change,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type subscription struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
	err  error
}

// Unsubscribe closes the push connection and waits for the reader to exit.
// Later calls return the first result.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		s.err = s.conn.Close()
		<-s.done
	})
	return s.err
}

// SubscribeToProfileChanges opens the push channel of the session owner and
// calls onChange for every profile change until ctx is done or the
// subscription is released. onChange runs on the reader goroutine.
func (c *Client) SubscribeToProfileChanges(ctx context.Context, session domain.Session, onChange func(domain.ProfileChange)) (domain.Subscription, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.Token)

	dialer := websocket.Dialer{HandshakeTimeout: c.http.Timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("failed to subscribe: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &subscription{conn: conn, done: make(chan struct{})}
	go c.readChanges(sub, session.UserID, onChange)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	c.logger.Info("subscribed to profile changes", "user_id", session.UserID)
	return sub, nil
}

func (c *Client) readChanges(sub *subscription, userID string, onChange func(domain.ProfileChange)) {
	defer close(sub.done)

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("profile change stream ended", "user_id", userID, "error", err)
			}
			return
		}

		// Queued messages share a frame, one per line
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var msg pushMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				c.logger.Warn("invalid push message", "user_id", userID, "error", err)
				continue
			}
			if msg.Type == "profile_change" && msg.Change != nil {
				onChange(*msg.Change)
			}
		}
	}
}
