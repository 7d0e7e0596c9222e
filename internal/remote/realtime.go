package remote

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// WebsocketNotifier subscribes to the server's change feed over a
// websocket. It implements Notifier.
type WebsocketNotifier struct {
	baseURL string
	token   string
	logger  *log.Logger
}

// NewWebsocketNotifier creates a notifier against the given server base
// URL. If logger is nil, logging is disabled.
func NewWebsocketNotifier(baseURL, token string, logger *log.Logger) *WebsocketNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &WebsocketNotifier{baseURL: baseURL, token: token, logger: logger}
}

// Subscribe implements Notifier. The returned channel receives a signal per
// change notification (coalesced when the consumer lags) and is closed when
// the connection drops or ctx is cancelled. Reconnecting is the caller's
// decision.
func (n *WebsocketNotifier) Subscribe(ctx context.Context, accountID string) (<-chan struct{}, error) {
	wsURL := toWebsocketURL(n.baseURL) + "/v1/events"

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + n.token}},
	})
	if err != nil {
		return nil, err
	}

	notifications := make(chan struct{}, 1)

	go func() {
		defer close(notifications)
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					n.logger.Printf("realtime connection closed: %v", err)
				}
				return
			}

			n.logger.Printf("realtime change: %s", data)

			// One buffered signal is enough; the triggered cycle pulls
			// everything outstanding anyway.
			select {
			case notifications <- struct{}{}:
			default:
			}
		}
	}()

	return notifications, nil
}

func toWebsocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
