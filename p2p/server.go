package p2p

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ListenAndServe accepts inbound peer connections on addr, upgrading each to
// a websocket and handing the resulting Peer to onConnect. It blocks until
// the HTTP server returns an error (e.g. listener closed).
func ListenAndServe(addr string, onConnect func(*Peer)) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("p2p: websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		peer := NewPeer(NewWebsocketTransport(conn))
		onConnect(peer)
	})
	return http.ListenAndServe(addr, mux)
}

// Dial opens an outbound connection to a peer at a ws(s):// URL.
func Dial(url string) (*Peer, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return NewPeer(NewWebsocketTransport(conn)), nil
}
