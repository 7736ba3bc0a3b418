package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wireFrame mirrors the JSON shape bridge.outputMessage writes; duplicated
// here since that type is unexported and this test only cares about the
// wire bytes gorillaConn.WriteJSON produces, not the bridge package.
type wireFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// TestGorillaConnWriteJSONConcurrentSafe drives real concurrent writers
// against a real *websocket.Conn (not bridge_test.go's channel-backed
// fakeConn, which can't exercise gorilla's single-writer contract) and
// checks every frame arrives intact. Without writeMu serializing WriteJSON,
// `go test -race` flags the concurrent writes and the client can receive a
// corrupted or truncated frame.
func TestGorillaConnWriteJSONConcurrentSafe(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	var g *gorillaConn
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		g = newGorillaConn(conn)
		close(ready)
		<-r.Context().Done()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer client.Close()

	<-ready

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = g.WriteJSON(wireFrame{Type: "output", Data: fmt.Sprintf("chunk-%d", i)})
		}(i)
	}
	wg.Wait()

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		var msg wireFrame
		if err := client.ReadJSON(&msg); err != nil {
			t.Fatalf("client ReadJSON() at message %d: %v", i, err)
		}
		if msg.Type != "output" {
			t.Fatalf("message %d: type = %q, want \"output\"", i, msg.Type)
		}
		seen[msg.Data] = true
	}
	if len(seen) != n {
		t.Fatalf("received %d distinct frames, want %d (frames were merged/corrupted)", len(seen), n)
	}
}
