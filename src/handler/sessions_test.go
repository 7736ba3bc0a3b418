package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terma-io/terma/src/registry/hermesclient"
	"github.com/terma-io/terma/src/terminal"
)

func newTestSessionsHandler(t *testing.T) (*SessionsHandler, *terminal.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := terminal.NewRegistry(time.Hour, time.Hour)
	reg.Start()
	t.Cleanup(reg.Stop)

	hermes := hermesclient.New(hermesclient.DefaultConfig())
	return NewSessionsHandler(reg, hermes), reg
}

func performRequest(h gin.HandlerFunc, method, path string, body []byte, params gin.Params) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	c.Params = params

	h(c)
	return w
}

func TestHandleCreateDefaultsShell(t *testing.T) {
	h, reg := newTestSessionsHandler(t)
	defer func() {
		for _, info := range reg.List() {
			reg.Close(info.ID)
		}
	}()

	w := performRequest(h.HandleCreate, http.MethodPost, "/api/sessions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CreateSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a non-empty session id")
	}
}

func TestHandleCreateRejectsMalformedJSON(t *testing.T) {
	h, _ := newTestSessionsHandler(t)
	w := performRequest(h.HandleCreate, http.MethodPost, "/api/sessions", []byte("{not json"), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleGetUnknownSessionIs404(t *testing.T) {
	h, _ := newTestSessionsHandler(t)
	w := performRequest(h.HandleGet, http.MethodGet, "/api/sessions/does-not-exist", nil,
		gin.Params{{Key: "id", Value: "does-not-exist"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleWriteAndReadRoundTrip(t *testing.T) {
	h, reg := newTestSessionsHandler(t)

	id, err := reg.Create("", terminal.CreateOptions{ShellCommand: "/bin/sh"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer reg.Close(id)

	writeBody, _ := json.Marshal(WriteRequest{Data: "echo roundtrip\n"})
	w := performRequest(h.HandleWrite, http.MethodPost, "/api/sessions/"+id+"/write", writeBody,
		gin.Params{{Key: "id", Value: id}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		readW := performRequest(h.HandleRead, http.MethodGet, "/api/sessions/"+id+"/read?size=4096", nil,
			gin.Params{{Key: "id", Value: id}})
		var resp ReadResponse
		json.Unmarshal(readW.Body.Bytes(), &resp)
		if bytes.Contains([]byte(resp.Data), []byte("roundtrip")) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected echoed output to appear in the read buffer")
}

func TestHandleReadRejectsNegativeSize(t *testing.T) {
	h, reg := newTestSessionsHandler(t)
	id, err := reg.Create("", terminal.CreateOptions{ShellCommand: "/bin/sh"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer reg.Close(id)

	w := performRequest(h.HandleRead, http.MethodGet, "/api/sessions/"+id+"/read?size=-1", nil,
		gin.Params{{Key: "id", Value: id}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleCloseUnknownSessionIs404(t *testing.T) {
	h, _ := newTestSessionsHandler(t)
	w := performRequest(h.HandleClose, http.MethodDelete, "/api/sessions/does-not-exist", nil,
		gin.Params{{Key: "id", Value: "does-not-exist"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
