package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorUsesHTTPStatusAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	Error(c, CodeConflict, "order already paid")

	if w.Code != http.StatusConflict {
		t.Fatalf("status want 409 got %d", w.Code)
	}
	var resp struct {
		StatusCode int               `json:"status_code"`
		Msg        string            `json:"msg"`
		Data       map[string]string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != http.StatusConflict || resp.Msg != "order already paid" || resp.Data["request_id"] != "req-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestWrapErrorClampsCode(t *testing.T) {
	appErr := WrapError(0, "boom", errors.New("inner"))
	if appErr.Code != CodeInternal {
		t.Fatalf("expected internal code, got %d", appErr.Code)
	}
	if appErr.Error() != "boom: inner" || !errors.Is(appErr, appErr.Err) {
		t.Fatalf("unexpected error text: %s", appErr.Error())
	}
}
