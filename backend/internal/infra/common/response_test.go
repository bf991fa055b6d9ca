package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSuccessWithListMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)

	Success(ctx, http.StatusOK, gin.H{"hello": "welt"}, MetaList{Total: 3, Matched: 1, Version: 7, SortedBy: "rating"})

	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Meta    MetaList       `json:"meta"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !body.Success || body.Data["hello"] != "welt" || body.Meta.Matched != 1 || body.Meta.Version != 7 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestFailAbortsWithEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)

	Fail(ctx, http.StatusConflict, ErrConflict, "Du hast bereits eine Löschanfrage für diesen Prompt gestellt.", nil)

	if recorder.Code != http.StatusConflict || !ctx.IsAborted() {
		t.Fatalf("expected aborted 409, got %d", recorder.Code)
	}
	var body Response
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Success || body.Error == nil || body.Error.Code != ErrConflict || body.Error.Details != nil {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
}

func TestFailWithErrorFallsBackToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)

	FailWithError(ctx, http.StatusInternalServerError, errors.New("boom"), "")

	var body Response
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrInternal || body.Error.Message != "boom" {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
}
