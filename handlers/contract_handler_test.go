package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dispatchcore/bulk-dispatch-service/pkg/response"
	validatorpkg "github.com/dispatchcore/bulk-dispatch-service/pkg/validator"
)

// TestCreateContract_BadJSON verifies that invalid JSON returns 400 Bad Request.
func TestCreateContract_BadJSON(t *testing.T) {
	e := echo.New()
	// Validator is not needed here because Bind fails before Validate is called.
	handler := NewContractHandler(nil)

	reqBody := `{"channelId": "ch-1", "recipients":`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateContract(c); err != nil {
		t.Fatalf("CreateContract returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected Success=false, got true")
	}
	if resp.Error == "" {
		t.Fatalf("expected Error to be non-empty")
	}
}

// TestCreateContract_NoRecipients verifies that an empty recipient list fails
// validation with 422.
func TestCreateContract_NoRecipients(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	// service is nil on purpose; validation must fail before it is called.
	handler := NewContractHandler(nil)

	reqBody := `{"channelId": "ch-1", "name": "promo", "recipients": []}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateContract(c); err != nil {
		t.Fatalf("CreateContract returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

// TestCreateContract_RecipientMissingAddress verifies that dive validation
// catches a bad element inside the recipient list.
func TestCreateContract_RecipientMissingAddress(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	handler := NewContractHandler(nil)

	reqBody := `{"channelId": "ch-1", "name": "promo", "recipients": [{"message": "hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CreateContract(c); err != nil {
		t.Fatalf("CreateContract returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

// TestStartContract_InvalidID verifies that a non-numeric id returns 400.
func TestStartContract_InvalidID(t *testing.T) {
	e := echo.New()
	handler := NewContractHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/abc/start", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := handler.StartContract(c); err != nil {
		t.Fatalf("StartContract returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// TestGetAllContracts_BadPagination verifies that an invalid page parameter
// returns 400 before the service is touched.
func TestGetAllContracts_BadPagination(t *testing.T) {
	e := echo.New()
	handler := NewContractHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts?page=-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.GetAllContracts(c); err != nil {
		t.Fatalf("GetAllContracts returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// TestSendMessage_MissingFields verifies that the one-off send validates its
// payload with 422.
func TestSendMessage_MissingFields(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	handler := NewMessageHandler(nil)

	reqBody := `{"channelId": "ch-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/send", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.SendMessage(c); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}
