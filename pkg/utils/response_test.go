package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type decodedEnvelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination *PageInfo       `json:"pagination"`
}

func callEnvelope(t *testing.T, app *fiber.App, path string) (int, decodedEnvelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var body decodedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding %s response: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestResponseHelpers(t *testing.T) {
	app := fiber.New()
	app.Get("/success", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"id": "123"})
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "invalid input")
	})
	app.Get("/paginated", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"a", "b"}, 2, 20, 45)
	})
	app.Get("/paginated-empty", func(c *fiber.Ctx) error {
		return Paginated(c, []string{}, 1, 20, 0)
	})

	t.Run("Success wraps data with a success flag", func(t *testing.T) {
		status, body := callEnvelope(t, app, "/success")
		if status != fiber.StatusCreated {
			t.Fatalf("expected status %d, got %d", fiber.StatusCreated, status)
		}
		if !body.Success {
			t.Fatal("expected success=true")
		}

		var data map[string]string
		if err := json.Unmarshal(body.Data, &data); err != nil {
			t.Fatalf("failed decoding data: %v", err)
		}
		if data["id"] != "123" {
			t.Fatalf("expected data.id %q, got %q", "123", data["id"])
		}
	})

	t.Run("Error carries the message and no data", func(t *testing.T) {
		status, body := callEnvelope(t, app, "/error")
		if status != fiber.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", fiber.StatusBadRequest, status)
		}
		if body.Success {
			t.Fatal("expected success=false")
		}
		if body.Error != "invalid input" {
			t.Fatalf("expected error %q, got %q", "invalid input", body.Error)
		}
		if len(body.Data) != 0 {
			t.Fatalf("expected no data, got %s", body.Data)
		}
	})

	t.Run("Paginated computes page metadata", func(t *testing.T) {
		status, body := callEnvelope(t, app, "/paginated")
		if status != fiber.StatusOK {
			t.Fatalf("expected status %d, got %d", fiber.StatusOK, status)
		}
		if body.Pagination == nil {
			t.Fatal("expected pagination metadata")
		}

		var items []string
		if err := json.Unmarshal(body.Data, &items); err != nil {
			t.Fatalf("failed decoding data: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}

		p := body.Pagination
		if p.Page != 2 || p.Limit != 20 || p.Total != 45 || p.TotalPages != 3 {
			t.Fatalf("unexpected pagination %+v", p)
		}
	})

	t.Run("Paginated reports zero pages for an empty result", func(t *testing.T) {
		_, body := callEnvelope(t, app, "/paginated-empty")
		if body.Pagination == nil {
			t.Fatal("expected pagination metadata")
		}
		if body.Pagination.TotalPages != 0 {
			t.Fatalf("expected totalPages=0, got %d", body.Pagination.TotalPages)
		}
	})
}
