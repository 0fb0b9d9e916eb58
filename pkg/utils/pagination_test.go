package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		page, limit := ParsePagination(c)
		return c.JSON(fiber.Map{"page": page, "limit": limit})
	})

	cases := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, 20},
		{"explicit values", "?page=3&limit=50", 3, 50},
		{"negative page falls back", "?page=-1", 1, 20},
		{"zero limit falls back", "?limit=0", 1, 20},
		{"limit is clamped", "?limit=500", 1, 100},
		{"garbage falls back", "?page=abc&limit=xyz", 1, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items"+tc.query, nil)
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			var body struct {
				Page  int `json:"page"`
				Limit int `json:"limit"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed decoding body: %v", err)
			}
			if body.Page != tc.wantPage {
				t.Fatalf("expected page %d, got %d", tc.wantPage, body.Page)
			}
			if body.Limit != tc.wantLimit {
				t.Fatalf("expected limit %d, got %d", tc.wantLimit, body.Limit)
			}
		})
	}
}
