package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFromRequest(t *testing.T) {
	cases := []struct {
		query  string
		page   int
		limit  int
		offset int
	}{
		{"", 1, DefaultLimit, 0},
		{"?page=3&limit=10", 3, 10, 20},
		{"?page=0&limit=-5", 1, DefaultLimit, 0},
		{"?page=x&limit=1000", 1, MaxLimit, 0},
	}
	for _, tc := range cases {
		var got Pagination
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error {
			got = ParseFromRequest(c)
			return nil
		})
		_, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.page, got.Page, tc.query)
		assert.Equal(t, tc.limit, got.Limit, tc.query)
		assert.Equal(t, tc.offset, got.Offset, tc.query)
	}
}

func TestResponse_TotalPages(t *testing.T) {
	out := Response(Pagination{Page: 1, Limit: 10, Total: 21}, []int{})
	meta := out["meta"].(fiber.Map)
	assert.EqualValues(t, 3, meta["total_pages"])
}
