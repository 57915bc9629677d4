package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", "181")
}

func TestCategoryProductsDecodesNestedPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/categories/12/products", r.URL.Path)
		require.Equal(t, "181", r.URL.Query().Get("tenant"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{
			"success": true,
			"data": {"current_page": 2, "last_page": 4, "data": [
				{"id": 7, "name": "Linen Shirt", "brands": {"id": 3, "name": "Aarong"},
				 "retails_price": "1,200", "discount": 10, "discount_type": "percentage",
				 "image_path": "a.jpg", "product_variants": [{"name": "M", "quantity": "3"}],
				 "review_summary": {"average_rating": 4.5, "total_reviews": 12}}
			]}
		}`)
	})

	page, err := client.CategoryProducts(context.Background(), "12", 2)
	require.NoError(t, err)
	require.Equal(t, 4, page.LastPage)
	require.Len(t, page.Records, 1)

	rec := page.Records[0]
	require.Equal(t, ID("7"), rec.ID)
	require.Equal(t, "Aarong", rec.BrandLabel())
	require.Equal(t, 1200.0, rec.RetailsPrice.Float())
	require.Equal(t, 3, rec.AllVariants()[0].Quantity.Int())
	require.Equal(t, 4.5, rec.ReviewSummary.AverageRating.Float())
}

func TestListingReadsTopLevelPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/brands/9/products", r.URL.Path)
		_, _ = io.WriteString(w, `{"success": true, "data": [{"id": "a1", "name": "Tee", "brand_name": "Yellow"}], "pagination": {"last_page": 3}}`)
	})

	page, err := client.BrandProducts(context.Background(), "9", 1)
	require.NoError(t, err)
	require.Equal(t, 3, page.LastPage)
	require.Equal(t, "Yellow", page.Records[0].BrandLabel())
}

func TestNewArrivalsHasNoServerPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/new-arrivals", r.URL.Path)
		require.Equal(t, "30", r.URL.Query().Get("days"))
		_, _ = io.WriteString(w, `{"success": true, "data": [{"id": 1}, {"id": 2}], "pagination": {"last_page": 9}}`)
	})

	page, err := client.NewArrivals(context.Background(), 30)
	require.NoError(t, err)
	require.Zero(t, page.LastPage)
	require.Len(t, page.Records, 2)
}

func TestFilterProductsPostsAttributeValues(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/products/filter", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []any{"11", "12"}, body["attribute_value_ids"])
		require.Equal(t, "4", body["category_id"])
		require.Equal(t, "181", body["tenant"])
		require.EqualValues(t, 1, body["page"])
		_, _ = io.WriteString(w, `{"success": true, "data": {"data": [{"id": 5}], "last_page": 1}}`)
	})

	page, err := client.FilterProducts(context.Background(), FilterRequest{AttributeValueIDs: []string{"11", "12"}, CategoryID: "4"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, 1, page.LastPage)
}

func TestPageBelowOneAsksForFirstPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"success": true, "data": []}`)
	})

	page, err := client.Search(context.Background(), "tee", 0)
	require.NoError(t, err)
	require.Empty(t, page.Records)
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "message": "tenant disabled"}`)
	})

	_, err := client.Search(context.Background(), "shirt", 1)
	require.ErrorIs(t, err, ErrUnsuccessful)
}

func TestServerErrorIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"message": "upstream down"}`)
	})

	_, err := client.CategoryProducts(context.Background(), "1", 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, "upstream down", apiErr.Message)
}

func TestMalformedJSONIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	})

	_, err := client.CategoryProducts(context.Background(), "1", 1)
	require.Error(t, err)
}

func TestProductDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/77":
			_, _ = io.WriteString(w, `{"success": true, "data": {"id": 77, "name": "Panjabi",
				"items": [{"size": "L", "quantity": 0, "price": 2500}],
				"specifications": [{"name": "Fabric", "description": "Cotton"}],
				"reviews": [{"id": 1, "rating": 5, "comment": "great"}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec, err := client.Product(context.Background(), "77")
	require.NoError(t, err)
	require.Equal(t, "Panjabi", rec.Name.String())
	require.Equal(t, "L", rec.AllVariants()[0].Label())
	require.Equal(t, 2500.0, rec.AllVariants()[0].Price.Float())
	require.Equal(t, "Fabric", rec.Specifications[0].Name.String())
	require.Len(t, rec.Reviews, 1)

	_, err = client.Product(context.Background(), "78")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCategoriesTree(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/categories", r.URL.Path)
		_, _ = io.WriteString(w, `{"success": true, "data": [
			{"id": 1, "name": "Men", "banner_image": "men.jpg", "product_count": "40",
			 "sub_category": [{"id": 10, "name": "Shirts", "child_categories": [{"id": 100, "name": "Casual"}]}]}
		]}`)
	})

	tree, err := client.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Equal(t, 40, tree[0].ProductCount)
	child, ok := Find(tree, "100")
	require.True(t, ok)
	require.Equal(t, "Casual", child.Name)
}

func TestUnconfiguredClient(t *testing.T) {
	_, err := NewClient("", "1").Categories(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}
