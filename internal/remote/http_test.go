package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beansync/beansync/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(ClientConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return c, srv
}

func TestCurrentUserMemoized(t *testing.T) {
	var meHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		meHits++
		assert.Equal(t, "test-key", r.Header.Get("X-Developer-Key"))
		fmt.Fprint(w, `{"id": 7, "login": "sam"}`)
	})
	mux.HandleFunc("/users/7/accounts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	u, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)

	_, err = c.Accounts(ctx)
	require.NoError(t, err)
	_, err = c.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meHits, "user id fetched once")
}

func TestTransactionsFollowPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 7}`)
	})
	mux.HandleFunc("/users/7/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/users/7/transactions?page=2>; rel="next"`, srvURL))
			fmt.Fprint(w, `[{"id": 1, "date": "2024-01-05", "amount": -12.5, "currency_code": "USD",
				"transaction_account": {"id": 3, "name": "Checking"}}]`)
		case "2":
			fmt.Fprint(w, `[{"id": 2, "date": "2024-01-06", "amount": 12.5, "currency_code": "USD",
				"transaction_account": {"id": 4, "name": "Savings"}}]`)
		}
	})

	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	from, err := model.ParseDate("2024-01-01")
	require.NoError(t, err)
	txns, err := c.Transactions(context.Background(), TransactionQuery{
		Window: model.DateWindow{From: from},
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, int64(1), txns[0].ID)
	assert.Equal(t, int64(2), txns[1].ID)
	assert.Equal(t, int64(4), txns[1].AccountID)
}

func TestTransactionNoteMetadataLifted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 42, "date": "2024-02-01", "amount": -50, "currency_code": "USD",
			"note": "Rent share [paired:43] [suspect_reason:date-delay-3d]",
			"labels": ["Rent", "shared"]}`)
	})

	c, _ := newTestClient(t, mux)
	txn, err := c.Transaction(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "Rent share", txn.Narration)
	require.NotNil(t, txn.PairedID)
	assert.Equal(t, int64(43), *txn.PairedID)
	assert.Equal(t, "date-delay-3d", txn.SuspectReason)
	assert.Equal(t, []string{"rent", "shared"}, txn.Labels.Tokens())
}

func TestUpdateSendsOnlyNamedFields(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/9", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"id": 9, "date": "2024-03-01", "amount": -5, "currency_code": "USD",
			"category": {"id": 11, "title": "Coffee"}}`)
	})

	c, _ := newTestClient(t, mux)
	catID := int64(11)
	txn, err := c.UpdateTransaction(context.Background(), 9, Update{CategoryID: &catID})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"category_id": float64(11)}, got)
	require.NotNil(t, txn.CategoryID)
	assert.Equal(t, int64(11), *txn.CategoryID)
}

func TestRateLimitRetriedWithRetryAfter(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/1", func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id": 1, "date": "2024-01-01", "amount": -1, "currency_code": "USD"}`)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Transaction(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestRateLimitExhaustsRetryBudget(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/1", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Transaction(context.Background(), 1)
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.Status)
	assert.Equal(t, maxRetries+1, hits, "initial attempt plus retries")
}

func TestAuthRejectionNotRetried(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.True(t, re.AuthFailed())
	assert.Equal(t, 1, hits)
}

func TestCategoriesFlattenForest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 7}`)
	})
	mux.HandleFunc("/users/7/categories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1, "title": "Expenses",
			"children": [{"id": 2, "title": "Groceries"}, {"id": 3, "title": "Transport"}]}]`)
	})

	c, _ := newTestClient(t, mux)
	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Nil(t, cats[0].ParentID)
	require.NotNil(t, cats[1].ParentID)
	assert.Equal(t, int64(1), *cats[1].ParentID)

	assert.Equal(t, "Groceries", c.CategoryTitle(context.Background(), 2))
}

func TestCategoryTitleFetchesOnMiss(t *testing.T) {
	var listHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 7}`)
	})
	mux.HandleFunc("/users/7/categories", func(w http.ResponseWriter, r *http.Request) {
		listHits++
		fmt.Fprint(w, `[{"id": 5, "title": "Transfer"}]`)
	})

	c, _ := newTestClient(t, mux)
	assert.Equal(t, "Transfer", c.CategoryTitle(context.Background(), 5))
	assert.Equal(t, "Transfer", c.CategoryTitle(context.Background(), 5))
	assert.Equal(t, 1, listHits, "second lookup served from cache")
}

func TestRetryAfterParsing(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(h, time.Millisecond))

	h.Set("Retry-After", "garbage")
	assert.Equal(t, time.Millisecond, retryAfter(h, time.Millisecond))

	assert.Equal(t, time.Millisecond, retryAfter(http.Header{}, time.Millisecond))
}

func TestLinkNext(t *testing.T) {
	header := `<https://api.example.com/page3>; rel="next", <https://api.example.com/page1>; rel="prev"`
	assert.Equal(t, "https://api.example.com/page3", linkNext(header))
	assert.Empty(t, linkNext(`<https://api.example.com/page1>; rel="prev"`))
	assert.Empty(t, linkNext(""))
	assert.Empty(t, linkNext(`<not-a-url>; rel="next"`))
}

func TestNoteFor(t *testing.T) {
	paired := int64(43)
	txn := model.Transaction{Narration: "Rent share", PairedID: &paired, SuspectReason: "date-delay-3d"}
	assert.Equal(t, "Rent share [paired:43] [suspect_reason:date-delay-3d]", NoteFor(&txn))

	plain := model.Transaction{Narration: "Coffee"}
	assert.Equal(t, "Coffee", NoteFor(&plain))
}
