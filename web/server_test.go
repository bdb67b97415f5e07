package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trypie/db/mem"
	"trypie/ledger"
	"trypie/mq/goch"
	"trypie/report"
	"trypie/service"
)

const testSecret = "test-jwt-secret-key"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	server *Server
	tokens *TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	queues := goch.NewGoChanGroupMessageQueueWrapper(goch.DefaultBufferSize)
	t.Cleanup(func() { _ = queues.Close() })
	svc := service.NewExpenseService(mem.NewInMemoryGroupDBWrapper(), queues)

	server, err := NewServer(Options{JWTSecret: testSecret, RateLimit: "10000-M"}, svc)
	require.NoError(t, err)
	return &testAPI{t: t, server: server, tokens: NewTokenManager(testSecret)}
}

func (a *testAPI) token(user ledger.UserID) string {
	a.t.Helper()
	token, err := a.tokens.Generate(user, time.Hour)
	require.NoError(a.t, err)
	return token
}

// do sends body as JSON on behalf of user. An empty user sends no token.
func (a *testAPI) do(method, path string, user ledger.UserID, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(user))
	}
	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

// newTrip creates a group organized by alice with bob and carol.
func (a *testAPI) newTrip() string {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/groups", "alice", obj{"title": "Lisbon", "destination": "Portugal", "name": "Alice"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[groupJSON](a.t, env)
	for _, u := range []string{"bob", "carol"} {
		w, _ := a.do(http.MethodPost, "/api/v1/groups/"+group.ID.String()+"/members", "alice", obj{"user_id": u, "name": strings.ToUpper(u[:1]) + u[1:]})
		require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	}
	return group.ID.String()
}

type obj = map[string]any

func TestHealthAndCurrency(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := api.do(http.MethodGet, "/api/v1/currencies/eur", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"code": "EUR", "symbol": "€"}, decode[map[string]string](t, env))

	_, env = api.do(http.MethodGet, "/api/v1/currencies/JPY", "", nil)
	assert.Equal(t, "₹", decode[map[string]string](t, env)["symbol"])

	w, _ = api.do(http.MethodGet, "/api/v1/currencies/EURO", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodPost, "/api/v1/groups", "", obj{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	w = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := NewTokenManager("another-secret").Generate("alice", time.Hour)
	require.NoError(t, err)
	_, err = api.tokens.Validate(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := api.tokens.Generate("alice", -time.Minute)
	require.NoError(t, err)
	_, err = api.tokens.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	user, err := api.tokens.Validate(api.token("alice"))
	require.NoError(t, err)
	assert.Equal(t, ledger.UserID("alice"), user)
}

func TestNewServerRequiresSecretOutsideDev(t *testing.T) {
	svc := service.NewExpenseService(mem.NewInMemoryGroupDBWrapper(), nil)
	_, err := NewServer(Options{}, svc)
	assert.Error(t, err)

	server, err := NewServer(Options{Dev: true}, svc)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", strings.NewReader(`{"title":"Dev trip"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DevUserHeader, "alice")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestExpenseFlow(t *testing.T) {
	api := newTestAPI(t)
	groupID := api.newTrip()
	base := "/api/v1/groups/" + groupID

	w, env := api.do(http.MethodPost, base+"/expenses", "alice", obj{
		"title": "Dinner", "category": "food", "amount": 120, "currency": "usd", "paid_by": "alice",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dinner := decode[expenseJSON](t, env)
	assert.Equal(t, "120.00", dinner.Amount)
	assert.Equal(t, "USD", dinner.Currency)
	assert.Equal(t, "$", dinner.CurrencySymbol)
	assert.Equal(t, ledger.CategoryFood.Icon(), dinner.CategoryIcon)
	require.Len(t, dinner.Shares, 3)

	w, env = api.do(http.MethodPost, base+"/expenses", "bob", obj{
		"title": "Tram", "amount": "30", "paid_by": "bob", "split_method": "custom",
		"shares": []obj{{"user_id": "alice", "amount": "20"}, {"user_id": "bob", "amount": 10}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tram := decode[expenseJSON](t, env)
	assert.Equal(t, "INR", tram.Currency)
	assert.Equal(t, "food", tram.Category)

	w, env = api.do(http.MethodGet, base+"/expenses", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]expenseJSON](t, env)
	require.Len(t, list, 2)
	assert.Equal(t, tram.ID, list[0].ID, "newest first")

	w, env = api.do(http.MethodGet, base+"/balances", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[balancesJSON](t, env)
	assert.Equal(t, "20.00", b.TotalOwed)
	assert.Equal(t, "80.00", b.TotalOwedTo)
	require.Len(t, b.Members, 2)
	assert.Equal(t, memberBalanceJSON{UserID: "bob", Name: "Bob", Net: "20.00", Label: ledger.LabelOwesYou, Amount: "20.00"}, b.Members[0])

	var bobShare shareJSON
	for _, s := range dinner.Shares {
		if s.UserID == "bob" {
			bobShare = s
		}
	}
	paidPath := "/api/v1/shares/" + bobShare.ID.String() + "/paid"

	w, _ = api.do(http.MethodPut, paidPath, "carol", obj{"is_paid": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = api.do(http.MethodPut, paidPath, "bob", obj{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(http.MethodPut, paidPath, "bob", obj{"is_paid": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[shareJSON](t, env).IsPaid)

	_, env = api.do(http.MethodGet, base+"/balances", "bob", nil)
	b = decode[balancesJSON](t, env)
	assert.Equal(t, "0.00", b.TotalOwed)
	assert.Equal(t, "20.00", b.TotalOwedTo)
	assert.Equal(t, ledger.LabelOwesYou, b.Members[0].Label, "alice still owes bob for the tram")

	w, env = api.do(http.MethodGet, "/api/v1/shares/"+bobShare.ID.String()+"/history", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]transitionJSON](t, env)
	require.Len(t, history, 1)
	assert.Equal(t, "bob", history[0].Actor)

	expensePath := "/api/v1/expenses/" + dinner.ID.String()
	w, _ = api.do(http.MethodPatch, expensePath, "bob", obj{"title": "Late dinner"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, env = api.do(http.MethodPatch, expensePath, "alice", obj{"title": "Late dinner"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[expenseJSON](t, env)
	assert.Equal(t, "Late dinner", updated.Title)
	require.Len(t, updated.Changes, 1)
	assert.Equal(t, "title", updated.Changes[0].Field)

	w, env = api.do(http.MethodGet, expensePath, "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Late dinner", decode[expenseJSON](t, env).Title)

	w, _ = api.do(http.MethodDelete, expensePath, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(http.MethodGet, expensePath, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	groupID := api.newTrip()
	base := "/api/v1/groups/" + groupID

	tests := []struct {
		name   string
		method string
		path   string
		user   ledger.UserID
		body   any
		want   int
	}{
		{"BadUUID", http.MethodGet, "/api/v1/groups/not-a-uuid", "alice", nil, http.StatusBadRequest},
		{"UnknownGroup", http.MethodGet, "/api/v1/groups/" + uuid.NewString(), "alice", nil, http.StatusNotFound},
		{"NotAMember", http.MethodGet, base, "mallory", nil, http.StatusForbidden},
		{"MissingTitle", http.MethodPost, "/api/v1/groups", "alice", obj{}, http.StatusBadRequest},
		{"DuplicateMember", http.MethodPost, base + "/members", "alice", obj{"user_id": "bob"}, http.StatusConflict},
		{"MemberAddsMember", http.MethodPost, base + "/members", "bob", obj{"user_id": "dave"}, http.StatusForbidden},
		{"OrganizerLeaves", http.MethodDelete, base + "/members/alice", "alice", nil, http.StatusConflict},
		{"NonNumericAmount", http.MethodPost, base + "/expenses", "alice", obj{"title": "x", "amount": "abc", "paid_by": "alice"}, http.StatusBadRequest},
		{"MissingPayer", http.MethodPost, base + "/expenses", "alice", obj{"title": "x", "amount": "10"}, http.StatusBadRequest},
		{"SubCentAmount", http.MethodPost, base + "/expenses", "alice", obj{"title": "x", "amount": 10.005, "paid_by": "alice"}, http.StatusBadRequest},
		{"CustomMismatch", http.MethodPost, base + "/expenses", "alice", obj{
			"title": "x", "amount": "10", "paid_by": "alice", "split_method": "custom",
			"shares": []obj{{"user_id": "alice", "amount": "5"}, {"user_id": "bob", "amount": "4"}},
		}, http.StatusBadRequest},
		{"UnknownShare", http.MethodPut, "/api/v1/shares/" + uuid.NewString() + "/paid", "alice", obj{"is_paid": true}, http.StatusNotFound},
		{"MalformedBody", http.MethodPost, base + "/expenses", "alice", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := api.do(tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, tt.want, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}

	w, env := api.do(http.MethodGet, base+"/expenses", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]expenseJSON](t, env), "rejected expenses are not stored")

	w, env = api.do(http.MethodDelete, base+"/members/carol", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = api.do(http.MethodGet, base+"/members", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]memberJSON](t, env), 2)
}

func TestExport(t *testing.T) {
	api := newTestAPI(t)
	groupID := api.newTrip()
	base := "/api/v1/groups/" + groupID

	w, _ := api.do(http.MethodPost, base+"/expenses", "carol", obj{"title": "Fado show", "category": "activity", "amount": "75", "paid_by": "carol"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = api.do(http.MethodGet, base+"/expenses/export", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.ExpenseSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "Fado show", rows[1][1])
	assert.Equal(t, "Carol", rows[1][3])
}

func TestMetrics(t *testing.T) {
	api := newTestAPI(t)
	api.do(http.MethodGet, "/health", "", nil)

	w, _ := api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `trypie_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestEventsWebsocket(t *testing.T) {
	api := newTestAPI(t)
	groupID := api.newTrip()

	ts := httptest.NewServer(api.server.Handler())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/groups/" + groupID + "/events?token=" + api.token("carol")

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/groups/"+groupID+"/events?token="+api.token("mallory"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is in place once the upgrade has completed
	w, env := api.do(http.MethodPost, "/api/v1/groups/"+groupID+"/expenses", "alice", obj{"title": "Pastéis", "amount": "9", "paid_by": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[expenseJSON](t, env)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var event service.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, service.EventKindExpense, event.Kind)
	assert.Equal(t, "create", event.Action)
	require.NotNil(t, event.Expense)
	assert.Equal(t, created.ID, event.Expense.ID)
	assert.Equal(t, "Pastéis", event.Expense.Title)
}
