package submission

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission/repo"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewService(repo.NewRepo(sqlx.NewDb(db, "postgres")))
	return NewHandler(svc, zap.NewNop().Sugar()), mock
}

func post(fn http.HandlerFunc, body, schema string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if schema != "" {
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: "9", SchemaName: schema, Role: auth.RoleClient}))
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestCreateOrder(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(`INSERT INTO "client_acme"."orders"`).
		WithArgs("Lin", 2, `{"grip":"G5"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	rec := post(h.CreateOrder, `{"name":" Lin ","racket_count":2,"custom_fields":{"grip":"G5"}}`, "client_acme")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"orderId":5}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_DefaultsCustomFields(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(`INSERT INTO "client_acme"."orders"`).
		WithArgs("Lin", 1, `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))

	rec := post(h.CreateOrder, `{"name":"Lin","racket_count":1}`, "client_acme")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		schema string
		want   int
	}{
		{"no claims", `{"name":"Lin","racket_count":1}`, "", http.StatusUnauthorized},
		{"bad json", `{"name":`, "client_acme", http.StatusBadRequest},
		{"missing name", `{"racket_count":1}`, "client_acme", http.StatusBadRequest},
		{"zero rackets", `{"name":"Lin","racket_count":0}`, "client_acme", http.StatusBadRequest},
		{"custom fields not an object", `{"name":"Lin","racket_count":1,"custom_fields":[1,2]}`, "client_acme", http.StatusBadRequest},
		{"unsafe schema claim", `{"name":"Lin","racket_count":1}`, `public"; drop table x; --`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, mock := newTestHandler(t)
			rec := post(h.CreateOrder, tc.body, tc.schema)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateOrder_DBError(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(`INSERT INTO`).WillReturnError(assert.AnError)

	rec := post(h.CreateOrder, `{"name":"Lin","racket_count":1}`, "client_acme")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server error")
}

func TestCreatePlayer(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(`INSERT INTO "client_acme"."players"`).
		WithArgs("BWF-77", "Tai", `{"club":"Taipei"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

	rec := post(h.CreatePlayer, `{"bwfId":"BWF-77","name":"Tai","custom_fields":{"club":"Taipei"}}`, "client_acme")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"playerId":8}`, rec.Body.String())

	rec = post(h.CreatePlayer, `{"name":"Tai"}`, "client_acme")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
