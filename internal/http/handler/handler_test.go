package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgov/internal/auth"
	"docgov/internal/http/middleware"
	"docgov/internal/model"
	"docgov/internal/policy"
	policyMocks "docgov/internal/policy/mocks"
	"docgov/internal/review"
	reviewMocks "docgov/internal/review/mocks"
	"docgov/internal/service"
	serviceMocks "docgov/internal/service/mocks"
)

var (
	freeUser  = auth.Identity{UserID: "u-free", Role: model.RoleFreeUser}
	premium   = auth.Identity{UserID: "u-premium", Role: model.RolePremiumUser}
	reviewer  = auth.Identity{UserID: "u-reviewer", Role: model.RoleReviewer}
	adminUser = auth.Identity{UserID: "u-admin", Role: model.RoleAdmin}
)

type testServer struct {
	app   *fiber.App
	authn *auth.Authenticator
}

func newTestServer(t *testing.T, d Deps) *testServer {
	t.Helper()
	authn, err := auth.NewAuthenticator("handler-test-secret")
	require.NoError(t, err)
	d.Auth = authn

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	RegisterRoutes(app, d)
	return &testServer{app: app, authn: authn}
}

func (s *testServer) do(t *testing.T, req *http.Request, as *auth.Identity) *http.Response {
	t.Helper()
	if as != nil {
		token, err := s.authn.Sign(*as, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLiveness(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", Liveness())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "docgov_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := newTestServer(t, Deps{Gatherer: reg})
	resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "docgov_test_total 1")
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, Deps{
		Documents: new(serviceMocks.MockDocumentService),
		Policies:  new(policyMocks.MockService),
		Reviews:   new(reviewMocks.MockService),
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/" + uuid.NewString()},
		{http.MethodPut, "/policies/max_words_free"},
		{http.MethodPost, "/reviews/" + uuid.NewString() + "/override"},
	} {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			resp := srv.do(t, httptest.NewRequest(r.method, r.path, nil), nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func multipartUpload(t *testing.T, filename, contentType, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	part.Write([]byte(content))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSubmitDocument(t *testing.T) {
	docID := uuid.NewString()

	t.Run("completed", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})

		var uploaded []byte
		svc.On("Submit", mock.Anything, mock.MatchedBy(func(in service.SubmitInput) bool {
			return in.Caller == premium && in.Filename == "notes.txt" && in.ContentType == "text/plain"
		})).Run(func(args mock.Arguments) {
			uploaded, _ = io.ReadAll(args.Get(1).(service.SubmitInput).Body)
		}).Return(&service.SubmitResult{Status: model.StatusCompleted, DocID: docID}, nil).Once()

		resp := srv.do(t, multipartUpload(t, "notes.txt", "text/plain", "hello world"), &premium)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res service.SubmitResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, model.StatusCompleted, res.Status)
		assert.Equal(t, docID, res.DocID)
		assert.Equal(t, "hello world", string(uploaded))
		svc.AssertExpectations(t)
	})

	t.Run("pending review carries the reason", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("Submit", mock.Anything, mock.Anything).
			Return(&service.SubmitResult{Status: model.StatusPendingReview, DocID: docID, Reason: "keyword_match:terror"}, nil).Once()

		resp := srv.do(t, multipartUpload(t, "a.txt", "", "terror"), &premium)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, "pending_review", res["status"])
		assert.Equal(t, "keyword_match:terror", res["reason"])
	})

	t.Run("missing content type defaults to octet-stream", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("Submit", mock.Anything, mock.MatchedBy(func(in service.SubmitInput) bool {
			return in.ContentType == "application/octet-stream"
		})).Return(&service.SubmitResult{Status: model.StatusCompleted, DocID: docID}, nil).Once()

		resp := srv.do(t, multipartUpload(t, "blob", "", "x"), &premium)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("Submit", mock.Anything, mock.Anything).
			Return(nil, &service.RejectionError{DocID: docID, Reason: "word_limit_exceeded"}).Once()

		resp := srv.do(t, multipartUpload(t, "long.txt", "text/plain", "many words"), &freeUser)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var body rejectionPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "CONTENT_REJECTED", body.Error.Code)
		assert.Equal(t, "word_limit_exceeded", body.Error.Message)
		assert.Equal(t, docID, body.DocID)
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("no file", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})

		resp := srv.do(t, httptest.NewRequest(http.MethodPost, "/documents", nil), &premium)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
		svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("Submit", mock.Anything, mock.Anything).
			Return(nil, errors.New("minio: bucket docs unreachable")).Once()

		resp := srv.do(t, multipartUpload(t, "a.txt", "text/plain", "x"), &premium)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "minio")
	})
}

func TestListDocuments(t *testing.T) {
	t.Run("success with status filter", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})

		expected := &service.DocumentListResult{
			Items: []model.Document{{ID: uuid.NewString(), Status: model.StatusPendingReview}},
			Total: 1,
		}
		svc.On("List", mock.Anything, reviewer, model.StatusPendingReview, 5, 10).Return(expected, nil).Once()

		resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/documents?status=pending_review&limit=5&offset=10", nil), &reviewer)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DocumentListResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		svc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("List", mock.Anything, adminUser, model.Status(""), 10, 0).
			Return(&service.DocumentListResult{}, nil).Once()

		resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil), &adminUser)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("bad query", func(t *testing.T) {
		srv := newTestServer(t, Deps{Documents: new(serviceMocks.MockDocumentService)})
		for query, code := range map[string]string{
			"limit=abc":      "INVALID_LIMIT",
			"offset=x":       "INVALID_OFFSET",
			"status=deleted": "INVALID_STATUS",
		} {
			resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/documents?"+query, nil), &reviewer)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
			assert.Equal(t, code, decodeError(t, resp).Error.Code, query)
		}
	})

	t.Run("forbidden for users", func(t *testing.T) {
		svc := new(serviceMocks.MockDocumentService)
		srv := newTestServer(t, Deps{Documents: svc})
		svc.On("List", mock.Anything, premium, model.Status(""), 10, 0).
			Return(nil, auth.ErrForbidden).Once()

		resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil), &premium)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
	})
}

func TestGetDocument(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name       string
		path       string
		setup      func(*serviceMocks.MockDocumentService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "found",
			path: "/documents/" + id,
			setup: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, premium, id).Return(&service.DocumentView{
					Document:    model.Document{ID: id, OwnerID: premium.UserID, Status: model.StatusCompleted},
					Summary:     &model.Summary{DocID: id, SummaryText: "short"},
					DownloadURL: "http://minio.local/documents/" + id,
				}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid id",
			path:       "/documents/not-a-uuid",
			setup:      func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ID",
		},
		{
			name: "not found",
			path: "/documents/" + id,
			setup: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, premium, id).Return(nil, service.ErrNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name: "someone else's document",
			path: "/documents/" + id,
			setup: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, premium, id).Return(nil, auth.ErrForbidden).Once()
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(serviceMocks.MockDocumentService)
			tt.setup(svc)
			srv := newTestServer(t, Deps{Documents: svc})

			resp := srv.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil), &premium)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var view map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
				assert.Equal(t, id, view["doc_id"])
				assert.NotEmpty(t, view["download_url"])
				assert.NotNil(t, view["summary"])
				assert.NotContains(t, view, "RawText")
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestUpdatePolicy(t *testing.T) {
	t.Run("admin updates", func(t *testing.T) {
		svc := new(policyMocks.MockService)
		srv := newTestServer(t, Deps{Policies: svc})
		svc.On("UpdatePolicy", mock.Anything, model.PolicyMaxWordsFree, "500").Return(nil).Once()

		resp := srv.do(t, jsonRequest(http.MethodPut, "/policies/max_words_free", `{"value":"500"}`), &adminUser)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "500", body["value"])
		svc.AssertExpectations(t)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		svc := new(policyMocks.MockService)
		srv := newTestServer(t, Deps{Policies: svc})

		for _, who := range []auth.Identity{freeUser, premium, reviewer} {
			resp := srv.do(t, jsonRequest(http.MethodPut, "/policies/max_words_free", `{"value":"1"}`), &who)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, who.Role)
		}
		svc.AssertNotCalled(t, "UpdatePolicy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown key", func(t *testing.T) {
		svc := new(policyMocks.MockService)
		srv := newTestServer(t, Deps{Policies: svc})
		svc.On("UpdatePolicy", mock.Anything, "colour", "blue").Return(policy.ErrUnknownPolicyKey).Once()

		resp := srv.do(t, jsonRequest(http.MethodPut, "/policies/colour", `{"value":"blue"}`), &adminUser)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "UNKNOWN_POLICY_KEY", decodeError(t, resp).Error.Code)
	})

	t.Run("missing value", func(t *testing.T) {
		srv := newTestServer(t, Deps{Policies: new(policyMocks.MockService)})

		resp := srv.do(t, jsonRequest(http.MethodPut, "/policies/max_words_free", `{}`), &adminUser)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
}

func TestOverrideReview(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "approve", body: `{"action":"approve"}`, wantStatus: http.StatusOK},
		{name: "conflict", body: `{"action":"reject"}`, err: review.ErrOverrideConflict, wantStatus: http.StatusConflict, wantCode: "OVERRIDE_CONFLICT"},
		{name: "forbidden", body: `{"action":"approve"}`, err: auth.ErrForbidden, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "unknown document", body: `{"action":"approve"}`, err: review.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "bad action", body: `{"action":"escalate"}`, err: review.ErrInvalidAction, wantStatus: http.StatusBadRequest, wantCode: "INVALID_ACTION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(reviewMocks.MockService)
			srv := newTestServer(t, Deps{Reviews: svc})

			var req overrideRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			if tt.err != nil {
				svc.On("Override", mock.Anything, reviewer, id, req.Action).Return(nil, tt.err).Once()
			} else {
				svc.On("Override", mock.Anything, reviewer, id, req.Action).Return(&review.OverrideResult{
					DocID: id, Status: model.StatusCompleted, Action: req.Action, ReviewerID: reviewer.UserID,
				}, nil).Once()
			}

			resp := srv.do(t, jsonRequest(http.MethodPost, "/reviews/"+id+"/override", tt.body), &reviewer)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var res review.OverrideResult
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
				assert.Equal(t, model.StatusCompleted, res.Status)
			}
			svc.AssertExpectations(t)
		})
	}

	t.Run("invalid id", func(t *testing.T) {
		svc := new(reviewMocks.MockService)
		srv := newTestServer(t, Deps{Reviews: svc})

		resp := srv.do(t, jsonRequest(http.MethodPost, "/reviews/123/override", `{"action":"approve"}`), &reviewer)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		svc.AssertNotCalled(t, "Override", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRoutesOmittedWithoutService(t *testing.T) {
	srv := newTestServer(t, Deps{Reviews: new(reviewMocks.MockService)})

	resp := srv.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil), &reviewer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
}
