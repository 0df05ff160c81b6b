package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/middleware"
	"github.com/ukydev/fleet-automation/internal/models"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ db.UserCollection = (*MockUserCollection)(nil)

func newAuthHandler(t *testing.T, users db.UserCollection) (*AuthHandler, *auth.Service) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := auth.NewService("test-secret", time.Hour)
	return NewAuthHandler(svc, users, logger), svc
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) Response {
	t.Helper()
	var resp Response
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func withClaims(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), &models.Claims{
		UserID:   user.ID.Hex(),
		Username: user.Username,
		Role:     user.Role,
	}))
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, svc := newAuthHandler(t, users)
		hash, err := svc.HashPassword("password123")
		require.NoError(t, err)
		user := &models.User{
			ID:           primitive.NewObjectID(),
			Username:     "dispatch",
			PasswordHash: hash,
			Role:         models.RoleDispatcher,
			IsActive:     true,
		}
		users.On("FindUserByUsername", mock.Anything, "dispatch").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "dispatch", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var login models.LoginResponse
		resp := decodeEnvelope(t, w, &login)
		assert.True(t, resp.Success)
		assert.Equal(t, "dispatch", login.User.Username)

		claims, err := svc.ValidateToken(login.Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleDispatcher, claims.Role)
		assert.NotContains(t, w.Body.String(), hash)
		users.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, _ := newAuthHandler(t, users)
		users.On("FindUserByUsername", mock.Anything, "ghost").Return(nil, db.ErrNotFound)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "ghost", Password: "x"})))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, svc := newAuthHandler(t, users)
		hash, err := svc.HashPassword("password123")
		require.NoError(t, err)
		users.On("FindUserByUsername", mock.Anything, "dispatch").Return(&models.User{Username: "dispatch", PasswordHash: hash, IsActive: true}, nil)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "dispatch", Password: "nope"})))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, svc := newAuthHandler(t, users)
		hash, err := svc.HashPassword("password123")
		require.NoError(t, err)
		users.On("FindUserByUsername", mock.Anything, "dispatch").Return(&models.User{Username: "dispatch", PasswordHash: hash}, nil)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "dispatch", Password: "password123"})))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "user is inactive", decodeEnvelope(t, w, nil).Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler, _ := newAuthHandler(t, new(MockUserCollection))
		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "dispatch"})))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Register(t *testing.T) {
	valid := models.RegisterRequest{
		Username: "safety",
		Email:    "Safety@Fleet.example",
		Password: "password123",
		Name:     "Sam Safety",
		Role:     models.RoleSafetyOfficer,
	}

	t.Run("creates user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, _ := newAuthHandler(t, users)
		users.On("FindUserByUsername", mock.Anything, "safety").Return(nil, db.ErrNotFound)
		users.On("FindUserByEmail", mock.Anything, valid.Email).Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Username == "safety" && u.Email == "safety@fleet.example" && u.PasswordHash != "password123" && !u.ID.IsZero()
		})).Return(nil)

		w := httptest.NewRecorder()
		handler.Register(w, httptest.NewRequest(http.MethodPost, "/api/users", jsonBody(t, valid)))

		assert.Equal(t, http.StatusCreated, w.Code)
		var created models.User
		decodeEnvelope(t, w, &created)
		assert.Equal(t, "Sam Safety", created.Name)
		assert.Equal(t, models.RoleSafetyOfficer, created.Role)
		users.AssertExpectations(t)
	})

	t.Run("validation errors are collected", func(t *testing.T) {
		handler, _ := newAuthHandler(t, new(MockUserCollection))
		w := httptest.NewRecorder()
		handler.Register(w, httptest.NewRequest(http.MethodPost, "/api/users", jsonBody(t, models.RegisterRequest{Username: "ab", Email: "bad", Password: "short", Role: "Overlord"})))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Len(t, decodeEnvelope(t, w, nil).Errors, 4)
	})

	t.Run("duplicate username", func(t *testing.T) {
		users := new(MockUserCollection)
		handler, _ := newAuthHandler(t, users)
		users.On("FindUserByUsername", mock.Anything, "safety").Return(&models.User{Username: "safety"}, nil)

		w := httptest.NewRecorder()
		handler.Register(w, httptest.NewRequest(http.MethodPost, "/api/users", jsonBody(t, valid)))

		assert.Equal(t, http.StatusConflict, w.Code)
		users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
	})
}

func TestAuthHandler_Profile(t *testing.T) {
	users := new(MockUserCollection)
	handler, svc := newAuthHandler(t, users)
	hash, err := svc.HashPassword("password123")
	require.NoError(t, err)
	user := &models.User{ID: primitive.NewObjectID(), Username: "fm", Email: "fm@fleet.example", Name: "Old", PasswordHash: hash, Role: models.RoleFleetManager}
	users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetProfile(w, withClaims(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), user))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetProfile(w, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("update name", func(t *testing.T) {
		users.On("UpdateUser", mock.Anything, user.ID.Hex(), mock.MatchedBy(func(u models.User) bool { return u.Name == "New" })).Return(nil).Once()
		w := httptest.NewRecorder()
		handler.UpdateProfile(w, withClaims(httptest.NewRequest(http.MethodPut, "/api/auth/profile", jsonBody(t, map[string]string{"name": "New"})), user))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("change password needs the current one", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := jsonBody(t, map[string]string{"current_password": "wrong-one", "new_password": "newpassword1"})
		handler.ChangePassword(w, withClaims(httptest.NewRequest(http.MethodPost, "/api/auth/change-password", body), user))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_ListUsers(t *testing.T) {
	users := new(MockUserCollection)
	handler, _ := newAuthHandler(t, users)
	users.On("ListUsers", mock.Anything).Return([]models.User{{Username: "a"}, {Username: "b"}}, nil)

	w := httptest.NewRecorder()
	handler.ListUsers(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.User
	decodeEnvelope(t, w, &listed)
	assert.Len(t, listed, 2)
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestAuthHandler_DeleteUser(t *testing.T) {
	users := new(MockUserCollection)
	handler, _ := newAuthHandler(t, users)
	admin := &models.User{ID: primitive.NewObjectID(), Username: "root", Role: models.RoleAdmin}
	other := primitive.NewObjectID().Hex()
	missing := primitive.NewObjectID().Hex()
	users.On("DeleteUser", mock.Anything, other).Return(nil).Once()
	users.On("DeleteUser", mock.Anything, missing).Return(db.ErrNotFound).Once()

	del := func(id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.DeleteUser(w, withClaims(withID(httptest.NewRequest(http.MethodDelete, "/api/users/"+id, nil), id), admin))
		return w
	}

	w := del(admin.ID.Hex())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot delete your own account.", decodeEnvelope(t, w, nil).Message)

	assert.Equal(t, http.StatusOK, del(other).Code)
	assert.Equal(t, http.StatusNotFound, del(missing).Code)
	users.AssertExpectations(t)
	users.AssertNotCalled(t, "DeleteUser", mock.Anything, admin.ID.Hex())
}
