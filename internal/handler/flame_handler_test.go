package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	broadcastmocks "flame-server/internal/broadcast/mocks"
	"flame-server/internal/config"
	"flame-server/internal/content"
	messagingmocks "flame-server/internal/messaging/mocks"
	"flame-server/internal/middleware"
	"flame-server/internal/models"
	"flame-server/internal/repository/mocks"
	"flame-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	quests    *mocks.QuestRepository
	progress  *mocks.ProgressRepository
	publisher *messagingmocks.TaskPublisher
	b         *broadcastmocks.Broadcaster
	router    *gin.Engine
	userID    uuid.UUID
}

// fastPolicy делает внутренний цикл резолвера практически мгновенным.
func fastPolicy() config.RetryPolicy {
	return config.RetryPolicy{
		StaleWindow:        time.Second,
		ResolverBudget:     50 * time.Millisecond,
		ResolverPollDelay:  time.Millisecond,
		ResolverMaxRetries: 2,
		PollerMaxAttempts:  3,
		PollerBaseDelay:    time.Millisecond,
		PollerMaxDelay:     4 * time.Millisecond,
	}
}

// newHandlerFixture собирает router с настоящими сервисами поверх моков
// репозиториев и стабовым auth middleware.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		quests:    new(mocks.QuestRepository),
		progress:  new(mocks.ProgressRepository),
		publisher: new(messagingmocks.TaskPublisher),
		b:         new(broadcastmocks.Broadcaster),
		userID:    uuid.New(),
	}

	days := content.NewSource("", zap.NewNop())
	resolver := service.NewStatusResolver(f.quests, f.progress, days, f.b, fastPolicy(), zap.NewNop())
	imprints := service.NewImprintService(f.publisher, zap.NewNop())
	h := NewFlameHandler(resolver, imprints, zap.NewNop())

	stubAuth := func(c *gin.Context) {
		c.Set(string(models.UserContextKey), f.userID)
		c.Next()
	}

	f.router = gin.New()
	h.RegisterRoutes(f.router, stubAuth)
	return f
}

func (f *handlerFixture) expectFreshStatus() {
	quest := &models.Quest{ID: uuid.New(), Slug: models.FirstFlameSlug}
	progress := &models.FlameProgress{
		QuestID:          quest.ID,
		UserID:           f.userID,
		CurrentDayTarget: 1,
		CompletedDays:    []int64{},
		UpdatedAt:        time.Now(),
	}
	f.quests.On("EnsureQuest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(quest, nil)
	f.quests.On("EnsureParticipant", mock.Anything, quest.ID, f.userID).Return(nil)
	f.progress.On("Ensure", mock.Anything, quest.ID, f.userID).Return(progress, nil)
}

func (f *handlerFixture) expectStaleStatus() {
	quest := &models.Quest{ID: uuid.New(), Slug: models.FirstFlameSlug}
	stale := &models.FlameProgress{
		QuestID:          quest.ID,
		UserID:           f.userID,
		CurrentDayTarget: 2,
		CompletedDays:    []int64{1},
		UpdatedAt:        time.Now().Add(-time.Hour),
	}
	f.quests.On("EnsureQuest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(quest, nil)
	f.quests.On("EnsureParticipant", mock.Anything, quest.ID, f.userID).Return(nil)
	f.progress.On("Ensure", mock.Anything, quest.ID, f.userID).Return(stale, nil)
	f.progress.On("Get", mock.Anything, quest.ID, f.userID).Return(stale, nil)
	f.b.On("PublishStatus", mock.Anything, mock.Anything, f.userID, quest.ID).Return(nil)
}

func TestGetFlameStatus_FreshReturns200(t *testing.T) {
	f := newHandlerFixture(t)
	f.expectFreshStatus()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/get-flame-status", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, method)

		var resp models.StatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Processing)
		assert.Positive(t, resp.DataVersion)
		require.NotNil(t, resp.OverallProgress)
		require.NotNil(t, resp.DayDefinition)
		assert.Nil(t, resp.Meta)
	}
}

func TestGetFlameStatus_StaleReturns202WithMeta(t *testing.T) {
	f := newHandlerFixture(t)
	f.expectStaleStatus()

	req := httptest.NewRequest(http.MethodGet, "/get-flame-status", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Processing)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.MaxRetryExceeded)
	// dayDefinition прикладывается и к 202-ответу.
	require.NotNil(t, resp.DayDefinition)
	assert.Equal(t, 2, resp.DayDefinition.RitualDay)
}

func TestGetFlameStatus_PostBodyValidation(t *testing.T) {
	f := newHandlerFixture(t)
	f.expectFreshStatus()

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/get-flame-status", strings.NewReader(`{"refresh": `))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.CodeInvalidJSON, resp.Error)
	})

	// Валидное (пусть и игнорируемое) тело не должно ломать запрос.
	t.Run("well-formed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/get-flame-status", strings.NewReader(`{"refresh": true}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSubmitFlameImprint_Returns202Receipt(t *testing.T) {
	f := newHandlerFixture(t)
	f.publisher.On("PublishImprintTask", mock.Anything, mock.Anything).Return(nil).Once()

	body := `{"ritualDay": 1, "content": "I lit the first candle."}`
	req := httptest.NewRequest(http.MethodPost, "/submit-flame-imprint", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var receipt service.ImprintReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "queued", receipt.Status)
	assert.NotEmpty(t, receipt.TaskID)
	f.publisher.AssertExpectations(t)
}

func TestSubmitFlameImprint_BadBodies(t *testing.T) {
	f := newHandlerFixture(t)

	testCases := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "malformed json", body: `{"ritualDay": `, wantCode: models.CodeInvalidJSON},
		{name: "wrong type", body: `{"ritualDay": "one", "content": "x"}`, wantCode: models.CodeInvalidJSON},
		{name: "missing fields", body: `{}`, wantCode: models.CodeMissingFields},
		{name: "day out of range", body: `{"ritualDay": 9, "content": "x"}`, wantCode: models.CodeMissingFields},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/submit-flame-imprint", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}

	f.publisher.AssertNotCalled(t, "PublishImprintTask", mock.Anything, mock.Anything)
}

func TestMethodNotAllowedReturnsJSON405(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/get-flame-status", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CodeMethodNotAllowed, resp.Error)
}

// newAuthRouter собирает router с НАСТОЯЩИМ auth middleware поверх стабового
// верификатора, чтобы проверить контракт ошибок авторизации end-to-end.
func newAuthRouter(t *testing.T, verifier middleware.TokenVerifier, allowPublicDemo bool) (*gin.Engine, *handlerFixture) {
	t.Helper()
	f := &handlerFixture{
		quests:    new(mocks.QuestRepository),
		progress:  new(mocks.ProgressRepository),
		publisher: new(messagingmocks.TaskPublisher),
		b:         new(broadcastmocks.Broadcaster),
	}

	days := content.NewSource("", zap.NewNop())
	resolver := service.NewStatusResolver(f.quests, f.progress, days, f.b, fastPolicy(), zap.NewNop())
	imprints := service.NewImprintService(f.publisher, zap.NewNop())
	h := NewFlameHandler(resolver, imprints, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router, middleware.AuthMiddleware(verifier, zap.NewNop(), allowPublicDemo))
	return router, f
}

func TestGetFlameStatus_AuthContract(t *testing.T) {
	rejectAll := func(ctx context.Context, token string) (*models.Claims, error) {
		return nil, models.ErrTokenInvalid
	}

	t.Run("missing header", func(t *testing.T) {
		router, _ := newAuthRouter(t, rejectAll, false)
		req := httptest.NewRequest(http.MethodGet, "/get-flame-status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.CodeAuthRequired, resp.Error)
	})

	t.Run("invalid token", func(t *testing.T) {
		router, _ := newAuthRouter(t, rejectAll, false)
		req := httptest.NewRequest(http.MethodGet, "/get-flame-status", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.CodeInvalidToken, resp.Error)
	})

	t.Run("demo bypass when enabled", func(t *testing.T) {
		router, f := newAuthRouter(t, rejectAll, true)
		f.userID = models.DemoUserID

		// Демо-пользователь: ошибки БД глотаются, отдается processing.
		quest := &models.Quest{ID: uuid.New(), Slug: models.FirstFlameSlug}
		f.quests.On("EnsureQuest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(quest, nil)
		f.quests.On("EnsureParticipant", mock.Anything, quest.ID, models.DemoUserID).Return(nil)
		f.progress.On("Ensure", mock.Anything, quest.ID, models.DemoUserID).
			Return(&models.FlameProgress{QuestID: quest.ID, UserID: models.DemoUserID, CurrentDayTarget: 1, UpdatedAt: time.Now()}, nil)

		req := httptest.NewRequest(http.MethodGet,
			"/get-flame-status?userId="+models.DemoUserID.String()+"&allowPublic=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("demo bypass disabled in production", func(t *testing.T) {
		router, _ := newAuthRouter(t, rejectAll, false)
		req := httptest.NewRequest(http.MethodGet,
			"/get-flame-status?userId="+models.DemoUserID.String()+"&allowPublic=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
