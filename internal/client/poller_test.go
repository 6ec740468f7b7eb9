package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"flame-server/internal/config"
	"flame-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() config.RetryPolicy {
	return config.RetryPolicy{
		StaleWindow:        time.Second,
		ResolverBudget:     100 * time.Millisecond,
		ResolverPollDelay:  time.Millisecond,
		ResolverMaxRetries: 2,
		PollerMaxAttempts:  5,
		PollerBaseDelay:    time.Millisecond,
		PollerMaxDelay:     4 * time.Millisecond,
	}
}

func processingResponse() models.StatusResponse {
	return models.StatusResponse{
		Processing:  true,
		DataVersion: time.Now().UnixMilli(),
		DayDefinition: &models.DayDefinition{
			RitualDay: 1,
			Title:     "The Calling of the Spark",
		},
		Meta: &models.StatusMeta{EstimatedRetryMs: 1, RetryCount: 2, MaxRetryExceeded: true},
	}
}

func freshResponse() models.StatusResponse {
	return models.StatusResponse{
		Processing:  false,
		DataVersion: time.Now().UnixMilli(),
		OverallProgress: &models.OverallProgress{
			CurrentDayTarget: 3,
			CompletedDays:    []int64{1, 2},
			UpdatedAt:        time.Now(),
		},
		DayDefinition: &models.DayDefinition{RitualDay: 3, Title: "The Shape of the Flame"},
	}
}

func TestPoll_ProcessingThenFreshReturnsSingleTerminalState(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		// Первые три ответа - processing, затем свежие данные.
		if n <= 3 {
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(processingResponse())
			return
		}
		_ = json.NewEncoder(w).Encode(freshResponse())
	}))
	defer srv.Close()

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	status, err := c.Poll(context.Background(), "test-token")

	require.NoError(t, err)
	require.NotNil(t, status)
	assert.False(t, status.Processing)
	assert.Equal(t, 3, status.OverallProgress.CurrentDayTarget)
	assert.Equal(t, int32(4), requests.Load(), "polling must stop at the first fresh payload")
}

func TestPoll_ExhaustedAttemptsReturnLastProcessingState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(processingResponse())
	}))
	defer srv.Close()

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	status, err := c.Poll(context.Background(), "test-token")

	// Исчерпание попыток - не ошибка: UI рисует статический нарратив дня.
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Processing)
	require.NotNil(t, status.DayDefinition)
}

func TestFetchStatus_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(freshResponse())
	}))
	defer srv.Close()

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	_, err := c.FetchStatus(context.Background(), "my-token")

	require.NoError(t, err)
	assert.Equal(t, "Bearer my-token", gotAuth)
}

func TestFetchStatus_HTTPErrorCarriesAPICode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.CodeAuthRequired})
	}))
	defer srv.Close()

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	status, err := c.FetchStatus(context.Background(), "expired")

	require.Nil(t, status)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, models.CodeAuthRequired, statusErr.Code)
}

func TestFetchStatus_NetworkFailureIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // сервер мертв до первого запроса

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	status, err := c.FetchStatus(context.Background(), "token")

	require.Nil(t, status)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
}

func TestSubmitImprint_PostsPayload(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"taskId": "t1", "status": "queued"})
	}))
	defer srv.Close()

	c := NewFlameStatusClient(srv.URL, testPolicy(), zap.NewNop())
	err := c.SubmitImprint(context.Background(), "token", 2, "I fed the ember.")

	require.NoError(t, err)
	assert.Equal(t, float64(2), gotBody["ritualDay"])
	assert.Equal(t, "I fed the ember.", gotBody["content"])
}
