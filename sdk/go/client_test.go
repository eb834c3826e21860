package stageflowsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionSendsBodyAndAuth(t *testing.T) {
	var got TransitionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/P%201/transition", r.URL.EscapedPath())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(TransitionResult{TransitionID: "t1", FromStage: "Planning", ToStage: got.ToStage})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	reason := "ready"
	res, err := c.Transition(context.Background(), "P 1", TransitionRequest{ToStage: "Testing", Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "t1", res.TransitionID)
	assert.Equal(t, "Testing", res.ToStage)
	require.NotNil(t, got.Reason)
	assert.Equal(t, "ready", *got.Reason)
}

func TestCanTransitionEscapesStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UI/UX Design", r.URL.Query().Get("to_stage"))
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"allowed":true,"reasons":[],"warnings":["2 tasks still pending"],"current_stage":"Planning","stage_progress":{"total_tasks":3,"completed_tasks":1,"progress_percentage":0}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k"
	check, err := c.CanTransition(context.Background(), "P1", "UI/UX Design")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 3, check.StageProgress.TotalTasks)
	assert.Equal(t, []string{"2 tasks still pending"}, check.Warnings)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"transition: target stage not found: Launch"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Transition(context.Background(), "P1", TransitionRequest{ToStage: "Launch"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestHistoryItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/P1/transitions", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[{"id":"b","from_stage":"Development","to_stage":"Testing","transitioned_by":"pm","checklist_completed":true,"approval_received":false,"transitioned_at":"2026-03-02T10:00:00.000000Z"},{"id":"a","from_stage":"Planning","to_stage":"Development","transitioned_by":"pm","checklist_completed":false,"approval_received":false,"transitioned_at":"2026-03-02T09:00:00.000000Z"}]}`))
	}))
	defer srv.Close()

	items, err := New(srv.URL).History(context.Background(), "P1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.True(t, items[0].ChecklistCompleted)
}
