package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/config"
	"stageflow/internal/db"
	"stageflow/internal/domain"
	"stageflow/internal/engine"
	"stageflow/internal/engine/auth"
	"stageflow/internal/migrate"
	"stageflow/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn, dialect))
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, dialect, cfg, logger)
	handler, err := New(Config{
		Engine:   e,
		Policy:   auth.Policy{Roles: cfg.RolePermissions()},
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, DevLogin: true},
		Logger:   logger,
	})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	s := &testServer{
		URL:    "http://" + ln.Addr().String() + "/v1",
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(s.Close)
	return s
}

func bearer(t *testing.T, userID string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, userID, roles, 0)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	return body.Error.Code
}

func createProject(t *testing.T, srv *testServer, pm map[string]string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects", CreateProjectRequest{ID: "P1", Name: "Website"}, pm)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created ProjectResponse
	require.NoError(t, json.Unmarshal(data, &created))
	return created
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	pm := bearer(t, "pm", "project_manager")

	created := createProject(t, srv, pm)
	assert.Equal(t, "planning", created.CurrentStage)
	assert.Equal(t, domain.ProjectPlanning, created.Status)
	require.Len(t, created.Stages, 6)
	assert.Equal(t, domain.StageInProgress, created.Stages[0].Status)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1/transition/check?to_stage=Development", nil, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var check CheckResponse
	require.NoError(t, json.Unmarshal(data, &check))
	assert.True(t, check.Allowed)
	assert.Equal(t, "Planning", check.CurrentStage)

	reason := "scope signed off"
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/P1/transition", TransitionRequest{
		ToStage:            "Development",
		Reason:             &reason,
		ChecklistCompleted: true,
	}, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var moved TransitionResponse
	require.NoError(t, json.Unmarshal(data, &moved))
	assert.Equal(t, "Planning", moved.FromStage)
	assert.Equal(t, "Development", moved.ToStage)
	assert.NotEmpty(t, moved.TransitionID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1", nil, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var project ProjectResponse
	require.NoError(t, json.Unmarshal(data, &project))
	assert.Equal(t, "development", project.CurrentStage)
	assert.Equal(t, domain.ProjectInProgress, project.Status)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1/transitions", nil, bearer(t, "acme", "client"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history.Items, 1)
	assert.Equal(t, moved.TransitionID, history.Items[0].ID)
	assert.Equal(t, "pm", history.Items[0].TransitionedBy)
	require.NotNil(t, history.Items[0].Reason)
	assert.Equal(t, reason, *history.Items[0].Reason)
	assert.True(t, history.Items[0].ChecklistCompleted)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1/activity?event_type=stage.transitioned", nil, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var activity ActivityResponse
	require.NoError(t, json.Unmarshal(data, &activity))
	require.Len(t, activity.Items, 1)
	assert.Equal(t, "pm", activity.Items[0].UserID)
}

func TestTransitionErrorsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	pm := bearer(t, "pm", "project_manager")
	createProject(t, srv, pm)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/P1/transition", TransitionRequest{ToStage: "Deployment Review"}, pm)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", errorCode(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/P1/transition", TransitionRequest{ToStage: "  "}, pm)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/missing/transition", TransitionRequest{ToStage: "Testing"}, pm)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/P1/transition", TransitionRequest{ToStage: "Testing"}, bearer(t, "acme", "client"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", errorCode(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1/transitions", nil, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(data, &history))
	assert.Empty(t, history.Items)
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", errorCode(t, data))

	require.NoError(t, srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:        "k1",
		UserID:    "dev1",
		KeyHash:   repo.HashAPIKey("sf_secret"),
		Roles:     []string{"developer"},
		CreatedAt: "2026-01-01T00:00:00.000000Z",
	}))
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/me", nil, map[string]string{"X-Api-Key": "sf_secret"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "dev1", me.UserID)
	assert.Equal(t, "api_key", me.Source)
	assert.Contains(t, me.Permissions, auth.PermStageRead)
	assert.NotContains(t, me.Permissions, auth.PermStageTransition)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/auth/dev/login", DevLoginRequest{UserID: "pm", Roles: []string{"admin"}}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestNotificationsForTeam(t *testing.T) {
	srv := newTestServer(t)
	pm := bearer(t, "pm", "project_manager")
	createProject(t, srv, pm)
	ctx := context.Background()
	stages, err := srv.Engine.ListStages(ctx, "P1")
	require.NoError(t, err)
	dev1 := "dev1"
	require.NoError(t, srv.Engine.Repo.InsertTask(ctx, nil, domain.Task{ID: "t1", ProjectID: "P1", StageID: &stages[0].ID, AssignedTo: &dev1, Title: "brief", Status: "todo"}))

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/projects/P1/transition", TransitionRequest{ToStage: "Testing"}, pm)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	devAuth := bearer(t, "dev1", "developer")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/me/notifications?unread=true", nil, devAuth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list NotificationListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "P1", list.Items[0].ProjectID)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/me/notifications/"+list.Items[0].ID+"/read", nil, devAuth)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/me/notifications?unread=true", nil, devAuth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Empty(t, list.Items)
}

func TestDeleteProjectRequiresPermission(t *testing.T) {
	srv := newTestServer(t)
	createProject(t, srv, bearer(t, "pm", "project_manager"))

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/projects/P1", nil, bearer(t, "pm", "project_manager"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	admin := bearer(t, "root", "admin")
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/projects/P1", nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/projects/P1", nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.Paths, "/v1/projects/{project_id}/transition")
	assert.Contains(t, doc.Paths, "/v1/projects/{project_id}/transitions")
}
