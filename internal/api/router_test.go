package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/bargom/hivemind/internal/api/types"
	"github.com/bargom/hivemind/internal/auth"
	"github.com/bargom/hivemind/internal/health"
	"github.com/bargom/hivemind/internal/workflow/repository"
	"github.com/bargom/hivemind/pkg/metrics"
)

const secret = "audit-secret"

type fixture struct {
	repo   *repository.StateRepository
	router http.Handler
	ids    map[string]string
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()
	return newTracedFixture(t, withAuth, nil)
}

func newTracedFixture(t *testing.T, withAuth bool, tp trace.TracerProvider) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewStateRepository(repository.NewMemoryStore())

	f := &fixture{repo: repo, ids: map[string]string{}}
	for _, community := range []string{"c1", "c2"} {
		inst, err := repo.CreateInstance(ctx, repository.CreateParams{
			CommunityID: community,
			Route:       repository.Route{Source: "discord"},
			Question:    repository.Question{Message: "What is X?"},
		})
		require.NoError(t, err)
		require.NoError(t, repo.AppendStep(ctx, inst.ID, repository.StepFlowInitialization, map[string]any{"enableAnswerSkipping": false}))
		f.ids[community] = inst.ID
	}
	require.NoError(t, repo.SetResponse(ctx, f.ids["c1"], repository.Response{Message: "X is a thing."}))
	require.NoError(t, repo.MarkCompleted(ctx, f.ids["c1"]))

	cfg := RouterConfig{
		Workflows: repo,
		Health:    health.NewHandler(health.NewRegistry("test")),
		Metrics:   metrics.NewRegistry(metrics.DefaultConfig()),

		TracerProvider: tp,
	}
	if withAuth {
		authCfg := auth.DefaultConfig()
		authCfg.Secret = secret
		v, err := auth.NewValidator(authCfg, nil)
		require.NoError(t, err)
		cfg.Auth = auth.NewMiddleware(v)
	}
	f.router = NewRouter(cfg)
	return f
}

func (f *fixture) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestListWorkflows(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get(t, "/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list types.ListResponse[types.WorkflowSummary]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 2)
	assert.Equal(t, types.DefaultLimit, list.Limit)

	rec = f.get(t, "/workflows?community_id=c1&status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, f.ids["c1"], list.Data[0].ID)
	assert.True(t, list.Data[0].Answered)
	assert.NotContains(t, rec.Body.String(), "What is X?")

	rec = f.get(t, "/workflows?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflow(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get(t, "/workflows/"+f.ids["c1"], "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inst repository.WorkflowInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inst))
	assert.Equal(t, repository.StatusCompleted, inst.Status)
	require.NotNil(t, inst.Response)
	assert.Equal(t, "X is a thing.", inst.Response.Message)

	rec = f.get(t, "/workflows/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowSteps(t *testing.T) {
	f := newFixture(t, false)

	rec := f.get(t, "/workflows/"+f.ids["c2"]+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var steps types.StepsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	assert.Equal(t, f.ids["c2"], steps.WorkflowID)
	require.NotEmpty(t, steps.Steps)
	assert.Equal(t, repository.StepInitialization, steps.Steps[0].StepName)
	assert.Equal(t, repository.StepFlowInitialization, steps.Steps[len(steps.Steps)-1].StepName)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusOK, f.get(t, "/health", "").Code)
	rec := f.get(t, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthScopesCommunities(t *testing.T) {
	f := newFixture(t, true)
	viewer := token(t, jwt.MapClaims{"sub": "u1", "communities": []string{"c1"}})
	admin := token(t, jwt.MapClaims{"sub": "root", "roles": []string{"admin"}})

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/workflows", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/workflows", viewer).Code)
	assert.Equal(t, http.StatusForbidden, f.get(t, "/workflows?community_id=c2", viewer).Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/workflows?community_id=c1", viewer).Code)

	assert.Equal(t, http.StatusOK, f.get(t, "/workflows/"+f.ids["c1"], viewer).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workflows/"+f.ids["c2"], viewer).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workflows/"+f.ids["c2"]+"/steps", viewer).Code)

	assert.Equal(t, http.StatusOK, f.get(t, "/workflows", admin).Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/workflows/"+f.ids["c2"], admin).Code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, false)
	rec := f.get(t, "/workflows", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := newTracedFixture(t, false, tp)

	require.Equal(t, http.StatusOK, f.get(t, "/workflows", "").Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "hivemind-audit", spans[0].Name())
}
