package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/talentflow/api"
	dbembed "github.com/garnizeh/talentflow/db"
	"github.com/garnizeh/talentflow/internal/config"
	dbpkg "github.com/garnizeh/talentflow/internal/db"
	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	sqlite "github.com/garnizeh/talentflow/internal/repository/sqlite"
	"github.com/garnizeh/talentflow/pkg/models"
)

type fakeReanalyzer struct {
	analysis *models.AnalysisResult
	err      error
}

func (f *fakeReanalyzer) Reanalyze(_ context.Context, fp string) (*models.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.analysis
	a.Fingerprint = fp
	return &a, nil
}

type testEnv struct {
	router *mux.Router
	db     *dbpkg.DB
	repo   *sqlite.SQLiteRepo
	mgr    *lifecycle.Manager
	rean   *fakeReanalyzer
	token  string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	d, err := dbpkg.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbembed.Migrations, dbembed.SeedFiles); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	mgr := lifecycle.New(repo, nil)
	rean := &fakeReanalyzer{analysis: &models.AnalysisResult{
		Version:          2,
		Responsibilities: []string{"Build services"},
		Seniority:        models.SenioritySenior,
	}}

	queue := jobs.NewRepository(d)
	disp := dispatch.New(&dispatch.LogSender{}, repo, repo, mgr, queue, []dispatch.Channel{&dispatch.LogChannel{}}, nil)

	cfg := &config.Config{
		JWTSecret:     "test-secret",
		TokenDuration: time.Hour,
	}
	router := api.SetupRoutes(cfg, "test", "now", api.Deps{
		Repo:      repo.Aggregate(),
		Queue:     queue,
		Lifecycle: mgr,
		Notifier:  disp,
		Rean:      rean,
	})

	env := &testEnv{router: router, db: d, repo: repo, mgr: mgr, rean: rean}
	env.token = env.signup(t, "Op", "op@talentflow.test", "hunter22")
	return env
}

func (e *testEnv) signup(t *testing.T, name, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name, "email": email, "password": password})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/auth/signup", bytes.NewReader(body))
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return resp.Token
}

// do runs an authenticated request against the router.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// notifyJobs counts queued notification jobs whose payload mentions event.
func (e *testEnv) notifyJobs(t *testing.T, event string) int {
	t.Helper()
	var n int
	row := e.db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM jobs WHERE type = 'notify' AND payload LIKE ?`, "%"+event+"%")
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count notify jobs: %v", err)
	}
	return n
}

func (e *testEnv) seedLead(t *testing.T, fp string) *models.Lead {
	t.Helper()
	ctx := context.Background()
	if _, err := e.repo.CreatePosting(ctx, &models.Posting{
		Fingerprint:  fp,
		Platform:     "djinni",
		URL:          "https://djinni.co/jobs/" + fp,
		Title:        "Go Developer",
		Organization: "Acme",
	}); err != nil {
		t.Fatalf("create posting: %v", err)
	}
	lead, err := e.mgr.CreateLead(ctx, fp, "proposal body")
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return lead
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
