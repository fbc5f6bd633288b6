package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nyashahama/mba-scholarship-backend/internal/api"
	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
	"github.com/nyashahama/mba-scholarship-backend/internal/store"
	"github.com/nyashahama/mba-scholarship-backend/internal/worker"
)

const (
	testFormURL = "https://forms.example.com/apply"
	testSecret  = "test-admin-secret"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubQuerier satisfies db.Querier with in-memory state.
// Fields may be set per-test to control behaviour.
type stubQuerier struct {
	db.Querier // embedded to panic on unimplemented methods

	applications []db.ListApplicationsRow
	funnel       db.GetFunnelStatsRow
	stages       []db.CountSequencesByStageRow
	emailCounts  []db.CountEmailLogByStatusRow

	contacts  []db.CreateContactMessageParams
	scheduled []db.CreateScheduledEmailsParams
	listedBy  []db.ListScheduledEmailsParams

	listErr error
}

func (q *stubQuerier) ListApplications(_ context.Context, p db.ListApplicationsParams) ([]db.ListApplicationsRow, error) {
	if q.listErr != nil {
		return nil, q.listErr
	}
	if int(p.Offset) >= len(q.applications) {
		return nil, nil
	}
	end := min(int(p.Offset+p.Limit), len(q.applications))
	return q.applications[p.Offset:end], nil
}

func (q *stubQuerier) GetFunnelStats(_ context.Context) (db.GetFunnelStatsRow, error) {
	return q.funnel, nil
}

func (q *stubQuerier) CountSequencesByStage(_ context.Context) ([]db.CountSequencesByStageRow, error) {
	return q.stages, nil
}

func (q *stubQuerier) CountEmailLogByStatus(_ context.Context) ([]db.CountEmailLogByStatusRow, error) {
	return q.emailCounts, nil
}

func (q *stubQuerier) CreateContactMessage(_ context.Context, p db.CreateContactMessageParams) (db.ContactMessage, error) {
	q.contacts = append(q.contacts, p)
	return db.ContactMessage{ID: uuid.New(), Name: p.Name, Email: p.Email, Message: p.Message}, nil
}

func (q *stubQuerier) CreateScheduledEmails(_ context.Context, p db.CreateScheduledEmailsParams) ([]db.ScheduledEmail, error) {
	q.scheduled = append(q.scheduled, p)
	out := make([]db.ScheduledEmail, 0, len(p.Emails))
	for _, to := range p.Emails {
		out = append(out, db.ScheduledEmail{
			ID:           uuid.New(),
			Email:        to,
			Subject:      p.Subject,
			Content:      p.Content,
			ScheduledFor: p.ScheduledFor,
			Status:       db.ScheduledEmailStatusPending,
		})
	}
	return out, nil
}

func (q *stubQuerier) ListScheduledEmails(_ context.Context, p db.ListScheduledEmailsParams) ([]db.ScheduledEmail, error) {
	q.listedBy = append(q.listedBy, p)
	return nil, nil
}

// stubStore keeps links keyed by token and mimics the transactional store.
type stubStore struct {
	links     map[uuid.UUID]*db.ApplicationLink
	submitted []store.SubmitApplicationParams
	clickErr  error
}

func (s *stubStore) SubmitApplication(_ context.Context, p store.SubmitApplicationParams) (store.SubmitApplicationResult, error) {
	s.submitted = append(s.submitted, p)
	app := db.ScholarshipApplication{ID: uuid.New(), Name: p.Name, Email: p.Email, Phone: p.Phone, CreatedAt: p.SubmittedAt}
	res := store.SubmitApplicationResult{Application: app}
	if p.QuizComplete {
		res.Link = &db.ApplicationLink{ID: uuid.New(), ApplicationID: app.ID, TrackingToken: uuid.New()}
		res.Sequence = &db.EmailSequence{ID: uuid.New(), ApplicationID: app.ID, Email: p.Email, Name: p.Name}
	}
	return res, nil
}

func (s *stubStore) RecordClick(_ context.Context, token uuid.UUID, now time.Time) (store.ClickResult, error) {
	if s.clickErr != nil {
		return store.ClickResult{}, s.clickErr
	}
	link, ok := s.links[token]
	if !ok {
		return store.ClickResult{}, store.ErrTrackingLinkNotFound
	}
	if link.Clicked {
		return store.ClickResult{Link: *link}, nil
	}
	link.Clicked = true
	link.ClickedAt = sql.NullTime{Time: now, Valid: true}
	return store.ClickResult{Link: *link, FirstClick: true}, nil
}

// stubMailer records deliveries. Addresses in failFor fail to send.
type stubMailer struct {
	delivered   []email.Message
	kinds       []db.EmailKind
	activated   []uuid.UUID
	failFor     map[string]bool
	activateErr error
	delay       time.Duration // per Deliver call; honours ctx
}

func (m *stubMailer) Activate(_ context.Context, app db.ScholarshipApplication, _ db.ApplicationLink, _ db.EmailSequence) error {
	m.activated = append(m.activated, app.ID)
	return m.activateErr
}

func (m *stubMailer) Deliver(ctx context.Context, msg email.Message, kind db.EmailKind, _ int) (string, error) {
	if err := wait(ctx, m.delay); err != nil {
		return "", err
	}
	if m.failFor[msg.To] {
		return "", errors.New("mailbox unavailable")
	}
	m.delivered = append(m.delivered, msg)
	m.kinds = append(m.kinds, kind)
	return "msg_" + msg.To, nil
}

type stubCycler struct {
	result worker.CycleResult
	err    error
	calls  int
	delay  time.Duration
}

func (c *stubCycler) RunCycle(ctx context.Context) (worker.CycleResult, error) {
	c.calls++
	if err := wait(ctx, c.delay); err != nil {
		return worker.CycleResult{}, err
	}
	return c.result, c.err
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

type testDeps struct {
	q       *stubQuerier
	store   *stubStore
	mailer  *stubMailer
	cycler  *stubCycler
	handler http.Handler
}

func newTestServer(t *testing.T, cfgOverrides ...func(*api.Config)) *testDeps {
	t.Helper()

	q := &stubQuerier{}
	st := &stubStore{links: make(map[uuid.UUID]*db.ApplicationLink)}
	ml := &stubMailer{failFor: make(map[string]bool)}
	cy := &stubCycler{}

	cfg := api.Config{
		Env:                "development",
		ApplicationFormURL: testFormURL,
		AdminJWTSecret:     testSecret,
	}
	for _, fn := range cfgOverrides {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := api.NewServer(q, st, ml, cy, quiz.Default(), cfg, logger)

	return &testDeps{
		q:       q,
		store:   st,
		mailer:  ml,
		cycler:  cy,
		handler: handler,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

// adminToken signs an HS256 token carrying claims on top of a valid expiry.
func adminToken(t *testing.T, secret string, claims jwt.MapClaims) map[string]string {
	t.Helper()
	all := jwt.MapClaims{"sub": "admin-1", "exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range claims {
		all[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + signed}
}

func asAdmin(t *testing.T) map[string]string {
	return adminToken(t, testSecret, jwt.MapClaims{"role": "admin"})
}

// completeAnswers picks the first option of every question in the bank.
func completeAnswers() map[string]string {
	answers := make(map[string]string)
	for _, sec := range quiz.Default().Public() {
		for _, q := range sec.Questions {
			answers[q.ID] = q.Options[0].ID
		}
	}
	return answers
}

func seedLink(deps *testDeps) uuid.UUID {
	token := uuid.New()
	deps.store.links[token] = &db.ApplicationLink{ID: uuid.New(), ApplicationID: uuid.New(), TrackingToken: token}
	return token
}

// ─── GET /healthz ─────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

// ─── GET /api/track ───────────────────────────────────────────────────────────

func TestTrackClick_MissingTokenReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/track", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTrackClick_MalformedTokenReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/track?token=not-a-uuid", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTrackClick_UnknownTokenReturns404(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/track?token="+uuid.NewString(), nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestTrackClick_StoreErrorReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.store.clickErr = errors.New("connection reset")
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/track?token="+uuid.NewString(), nil, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestTrackClick_RedirectsAndIsIdempotent(t *testing.T) {
	deps := newTestServer(t)
	token := seedLink(deps)
	path := "/api/track?token=" + token.String()

	rr := doRequest(t, deps.handler, http.MethodGet, path, nil, nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != testFormURL {
		t.Errorf("Location = %q, want %q", got, testFormURL)
	}
	firstClickedAt := deps.store.links[token].ClickedAt

	rr = doRequest(t, deps.handler, http.MethodGet, path, nil, nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("repeat click: expected 302, got %d", rr.Code)
	}
	if deps.store.links[token].ClickedAt != firstClickedAt {
		t.Error("repeat click must not change clicked_at")
	}
}

// ─── GET /api/quiz, POST /api/quiz/progress ──────────────────────────────────

func TestGetQuiz_HidesPoints(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/quiz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "points") {
		t.Error("quiz payload must not expose option points")
	}

	var resp struct {
		Sections []json.RawMessage `json:"sections"`
		Total    int               `json:"total_questions"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Total != quiz.Default().QuestionCount() {
		t.Errorf("total_questions = %d, want %d", resp.Total, quiz.Default().QuestionCount())
	}
	if len(resp.Sections) == 0 {
		t.Error("expected at least one section")
	}
}

func TestQuizProgress_CompleteAnswers(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/quiz/progress",
		map[string]any{"answers": completeAnswers()}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var p quiz.Progress
	decodeJSON(t, rr, &p)
	if !p.Complete || p.Answered != p.Total {
		t.Errorf("expected complete progress, got %+v", p)
	}
}

// ─── POST /api/applications ───────────────────────────────────────────────────

func validApplication() map[string]any {
	return map[string]any{
		"name":         "Ada Lovelace",
		"email":        "  Ada@Example.com ",
		"phone":        "+27 82 555 0100",
		"quiz_answers": completeAnswers(),
		"utm_source":   "newsletter",
	}
}

func TestSubmitApplication_CompleteQuizEnrolsAndActivates(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", validApplication(), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		ApplicationID string `json:"application_id"`
		Quiz          *struct {
			Score    int    `json:"score"`
			MaxScore int    `json:"max_score"`
			Band     string `json:"band"`
		} `json:"quiz"`
	}
	decodeJSON(t, rr, &resp)

	if resp.ApplicationID == "" {
		t.Error("application_id should not be empty")
	}
	if resp.Quiz == nil || resp.Quiz.MaxScore == 0 || resp.Quiz.Band == "" {
		t.Errorf("expected quiz summary, got %+v", resp.Quiz)
	}
	if len(deps.store.submitted) != 1 {
		t.Fatalf("expected one store write, got %d", len(deps.store.submitted))
	}
	got := deps.store.submitted[0]
	if got.Email != "ada@example.com" {
		t.Errorf("email should be normalised, got %q", got.Email)
	}
	if !got.QuizComplete || got.QuizScore != resp.Quiz.Score {
		t.Errorf("store params should carry the server-side score, got %+v", got)
	}
	if len(deps.mailer.activated) != 1 {
		t.Errorf("expected activation, got %d calls", len(deps.mailer.activated))
	}
}

func TestSubmitApplication_ActivationFailureStillReturns201(t *testing.T) {
	deps := newTestServer(t)
	deps.mailer.activateErr = errors.New("resend down")

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", validApplication(), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitApplication_WithoutQuizSkipsActivation(t *testing.T) {
	deps := newTestServer(t)
	body := validApplication()
	delete(body, "quiz_answers")

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.mailer.activated) != 0 {
		t.Error("lead without quiz must not be activated")
	}
	if strings.Contains(rr.Body.String(), `"quiz"`) {
		t.Errorf("response should omit quiz, got %s", rr.Body.String())
	}
}

func TestSubmitApplication_IncompleteQuizReturns400(t *testing.T) {
	deps := newTestServer(t)
	body := validApplication()
	answers := completeAnswers()
	for id := range answers {
		delete(answers, id)
		break
	}
	body["quiz_answers"] = answers

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "quiz incomplete") {
		t.Errorf("unexpected error body: %s", rr.Body.String())
	}
	if len(deps.store.submitted) != 0 {
		t.Error("incomplete quiz must not be stored")
	}
}

func TestSubmitApplication_UnknownOptionReturns400(t *testing.T) {
	deps := newTestServer(t)
	body := validApplication()
	answers := completeAnswers()
	answers["education"] = "phd-from-mars"
	body["quiz_answers"] = answers

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSubmitApplication_ValidationErrors(t *testing.T) {
	cases := map[string]func(map[string]any){
		"missing name":  func(b map[string]any) { delete(b, "name") },
		"bad email":     func(b map[string]any) { b["email"] = "not-an-email" },
		"short phone":   func(b map[string]any) { b["phone"] = "123" },
		"unknown field": func(b map[string]any) { b["coupon"] = "FREE" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			deps := newTestServer(t)
			body := validApplication()
			mutate(body)
			rr := doRequest(t, deps.handler, http.MethodPost, "/api/applications", body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

// ─── POST /api/contact, GET /api/promotion ───────────────────────────────────

func TestContact_StoresMessage(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/contact",
		map[string]string{"name": "Grace", "email": "GRACE@example.com", "message": "When do classes start?"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.q.contacts) != 1 || deps.q.contacts[0].Email != "grace@example.com" {
		t.Errorf("unexpected stored contacts: %+v", deps.q.contacts)
	}
}

func TestContact_MissingMessageReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/contact",
		map[string]string{"name": "Grace", "email": "grace@example.com"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPromotion_NoDeadlineIsExpired(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/promotion", nil, nil)

	var resp struct {
		Deadline *time.Time `json:"deadline"`
		Expired  bool       `json:"expired"`
	}
	decodeJSON(t, rr, &resp)
	if !resp.Expired || resp.Deadline != nil {
		t.Errorf("expected expired with no deadline, got %+v", resp)
	}
}

func TestPromotion_FutureDeadlineCountsDown(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.PromotionDeadline = time.Now().Add(48 * time.Hour)
	})
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/promotion", nil, nil)

	var resp struct {
		SecondsRemaining int64 `json:"seconds_remaining"`
		Expired          bool  `json:"expired"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Expired || resp.SecondsRemaining < 47*3600 {
		t.Errorf("expected ~48h remaining, got %+v", resp)
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

func TestCORS_PreflightReturns204(t *testing.T) {
	deps := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/applications", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("development should echo the request origin")
	}
}

func TestCORS_ProductionUsesAllowedOrigin(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.Env = "production"
		c.AllowedOrigin = "https://scholarship.example.com"
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/applications", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://scholarship.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// ─── ADMIN AUTH ───────────────────────────────────────────────────────────────

func TestAdmin_MissingTokenReturns401(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAdmin_WrongSecretReturns401(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil,
		adminToken(t, "some-other-secret", jwt.MapClaims{"role": "admin"}))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAdmin_ExpiredTokenReturns401(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil,
		adminToken(t, testSecret, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAdmin_NonAdminRoleReturns403(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil,
		adminToken(t, testSecret, jwt.MapClaims{"role": "authenticated"}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdmin_AppMetadataRoleIsAccepted(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil,
		adminToken(t, testSecret, jwt.MapClaims{"app_metadata": map[string]any{"role": "admin"}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ─── GET /api/admin/applications, /stats, /scheduled-emails ─────────────────

func TestListApplications_ClampsLimit(t *testing.T) {
	deps := newTestServer(t)
	deps.q.applications = []db.ListApplicationsRow{
		{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", SequenceStage: sql.NullInt16{Int16: 2, Valid: true}},
		{ID: uuid.New(), Name: "Grace", Email: "grace@example.com"},
	}

	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/applications?limit=5000", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Items []struct {
			Email         string `json:"email"`
			SequenceStage *int   `json:"sequence_stage"`
		} `json:"items"`
		Limit int `json:"limit"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Limit != 200 {
		t.Errorf("limit = %d, want 200", resp.Limit)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].SequenceStage == nil || *resp.Items[0].SequenceStage != 2 {
		t.Errorf("first item stage = %v, want 2", resp.Items[0].SequenceStage)
	}
	if resp.Items[1].SequenceStage != nil {
		t.Error("lead without sequence should report null stage")
	}
}

func TestListApplications_QueryErrorReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.q.listErr = errors.New("db down")
	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/applications", nil, asAdmin(t))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestExportApplications_ReturnsWorkbook(t *testing.T) {
	deps := newTestServer(t)
	deps.q.applications = []db.ListApplicationsRow{{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}}

	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/applications/export", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment;") {
		t.Error("export should be served as an attachment")
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip archive")
	}
}

func TestStats_ComputesRatesAndBuckets(t *testing.T) {
	deps := newTestServer(t)
	deps.q.funnel = db.GetFunnelStatsRow{Applications: 10, QuizCompleted: 8, LinksCreated: 8, LinksClicked: 2}
	deps.q.stages = []db.CountSequencesByStageRow{
		{SequenceStage: 1, Count: 3},
		{SequenceStage: 3, Count: 3},
		{SequenceStage: 2, LinkClicked: true, Count: 2},
	}
	deps.q.emailCounts = []db.CountEmailLogByStatusRow{
		{Kind: db.EmailKindQuizResults, Status: db.EmailStatusSent, Count: 8},
		{Kind: db.EmailKindSequence, Status: db.EmailStatusSent, Count: 12},
		{Kind: db.EmailKindSequence, Status: db.EmailStatusFailed, Count: 1},
	}

	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/stats", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		QuizCompletionRate float64          `json:"quiz_completion_rate"`
		ClickThroughRate   float64          `json:"click_through_rate"`
		SequencesByStage   map[string]int64 `json:"sequences_by_stage"`
		SequencesClicked   int64            `json:"sequences_clicked"`
		EmailsSent         int64            `json:"emails_sent"`
		EmailsFailed       int64            `json:"emails_failed"`
	}
	decodeJSON(t, rr, &resp)

	if resp.QuizCompletionRate != 0.8 || resp.ClickThroughRate != 0.25 {
		t.Errorf("rates = %v / %v", resp.QuizCompletionRate, resp.ClickThroughRate)
	}
	if resp.SequencesByStage["1"] != 3 || resp.SequencesByStage["3"] != 3 || resp.SequencesByStage["0"] != 0 {
		t.Errorf("sequences_by_stage = %v", resp.SequencesByStage)
	}
	if resp.SequencesClicked != 2 {
		t.Errorf("sequences_clicked = %d, want 2", resp.SequencesClicked)
	}
	if resp.EmailsSent != 20 || resp.EmailsFailed != 1 {
		t.Errorf("emails sent/failed = %d/%d", resp.EmailsSent, resp.EmailsFailed)
	}
}

func TestListScheduledEmails_StatusFilter(t *testing.T) {
	deps := newTestServer(t)

	rr := doRequest(t, deps.handler, http.MethodGet, "/api/admin/scheduled-emails?status=bogus", nil, asAdmin(t))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	rr = doRequest(t, deps.handler, http.MethodGet, "/api/admin/scheduled-emails?status=pending", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.q.listedBy) != 1 || deps.q.listedBy[0].Status.String != "pending" || !deps.q.listedBy[0].Status.Valid {
		t.Errorf("unexpected filter: %+v", deps.q.listedBy)
	}
}

// ─── POST /api/admin/emails ──────────────────────────────────────────────────

func TestSendEmails_ImmediatePartialFailure(t *testing.T) {
	deps := newTestServer(t)
	deps.mailer.failFor["bounce@example.com"] = true

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "Deadline reminder",
		"content": "Applications close on Friday.",
		"emails":  []string{"ada@example.com", "ADA@example.com", "bounce@example.com"},
		"trigger": "immediate",
	}, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Sent   int      `json:"sent"`
		Failed int      `json:"failed"`
		Errors []string `json:"errors"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Sent != 1 || resp.Failed != 1 {
		t.Errorf("sent/failed = %d/%d, want 1/1 (duplicates collapse)", resp.Sent, resp.Failed)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "bounce@example.com") {
		t.Errorf("errors = %v", resp.Errors)
	}
	if len(deps.mailer.kinds) != 1 || deps.mailer.kinds[0] != db.EmailKindCustom {
		t.Errorf("kinds = %v", deps.mailer.kinds)
	}
}

func TestSendEmails_ImmediateAllFailedReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.mailer.failFor["bounce@example.com"] = true

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "Deadline reminder",
		"content": "Applications close on Friday.",
		"emails":  []string{"bounce@example.com"},
		"trigger": "immediate",
	}, asAdmin(t))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rr, &resp)
	if !strings.Contains(resp.Error, "mailbox unavailable") {
		t.Errorf("error = %q, want the transport message", resp.Error)
	}
}

func TestSendEmails_ImmediateOutlastsRequestTimeout(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.RequestTimeout = 20 * time.Millisecond
		c.SendTimeout = time.Second
	})
	deps.mailer.delay = 15 * time.Millisecond

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "Deadline reminder",
		"content": "Applications close on Friday.",
		"emails":  []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"},
		"trigger": "immediate",
	}, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Sent != 4 || resp.Failed != 0 {
		t.Errorf("sent/failed = %d/%d, want 4/0", resp.Sent, resp.Failed)
	}
}

func TestSendEmails_ImmediateRecipientCap(t *testing.T) {
	deps := newTestServer(t)
	emails := make([]string, 51)
	for i := range emails {
		emails[i] = fmt.Sprintf("lead%d@example.com", i)
	}

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "s", "content": "c", "emails": emails, "trigger": "immediate",
	}, asAdmin(t))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if len(deps.mailer.delivered) != 0 {
		t.Error("nothing should be sent when the cap is exceeded")
	}

	rr = doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "s", "content": "c", "emails": emails, "trigger": "delayed", "delay": 1,
	}, asAdmin(t))
	if rr.Code != http.StatusCreated {
		t.Fatalf("delayed send of the same list: expected 201, got %d", rr.Code)
	}
}

func TestSendEmails_DelayedSchedulesRows(t *testing.T) {
	deps := newTestServer(t)
	before := time.Now().UTC()

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", map[string]any{
		"subject": "Webinar tomorrow",
		"content": "<p>Join us.</p>",
		"emails":  []string{"ada@example.com", "grace@example.com"},
		"trigger": "delayed",
		"delay":   1.5,
	}, asAdmin(t))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(deps.q.scheduled) != 1 {
		t.Fatalf("expected one insert, got %d", len(deps.q.scheduled))
	}
	got := deps.q.scheduled[0]
	if len(got.Emails) != 2 {
		t.Errorf("recipients = %v", got.Emails)
	}
	want := before.Add(90 * time.Minute)
	if got.ScheduledFor.Before(want) || got.ScheduledFor.After(want.Add(time.Minute)) {
		t.Errorf("scheduled_for = %v, want about %v", got.ScheduledFor, want)
	}
	if len(deps.mailer.delivered) != 0 {
		t.Error("delayed trigger must not send immediately")
	}
}

func TestSendEmails_Validation(t *testing.T) {
	cases := map[string]map[string]any{
		"delayed without delay": {
			"subject": "s", "content": "c", "emails": []string{"ada@example.com"}, "trigger": "delayed",
		},
		"unknown trigger": {
			"subject": "s", "content": "c", "emails": []string{"ada@example.com"}, "trigger": "tomorrow",
		},
		"no recipients": {
			"subject": "s", "content": "c", "emails": []string{}, "trigger": "immediate",
		},
		"bad recipient": {
			"subject": "s", "content": "c", "emails": []string{"nope"}, "trigger": "immediate",
		},
		"negative delay": {
			"subject": "s", "content": "c", "emails": []string{"ada@example.com"}, "trigger": "delayed", "delay": -2,
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			deps := newTestServer(t)
			rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/emails", body, asAdmin(t))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

// ─── POST /api/admin/sequences/advance ───────────────────────────────────────

func TestAdvanceSequences_ReturnsCycleResult(t *testing.T) {
	deps := newTestServer(t)
	deps.cycler.result = worker.CycleResult{Examined: 4, Due: 2, Sent: 2}

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/sequences/advance", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp worker.CycleResult
	decodeJSON(t, rr, &resp)
	if resp.Sent != 2 || deps.cycler.calls != 1 {
		t.Errorf("result = %+v, calls = %d", resp, deps.cycler.calls)
	}
}

func TestAdvanceSequences_OutlastsRequestTimeout(t *testing.T) {
	deps := newTestServer(t, func(c *api.Config) {
		c.RequestTimeout = 20 * time.Millisecond
		c.CycleTimeout = time.Second
	})
	deps.cycler.delay = 60 * time.Millisecond
	deps.cycler.result = worker.CycleResult{Due: 3, Sent: 3}

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/sequences/advance", nil, asAdmin(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp worker.CycleResult
	decodeJSON(t, rr, &resp)
	if resp.Sent != 3 {
		t.Errorf("sent = %d, want 3", resp.Sent)
	}
}

func TestAdvanceSequences_BusyReturns409(t *testing.T) {
	deps := newTestServer(t)
	deps.cycler.err = worker.ErrCycleBusy

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/admin/sequences/advance", nil, asAdmin(t))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}
