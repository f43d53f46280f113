package event

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"
	"pixelswap/services/experiment"
	"pixelswap/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB, experiment.Repository) {
	t.Helper()
	models := append(experiment.Models(), &InteractionEvent{})
	db := testutil.NewTestDB(t, models...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := experiment.NewRepository(db)
	svc := NewService(ServiceParams{DB: db, Experiments: repo, Node: node})
	svc.now = func() time.Time { return day }
	return svc, db, repo
}

func seedExperiment(t *testing.T, repo experiment.Repository, status experiment.Status, c experiment.Case) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &experiment.Experiment{
		ID:                      "e1",
		ProductID:               "p1",
		Status:                  status,
		CurrentCase:             c,
		RotationIntervalSeconds: 3600,
		BaseMedia:               []string{"b1"},
		TestMedia:               []string{"t1"},
	}))
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&InteractionEvent{}).Count(&n).Error)
	return n
}

func TestRecordImpressionDeduplicated(t *testing.T) {
	svc, db, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusActive, experiment.CaseTest)
	ctx := context.Background()
	in := Input{SessionID: "s1", EventType: TypeImpression, ProductID: "p1"}

	first, err := svc.Record(ctx, in)
	require.NoError(t, err)
	require.True(t, first.Accepted)
	require.False(t, first.Deduplicated)
	require.NotNil(t, first.ObservedCase)
	require.Equal(t, experiment.CaseTest, *first.ObservedCase)

	second, err := svc.Record(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Accepted)
	require.True(t, second.Deduplicated)

	require.EqualValues(t, 1, countEvents(t, db))

	var stored InteractionEvent
	require.NoError(t, db.First(&stored).Error)
	require.Equal(t, "2026-03-02", stored.EventDay)
	require.NotNil(t, stored.DedupKey)
	require.Equal(t, "s1|e1|2026-03-02", *stored.DedupKey)
	require.Equal(t, "e1", *stored.ExperimentID)
}

func TestRecordImpressionNewDayIsNotDeduplicated(t *testing.T) {
	svc, db, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusActive, experiment.CaseBase)
	ctx := context.Background()
	in := Input{SessionID: "s1", EventType: TypeImpression, ProductID: "p1"}

	_, err := svc.Record(ctx, in)
	require.NoError(t, err)

	svc.now = func() time.Time { return day.Add(24 * time.Hour) }
	res, err := svc.Record(ctx, in)
	require.NoError(t, err)
	require.False(t, res.Deduplicated)
	require.EqualValues(t, 2, countEvents(t, db))
}

func TestRecordCartAndPurchaseNeverDeduplicated(t *testing.T) {
	svc, db, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusActive, experiment.CaseBase)
	ctx := context.Background()
	revenue := 19.5
	qty := 2

	for i := 0; i < 2; i++ {
		res, err := svc.Record(ctx, Input{SessionID: "s1", EventType: TypeAddToCart, ProductID: "p1", VariantID: "red"})
		require.NoError(t, err)
		require.False(t, res.Deduplicated)
	}
	res, err := svc.Record(ctx, Input{SessionID: "s1", EventType: TypePurchase, ProductID: "p1", Revenue: &revenue, Quantity: &qty})
	require.NoError(t, err)
	require.False(t, res.Deduplicated)

	require.EqualValues(t, 3, countEvents(t, db))

	var purchase InteractionEvent
	require.NoError(t, db.Where("event_type = ?", TypePurchase).First(&purchase).Error)
	require.Nil(t, purchase.DedupKey)
	require.InDelta(t, 19.5, *purchase.Revenue, 0.0001)
	require.Equal(t, 2, *purchase.Quantity)
}

func TestRecordServerCaseWinsOverHint(t *testing.T) {
	svc, _, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusActive, experiment.CaseBase)
	hint := experiment.CaseTest

	res, err := svc.Record(context.Background(), Input{SessionID: "s1", EventType: TypeAddToCart, ProductID: "p1", ObservedCase: &hint})
	require.NoError(t, err)
	require.Equal(t, experiment.CaseBase, *res.ObservedCase)
}

func TestRecordHintUsedWithoutActiveExperiment(t *testing.T) {
	svc, db, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusPaused, experiment.CaseTest)
	hint := experiment.CaseTest

	res, err := svc.Record(context.Background(), Input{SessionID: "s1", EventType: TypeImpression, ProductID: "p1", ObservedCase: &hint})
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, *res.ObservedCase)

	var stored InteractionEvent
	require.NoError(t, db.First(&stored).Error)
	require.Nil(t, stored.ExperimentID)
	require.Equal(t, "s1|product:p1|2026-03-02", *stored.DedupKey)
}

func TestRecordNoExperimentNoHint(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Record(context.Background(), Input{SessionID: "s1", EventType: TypeImpression, ProductID: "unknown"})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Nil(t, res.ObservedCase)
}

func TestRecordValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	neg := -1.0
	bad := experiment.Case("MAYBE")

	cases := []Input{
		{EventType: TypeImpression, ProductID: "p1"},
		{SessionID: "s1", EventType: "CLICK", ProductID: "p1"},
		{SessionID: "s1", EventType: TypeImpression},
		{SessionID: "s1", EventType: TypePurchase, ProductID: "p1", Revenue: &neg},
		{SessionID: "s1", EventType: TypeImpression, ProductID: "p1", ObservedCase: &bad},
	}
	for _, in := range cases {
		_, err := svc.Record(context.Background(), in)
		require.Error(t, err)
		require.Equal(t, errutil.StatusValidationFailed, errutil.FromError(err).Code)
	}
	require.EqualValues(t, 0, countEvents(t, db))
}

func TestEventsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, repo := newTestService(t)
	seedExperiment(t, repo, experiment.StatusActive, experiment.CaseTest)

	cfg := &config.Config{}
	cfg.Storefront.AllowedOrigins = []string{"*"}

	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(svc, cfg).Register(r)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/storefront/v1/events", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", "https://shop.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"sessionId":"s1","eventType":"IMPRESSION","productId":"p1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Accepted)
	require.Equal(t, experiment.CaseTest, *res.ObservedCase)

	w = post(`{"sessionId":"s1","eventType":"IMPRESSION","productId":"p1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Deduplicated)

	require.Equal(t, http.StatusBadRequest, post(`{"eventType":"IMPRESSION"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}
