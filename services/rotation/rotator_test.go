package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelswap/services/experiment"
	"pixelswap/services/media"
	"pixelswap/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeMedia struct {
	calls  []media.Assignment
	err    error
	failed map[string]bool
}

func (f *fakeMedia) Assign(_ context.Context, a media.Assignment) (media.Report, error) {
	f.calls = append(f.calls, a)
	if f.err != nil {
		return media.Report{}, f.err
	}
	var report media.Report
	for v, m := range a.Heroes {
		if f.failed[v] {
			report.Failed = append(report.Failed, media.HeroFailure{VariantID: v, MediaID: m, Reason: "boom"})
			continue
		}
		report.Succeeded = append(report.Succeeded, v)
	}
	return report, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context, string) error {
	c.n++
	return nil
}

type fixture struct {
	repo    experiment.Repository
	media   *fakeMedia
	inv     *countingInvalidator
	rotator *Rotator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := experiment.NewRepository(testutil.NewTestDB(t, experiment.Models()...))
	fm := &fakeMedia{failed: map[string]bool{}}
	inv := &countingInvalidator{}
	r := NewRotator(Params{Repository: repo, Media: fm, Invalidator: inv})
	r.now = func() time.Time { return t0 }
	return &fixture{repo: repo, media: fm, inv: inv, rotator: r}
}

func (f *fixture) seed(t *testing.T, id string, status experiment.Status, next *time.Time) {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), &experiment.Experiment{
		ID:                      id,
		ProductID:               "prod-" + id,
		Status:                  status,
		CurrentCase:             experiment.CaseBase,
		RotationIntervalSeconds: 3600,
		NextRotationAt:          next,
		BaseMedia:               []string{"b1", "b2"},
		TestMedia:               []string{"t1", "t2"},
		Overrides: []experiment.VariantOverride{
			{VariantID: "red", BaseHeroMedia: "b1", TestHeroMedia: "t1"},
			{VariantID: "blue", BaseHeroMedia: "b2", TestHeroMedia: "t2"},
		},
	}))
}

func at(t time.Time) *time.Time { return &t }

func TestRunDueRotatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0.Add(-time.Minute)))
	f.seed(t, "e2", experiment.StatusActive, at(t0.Add(time.Hour)))
	f.seed(t, "e3", experiment.StatusPaused, nil)

	summary, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Rotated: 1}, summary)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, got.CurrentCase)
	require.True(t, got.LastRotatedAt.Equal(t0))
	require.True(t, got.NextRotationAt.Equal(t0.Add(time.Hour)))

	require.Len(t, f.media.calls, 1)
	require.Equal(t, []string{"t1", "t2"}, f.media.calls[0].Gallery)
	require.Equal(t, map[string]string{"red": "t1", "blue": "t2"}, f.media.calls[0].Heroes)
	require.Equal(t, 1, f.inv.n)

	summary, err = f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)
}

func TestConcurrentClaimsRotateExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0))

	due, err := f.repo.ListDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Both invocations read the same snapshot before either claims it.
	first := f.rotator.process(ctx, due[0], t0)
	second := f.rotator.process(ctx, due[0], t0.Add(time.Second))

	require.Equal(t, ResultRotated, first.Result)
	require.Equal(t, ResultSkipped, second.Result)
	require.Len(t, f.media.calls, 1)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, got.CurrentCase)
}

func TestFailedAssignmentKeepsClaimAndFlagsAttention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0))
	f.media.err = errors.New("catalog down")

	summary, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Failed: 1}, summary)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseBase, got.CurrentCase)
	require.True(t, got.NeedsAttention)
	require.Contains(t, got.AttentionReason, "catalog down")
	require.True(t, got.NextRotationAt.Equal(t0.Add(time.Hour)))

	// The next window retries and clears the flag.
	f.media.err = nil
	f.rotator.now = func() time.Time { return t0.Add(time.Hour) }
	summary, err = f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Rotated)

	got, err = f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, got.CurrentCase)
	require.False(t, got.NeedsAttention)
	require.Empty(t, got.AttentionReason)
}

func TestPartialHeroFailureAdvancesAndFlagsVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0))
	f.media.failed["blue"] = true

	summary, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Rotated)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, got.CurrentCase)
	flags := map[string]bool{}
	for _, o := range got.Overrides {
		flags[o.VariantID] = o.HeroFailed
	}
	require.Equal(t, map[string]bool{"blue": true, "red": false}, flags)

	// A later successful window clears the flag.
	delete(f.media.failed, "blue")
	f.rotator.now = func() time.Time { return t0.Add(time.Hour) }
	_, err = f.rotator.RunDue(ctx)
	require.NoError(t, err)
	got, err = f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	for _, o := range got.Overrides {
		require.False(t, o.HeroFailed)
	}
}

func TestMissedWindowsRotateOnceFromNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0.Add(-5*time.Hour)))

	summary, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Rotated)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.CaseTest, got.CurrentCase)
	require.True(t, got.NextRotationAt.Equal(t0.Add(time.Hour)))
}

func TestOverrideUsesRotationPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0.Add(30*time.Minute)))

	out, err := f.rotator.Override(ctx, "e1", experiment.CaseTest)
	require.NoError(t, err)
	require.Equal(t, ResultRotated, out.Result)
	require.Equal(t, experiment.CaseTest, out.Case)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.True(t, got.LastRotatedAt.Equal(t0))
	require.True(t, got.NextRotationAt.Equal(t0.Add(time.Hour)))
	require.Len(t, f.media.calls, 1)
}

func TestOverrideRequiresActive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "e1", experiment.StatusPaused, nil)

	_, err := f.rotator.Override(context.Background(), "e1", experiment.CaseTest)
	require.True(t, errors.Is(err, ErrNotActive))
	require.Empty(t, f.media.calls)

	_, err = f.rotator.Override(context.Background(), "missing", experiment.CaseTest)
	require.True(t, errors.Is(err, experiment.ErrNotFound))
}

func TestCompleteRestoresBaseMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0))
	_, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)

	out, err := f.rotator.Complete(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, ResultRotated, out.Result)

	last := f.media.calls[len(f.media.calls)-1]
	require.Equal(t, []string{"b1", "b2"}, last.Gallery)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.StatusCompleted, got.Status)
	require.Equal(t, experiment.CaseBase, got.CurrentCase)
	require.Nil(t, got.NextRotationAt)

	_, err = f.rotator.Complete(ctx, "e1")
	require.True(t, errors.Is(err, experiment.ErrInvalidTransition))
}

func TestFailedCompleteKeepsExperimentRotating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "e1", experiment.StatusActive, at(t0.Add(-time.Minute)))
	f.media.err = errors.New("catalog down")

	out, err := f.rotator.Complete(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, ResultFailed, out.Result)

	got, err := f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.StatusActive, got.Status)
	require.NotNil(t, got.NextRotationAt)
	require.True(t, got.NextRotationAt.Equal(t0.Add(time.Hour)))
	require.True(t, got.NeedsAttention)

	f.media.err = nil
	f.rotator.now = func() time.Time { return t0.Add(10 * time.Hour) }
	summary, err := f.rotator.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Rotated: 1}, summary)

	f.rotator.now = func() time.Time { return t0.Add(10*time.Hour + time.Minute) }
	out, err = f.rotator.Complete(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, ResultRotated, out.Result)

	got, err = f.repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, experiment.StatusCompleted, got.Status)
	require.Nil(t, got.NextRotationAt)
	require.False(t, got.NeedsAttention)
}
