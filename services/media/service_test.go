package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelswap/pkg/catalog"
	"pixelswap/pkg/catalog/mock"
	"pixelswap/services/experiment"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type memAssets struct {
	assets []experiment.MediaAsset
}

func (m *memAssets) UpsertMediaAssets(_ context.Context, assets []experiment.MediaAsset) error {
	m.assets = append(m.assets, assets...)
	return nil
}

func newTestService(t *testing.T) (*Service, *mock.MockClient, *memAssets) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	assets := &memAssets{}
	svc := New(client, assets, Options{
		MaxRetries:      2,
		AttemptTimeout:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
	return svc, client, assets
}

func uploaded(ids ...string) []catalog.Media {
	out := make([]catalog.Media, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.Media{ID: id, URL: "https://cdn/" + id + ".jpg"})
	}
	return out
}

func okGallery(ids []string) catalog.GalleryResult {
	res := catalog.GalleryResult{ProductID: "p1"}
	for _, id := range ids {
		res.Items = append(res.Items, catalog.ItemResult{MediaID: id, OK: true})
	}
	return res
}

func TestAssignReportsPartialHeroFailure(t *testing.T) {
	svc, client, assets := newTestService(t)
	ctx := context.Background()
	gallery := []string{"t1", "t2", "t3"}

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1", "t1", "t2", "t3"), nil)
	client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).Return(okGallery(gallery), nil)
	client.EXPECT().SetVariantHero(gomock.Any(), "p1", "blue", "t1").
		Return(catalog.HeroResult{VariantID: "blue", MediaID: "t1", OK: true}, nil)
	client.EXPECT().SetVariantHero(gomock.Any(), "p1", "green", "t2").
		Return(catalog.HeroResult{}, &catalog.APIError{StatusCode: 404, Message: "variant not found"})
	client.EXPECT().SetVariantHero(gomock.Any(), "p1", "red", "t3").
		Return(catalog.HeroResult{VariantID: "red", MediaID: "t3", OK: true}, nil)

	report, err := svc.Assign(ctx, Assignment{
		ProductID: "p1",
		Gallery:   gallery,
		Heroes:    map[string]string{"red": "t3", "green": "t2", "blue": "t1"},
	})
	require.NoError(t, err)
	require.Len(t, report.Gallery.Items, 3)
	require.Equal(t, []string{"blue", "red"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "green", report.Failed[0].VariantID)
	require.Equal(t, []string{"green"}, report.FailedVariants())
	require.Len(t, assets.assets, 4)
}

func TestAssignRetriesTransientGalleryFailure(t *testing.T) {
	svc, client, _ := newTestService(t)
	gallery := []string{"b1"}

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1"), nil)
	gomock.InOrder(
		client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).
			Return(catalog.GalleryResult{}, catalog.ErrTransient),
		client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).
			Return(okGallery(gallery), nil),
	)

	report, err := svc.Assign(context.Background(), Assignment{ProductID: "p1", Gallery: gallery})
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	require.Empty(t, report.Succeeded)
}

func TestAssignGivesUpAfterBoundedRetries(t *testing.T) {
	svc, client, _ := newTestService(t)
	gallery := []string{"b1"}

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1"), nil)
	client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).
		Return(catalog.GalleryResult{}, catalog.ErrTransient).Times(3)

	_, err := svc.Assign(context.Background(), Assignment{ProductID: "p1", Gallery: gallery})
	require.Error(t, err)
	require.True(t, errors.Is(err, catalog.ErrTransient))
}

func TestAssignDoesNotRetryPermanentFailure(t *testing.T) {
	svc, client, _ := newTestService(t)
	gallery := []string{"b1"}

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1"), nil)
	client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).
		Return(catalog.GalleryResult{}, &catalog.APIError{StatusCode: 422, Message: "bad order"}).Times(1)

	_, err := svc.Assign(context.Background(), Assignment{ProductID: "p1", Gallery: gallery})
	var apiErr *catalog.APIError
	require.True(t, errors.As(err, &apiErr))
}

func TestAssignRejectsUnknownMedia(t *testing.T) {
	svc, client, _ := newTestService(t)

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1"), nil)

	_, err := svc.Assign(context.Background(), Assignment{
		ProductID: "p1",
		Gallery:   []string{"b1", "t9"},
		Heroes:    map[string]string{"red": "t8"},
	})
	require.True(t, errors.Is(err, ErrMissingMedia))
	require.Contains(t, err.Error(), "t8,t9")
}

func TestAssignTreatsRejectedGalleryItemsAsFailure(t *testing.T) {
	svc, client, _ := newTestService(t)
	gallery := []string{"b1", "b2"}

	client.EXPECT().ListProductMedia(gomock.Any(), "p1").Return(uploaded("b1", "b2"), nil)
	client.EXPECT().SetGalleryMedia(gomock.Any(), "p1", gallery).Return(catalog.GalleryResult{
		Items: []catalog.ItemResult{{MediaID: "b1", OK: true}, {MediaID: "b2", OK: false, Error: "processing"}},
	}, nil)

	_, err := svc.Assign(context.Background(), Assignment{ProductID: "p1", Gallery: gallery})
	require.True(t, errors.Is(err, ErrGalleryRejected))
}
