package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := ParseDocument(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func productImg(i int) string {
	return fmt.Sprintf(`<img src="https://cdn.shopify.com/s/files/1/products/p%d.jpg" srcset="https://cdn.shopify.com/s/files/1/products/p%d_600.jpg 600w" sizes="50vw" loading="lazy">`, i, i)
}

func dawnPage(slots int) string {
	var b strings.Builder
	b.WriteString(`<html><body><header><img src="/assets/logo.png"></header><media-gallery><ul class="product__media-list">`)
	for i := 0; i < slots; i++ {
		b.WriteString(`<li class="product__media-item">` + productImg(i) + `</li>`)
	}
	b.WriteString(`</ul></media-gallery><form action="/cart/add" method="post"><button name="add">Add</button></form></body></html>`)
	return b.String()
}

func adaptivePage() string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="page"><div class="product-gallery-list">`)
	for i := 0; i < 5; i++ {
		b.WriteString(`<div class="cell">` + productImg(i) + `</div>`)
	}
	b.WriteString(`</div><p>Description</p></div></body></html>`)
	return b.String()
}

func targetURLs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://media.pixelswap.test/media/t%d.jpg", i)
	}
	return out
}

func detector() *Detector {
	return NewDetector(KnownThemes, nil, 0, "")
}

func TestDetectAdaptiveGalleryList(t *testing.T) {
	doc := parse(t, adaptivePage())

	det := detector().Detect(doc)
	require.Equal(t, PhaseFound, det.Phase)
	require.Equal(t, ThemeAdaptive, det.Theme.Kind)
	require.Len(t, det.Slots, 5)
	class, _ := attr(det.Container, "class")
	require.Equal(t, "product-gallery-list", class)
}

func TestDetectKnownTheme(t *testing.T) {
	doc := parse(t, dawnPage(4))

	det := detector().Detect(doc)
	require.Equal(t, PhaseFound, det.Phase)
	require.Equal(t, ThemeDawn, det.Theme.Kind)
	require.Len(t, det.Slots, 4)
	for _, s := range det.Slots {
		class, _ := attr(s.Item, "class")
		require.Equal(t, "product__media-item", class)
	}
}

func TestDetectCommonAncestor(t *testing.T) {
	doc := parse(t, `<html><body>
		<div id="main"><div class="wrap">
			<span>`+productImg(0)+`</span><span>`+productImg(1)+`</span>
			<span>`+productImg(2)+`</span><span>`+productImg(3)+`</span>
		</div></div>
		<aside>`+productImg(9)+`</aside>
	</body></html>`)

	det := detector().Detect(doc)
	require.Equal(t, PhaseFound, det.Phase)
	require.Equal(t, ThemeAncestor, det.Theme.Kind)
	class, _ := attr(det.Container, "class")
	require.Equal(t, "wrap", class)
	require.Len(t, det.Slots, 4)
}

func TestDetectNotFound(t *testing.T) {
	pages := map[string]string{
		"no product images": `<html><body><img src="/assets/logo.png"><div class="gallery"><img src="/icons/a.svg"></div></body></html>`,
		"single photo":      `<html><body><div class="main"><div class="wrap">` + productImg(1) + `</div></div></body></html>`,
		"single dawn slide": dawnPage(1),
		"single in gallery": `<html><body><div class="product-gallery">` + productImg(0) + `</div></body></html>`,
	}
	for name, src := range pages {
		t.Run(name, func(t *testing.T) {
			doc := parse(t, src)
			before, err := Render(doc)
			require.NoError(t, err)

			det := detector().Detect(doc)
			require.Equal(t, PhaseNotFound, det.Phase)
			require.Empty(t, det.Slots)

			after, err := Render(doc)
			require.NoError(t, err)
			require.Equal(t, before, after)
		})
	}
}

func countHidden(doc *html.Node) int {
	n := 0
	walk(doc, func(el *html.Node) {
		if isHidden(el) {
			n++
		}
	})
	return n
}

func countImages(doc *html.Node) int {
	n := 0
	walk(doc, func(el *html.Node) {
		if el.Data == "img" {
			n++
		}
	})
	return n
}

func TestReplaceThreeTargetsSevenSlots(t *testing.T) {
	doc := parse(t, dawnPage(7))
	d := detector()
	det := d.Detect(doc)
	require.Len(t, det.Slots, 7)
	require.Equal(t, HideDisplay, det.Theme.Hide)

	targets := targetURLs(3)
	require.Equal(t, 7, Replace(det, targets))

	for i, s := range det.Slots[:3] {
		src, _ := attr(s.Image, "src")
		require.Equal(t, targets[i], src)
		_, hasSrcset := attr(s.Image, "srcset")
		require.False(t, hasSrcset)
		_, hasSizes := attr(s.Image, "sizes")
		require.False(t, hasSizes)
		loading, _ := attr(s.Image, "loading")
		require.Equal(t, "eager", loading)
		marker, _ := attr(s.Image, MarkerAttr)
		require.Equal(t, MarkerSwapped, marker)
	}
	for _, s := range det.Slots[3:] {
		require.True(t, isHidden(s.Item))
		style, _ := attr(s.Item, "style")
		require.Contains(t, style, "display:none")
	}
	require.Equal(t, 4, countHidden(doc))
	require.Equal(t, 8, countImages(doc))

	before, err := Render(doc)
	require.NoError(t, err)

	again := d.Detect(doc)
	require.Len(t, again.Slots, 7)
	require.Equal(t, 0, Replace(again, targets))

	after, err := Render(doc)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestReplaceRemoveStrategy(t *testing.T) {
	doc := parse(t, adaptivePage())
	d := NewDetector(nil, nil, 0, HideRemove)
	det := d.Detect(doc)
	require.Len(t, det.Slots, 5)

	require.Equal(t, 5, Replace(det, targetURLs(2)))
	require.Equal(t, 2, countImages(doc))

	again := d.Detect(doc)
	require.Len(t, again.Slots, 2)
	require.Equal(t, 0, Replace(again, targetURLs(2)))
}

func TestReplaceRestoresHiddenSlotWhenTargetsGrow(t *testing.T) {
	doc := parse(t, dawnPage(3))
	det := detector().Detect(doc)
	require.Equal(t, 3, Replace(det, targetURLs(1)))

	require.Equal(t, 1, Replace(detector().Detect(doc), targetURLs(2)))
	require.Equal(t, 1, countHidden(doc))
	_, hasStyle := attr(det.Slots[1].Item, "style")
	require.False(t, hasStyle)
}

type fakeCases struct {
	ac    *ActiveCase
	err   error
	calls int
}

func (f *fakeCases) ActiveCase(context.Context, string, string) (*ActiveCase, error) {
	f.calls++
	return f.ac, f.err
}

type fakeSink struct {
	events []Event
	err    error
}

func (f *fakeSink) Send(_ context.Context, ev Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) count(typ string) int {
	n := 0
	for _, ev := range f.events {
		if ev.EventType == typ {
			n++
		}
	}
	return n
}

func testCase() *string {
	c := "TEST"
	return &c
}

func TestAdapterRunSwapsOnceAndSendsOneImpression(t *testing.T) {
	doc := parse(t, dawnPage(7))
	cases := &fakeCases{ac: &ActiveCase{ObservedCase: testCase(), GalleryMediaURLs: targetURLs(3), ExperimentID: "e1"}}
	sink := &fakeSink{}
	page := PageContext{SessionID: "s1", ProductID: "p1", URL: "https://shop.test/products/p1"}

	a := NewAdapter(doc, page, cases, sink)
	out := a.Run(context.Background())
	require.Equal(t, PhaseDone, out.Phase)
	require.Equal(t, ThemeDawn, out.Theme)
	require.Equal(t, 7, out.Slots)
	require.Equal(t, 7, out.Mutations)
	require.Equal(t, "TEST", *out.ObservedCase)
	require.True(t, out.ImpressionSent)

	second := a.Run(context.Background())
	require.Equal(t, out, second)
	require.Equal(t, 1, cases.calls)

	mut := a.OnMutation()
	require.Equal(t, 0, mut.Mutations)

	require.Equal(t, 1, sink.count(EventImpression))
	require.Equal(t, "TEST", *sink.events[0].ObservedCase)
}

func TestAdapterAddToCart(t *testing.T) {
	doc := parse(t, dawnPage(2))
	sink := &fakeSink{}
	a := NewAdapter(doc, PageContext{SessionID: "s1", ProductID: "p1", VariantID: "red", URL: "/p1"},
		&fakeCases{ac: &ActiveCase{ObservedCase: testCase(), GalleryMediaURLs: targetURLs(2)}}, sink)
	a.Run(context.Background())

	require.Len(t, a.AddToCartTargets(), 2)
	require.True(t, a.OnAddToCart(context.Background(), "", 2))
	require.Equal(t, 1, sink.count(EventAddToCart))

	ev := sink.events[len(sink.events)-1]
	require.Equal(t, "red", ev.VariantID)
	require.Equal(t, 2, *ev.Quantity)
	require.Equal(t, "TEST", *ev.ObservedCase)
}

func TestAdapterFailsOpen(t *testing.T) {
	doc := parse(t, dawnPage(4))
	before, err := Render(doc)
	require.NoError(t, err)

	sink := &fakeSink{err: errors.New("offline")}
	a := NewAdapter(doc, PageContext{SessionID: "s1", ProductID: "p1", URL: "/p1"},
		&fakeCases{err: context.DeadlineExceeded}, sink)

	out := a.Run(context.Background())
	require.Equal(t, PhaseDone, out.Phase)
	require.Equal(t, 0, out.Mutations)
	require.Nil(t, out.ObservedCase)
	require.False(t, out.ImpressionSent)
	require.Equal(t, 0, a.OnMutation().Mutations)

	// add-to-cart wiring marks forms, so compare only the gallery
	after, err := Render(doc)
	require.NoError(t, err)
	galleryOf := func(s string) string {
		start := strings.Index(s, "<media-gallery>")
		end := strings.Index(s, "</media-gallery>")
		return s[start:end]
	}
	require.Equal(t, galleryOf(before), galleryOf(after))
}

func TestAdapterNullCaseLeavesPage(t *testing.T) {
	doc := parse(t, adaptivePage())
	sink := &fakeSink{}
	a := NewAdapter(doc, PageContext{SessionID: "s1", ProductID: "p1", URL: "/p1"}, &fakeCases{ac: &ActiveCase{}}, sink)

	out := a.Run(context.Background())
	require.Equal(t, PhaseDone, out.Phase)
	require.Equal(t, 0, out.Mutations)
	require.Equal(t, 1, sink.count(EventImpression))
	require.Nil(t, sink.events[0].ObservedCase)
}

func TestAdapterCaseWithoutURLsLeavesGallery(t *testing.T) {
	doc := parse(t, dawnPage(4))
	before, err := Render(doc)
	require.NoError(t, err)

	sink := &fakeSink{}
	a := NewAdapter(doc, PageContext{SessionID: "s1", ProductID: "p1", URL: "/p1"},
		&fakeCases{ac: &ActiveCase{ObservedCase: testCase()}}, sink)

	out := a.Run(context.Background())
	require.Equal(t, PhaseDone, out.Phase)
	require.Equal(t, 4, out.Slots)
	require.Equal(t, 0, out.Mutations)
	require.Equal(t, 0, countHidden(doc))
	require.Equal(t, 0, a.OnMutation().Mutations)
	require.Equal(t, 1, sink.count(EventImpression))

	after, err := Render(doc)
	require.NoError(t, err)
	galleryOf := func(s string) string {
		return s[strings.Index(s, "<media-gallery>"):strings.Index(s, "</media-gallery>")]
	}
	require.Equal(t, galleryOf(before), galleryOf(after))
}

func TestAdapterNotFoundStillCountsImpression(t *testing.T) {
	doc := parse(t, `<html><body><p>no images</p></body></html>`)
	sink := &fakeSink{}
	a := NewAdapter(doc, PageContext{SessionID: "s1", ProductID: "p1", URL: "/p1"},
		&fakeCases{ac: &ActiveCase{ObservedCase: testCase(), GalleryMediaURLs: targetURLs(1)}}, sink)

	out := a.Run(context.Background())
	require.Equal(t, PhaseNotFound, out.Phase)
	require.Equal(t, 1, sink.count(EventImpression))
}

func TestTargetsPutsHeroFirst(t *testing.T) {
	ac := &ActiveCase{GalleryMediaURLs: []string{"a", "b", "c"}, HeroMediaURL: "b"}
	require.Equal(t, []string{"b", "a", "c"}, targets(ac))
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.Equal(t, "p1", r.URL.Query().Get("product_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observedCase":"BASE","galleryMediaUrls":["u1"],"experimentId":"e1"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Retries: 3, Backoff: time.Millisecond, Timeout: time.Second})
	ac, err := c.ActiveCase(context.Background(), "p1", "")
	require.NoError(t, err)
	require.Equal(t, "BASE", *ac.ObservedCase)
	require.Equal(t, []string{"u1"}, ac.GalleryMediaURLs)
	require.EqualValues(t, 3, calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Retries: 3, Backoff: time.Millisecond})
	_, err := c.ActiveCase(context.Background(), "", "")
	require.ErrorIs(t, err, errStatus)
	require.EqualValues(t, 1, calls.Load())
}

func TestClientHardTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Retries: 5, Backoff: time.Millisecond, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.ActiveCase(context.Background(), "p1", "")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestClientSend(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storefront/v1/events", r.URL.Path)
		got.Store(r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true,"observedCase":null,"deduplicated":false}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, c.Send(context.Background(), Event{SessionID: "s1", EventType: EventImpression, ProductID: "p1"}))
	require.Equal(t, http.MethodPost, got.Load())
}
