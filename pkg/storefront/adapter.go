// Package storefront swaps product gallery images inside a rendered page and
// reports what the shopper saw. It never returns errors to its caller: any
// failure leaves the page as it was.
package storefront

import (
	"context"
	"regexp"
	"sync"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	EventImpression = "IMPRESSION"
	EventAddToCart  = "ADD_TO_CART"

	addToCartAttr = "data-pixelswap-atc"
)

var addToCartSelector = cascadia.MustCompile(`form[action*="/cart/add"], button[name="add"], [data-add-to-cart]`)

// PageContext is everything the adapter knows about the page view. The
// session id is issued by the storefront and persists across page views.
type PageContext struct {
	SessionID string
	ProductID string
	VariantID string
	URL       string
}

type ActiveCase struct {
	ObservedCase     *string  `json:"observedCase"`
	GalleryMediaURLs []string `json:"galleryMediaUrls,omitempty"`
	HeroMediaURL     string   `json:"heroMediaUrl,omitempty"`
	ExperimentID     string   `json:"experimentId,omitempty"`
}

type Event struct {
	SessionID    string   `json:"sessionId"`
	EventType    string   `json:"eventType"`
	ProductID    string   `json:"productId"`
	VariantID    string   `json:"variantId,omitempty"`
	Revenue      *float64 `json:"revenue,omitempty"`
	Quantity     *int     `json:"quantity,omitempty"`
	ObservedCase *string  `json:"observedCase,omitempty"`
}

type CaseSource interface {
	ActiveCase(ctx context.Context, productID, variantID string) (*ActiveCase, error)
}

type EventSink interface {
	Send(ctx context.Context, ev Event) error
}

type Outcome struct {
	Phase          Phase
	Theme          ThemeKind
	Slots          int
	Mutations      int
	ObservedCase   *string
	ImpressionSent bool
}

type Option func(*Adapter)

func WithThemes(themes []Theme) Option {
	return func(a *Adapter) { a.themes = themes }
}

func WithProductImagePattern(re *regexp.Regexp) Option {
	return func(a *Adapter) { a.pattern = re }
}

func WithFallbackHide(h HideStrategy) Option {
	return func(a *Adapter) { a.fallbackHide = h }
}

func WithAncestorDepth(n int) Option {
	return func(a *Adapter) { a.ancestorDepth = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// Adapter handles one page lifecycle. Create a new one per page view.
type Adapter struct {
	doc    *html.Node
	page   PageContext
	cases  CaseSource
	events EventSink
	log    *zap.Logger

	themes        []Theme
	pattern       *regexp.Regexp
	fallbackHide  HideStrategy
	ancestorDepth int
	detector      *Detector

	mu             sync.Mutex
	inFlight       bool
	processed      map[string]struct{}
	impressionSent bool
	active         *ActiveCase
	last           Outcome
}

func NewAdapter(doc *html.Node, page PageContext, cases CaseSource, events EventSink, opts ...Option) *Adapter {
	a := &Adapter{
		doc:       doc,
		page:      page,
		cases:     cases,
		events:    events,
		log:       zap.L(),
		themes:    KnownThemes,
		processed: map[string]struct{}{},
		last:      Outcome{Phase: PhaseDetecting},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.detector = NewDetector(a.themes, a.pattern, a.ancestorDepth, a.fallbackHide)
	a.log = a.log.With(zap.String("product_id", page.ProductID), zap.String("page", page.URL))
	return a
}

func (a *Adapter) enter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight {
		return false
	}
	a.inFlight = true
	return true
}

func (a *Adapter) leave(out Outcome) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight = false
	a.last = out
	return out
}

// Last returns the outcome of the most recent pass.
func (a *Adapter) Last() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Run is the page-load entry point. It detects the gallery, resolves the
// active case, swaps images and records one impression. Calls while a pass
// is in flight or after the page was processed return the last outcome.
func (a *Adapter) Run(ctx context.Context) Outcome {
	if !a.enter() {
		return a.Last()
	}
	if _, done := a.processed[a.page.URL]; done {
		return a.leave(a.last)
	}

	a.wireAddToCart()

	det := a.detector.Detect(a.doc)
	out := Outcome{Phase: det.Phase, Theme: det.Theme.Kind, Slots: len(det.Slots)}

	ac, err := a.cases.ActiveCase(ctx, a.page.ProductID, a.page.VariantID)
	if err != nil {
		a.log.Debug("active case unavailable, leaving page untouched", zap.Error(err))
		ac = nil
	}
	if ac != nil {
		out.ObservedCase = ac.ObservedCase
	}
	a.mu.Lock()
	a.active = ac
	a.mu.Unlock()

	switch {
	case det.Phase == PhaseNotFound:
		a.log.Debug("no gallery detected")
	case ac == nil || ac.ObservedCase == nil:
		out.Phase = PhaseDone
	case len(targets(ac)) == 0:
		a.log.Warn("active case has no media urls, leaving gallery untouched")
		out.Phase = PhaseDone
	default:
		out.Phase = PhaseReplacing
		out.Mutations = Replace(det, targets(ac))
		out.Phase = PhaseDone
	}

	out.ImpressionSent = a.impression(ctx, out.ObservedCase)
	a.processed[a.page.URL] = struct{}{}
	return a.leave(out)
}

// OnMutation re-applies the resolved case after the host page changed the
// DOM. It never touches the network and is a no-op once the gallery matches.
func (a *Adapter) OnMutation() Outcome {
	if !a.enter() {
		return a.Last()
	}
	prev := a.last
	if a.active == nil || a.active.ObservedCase == nil || len(targets(a.active)) == 0 {
		return a.leave(prev)
	}

	det := a.detector.Detect(a.doc)
	if det.Phase == PhaseNotFound {
		a.log.Debug("gallery vanished after mutation")
		return a.leave(prev)
	}
	a.wireAddToCart()
	prev.Theme = det.Theme.Kind
	prev.Slots = len(det.Slots)
	prev.Mutations = Replace(det, targets(a.active))
	prev.Phase = PhaseDone
	return a.leave(prev)
}

// OnAddToCart records an add-to-cart for the page's product.
func (a *Adapter) OnAddToCart(ctx context.Context, variantID string, quantity int) bool {
	if variantID == "" {
		variantID = a.page.VariantID
	}
	ev := Event{
		SessionID: a.page.SessionID,
		EventType: EventAddToCart,
		ProductID: a.page.ProductID,
		VariantID: variantID,
	}
	if quantity > 0 {
		ev.Quantity = &quantity
	}
	a.mu.Lock()
	if a.active != nil {
		ev.ObservedCase = a.active.ObservedCase
	}
	a.mu.Unlock()
	return a.send(ctx, ev)
}

func (a *Adapter) impression(ctx context.Context, observed *string) bool {
	a.mu.Lock()
	if a.impressionSent {
		a.mu.Unlock()
		return true
	}
	a.impressionSent = true
	a.mu.Unlock()

	return a.send(ctx, Event{
		SessionID:    a.page.SessionID,
		EventType:    EventImpression,
		ProductID:    a.page.ProductID,
		VariantID:    a.page.VariantID,
		ObservedCase: observed,
	})
}

func (a *Adapter) send(ctx context.Context, ev Event) bool {
	if a.events == nil || a.page.SessionID == "" {
		return false
	}
	if err := a.events.Send(ctx, ev); err != nil {
		a.log.Debug("event not delivered", zap.String("event_type", ev.EventType), zap.Error(err))
		return false
	}
	return true
}

// AddToCartTargets returns the forms and buttons wired for add-to-cart.
func (a *Adapter) AddToCartTargets() []*html.Node {
	var out []*html.Node
	walk(a.doc, func(n *html.Node) {
		if _, ok := attr(n, addToCartAttr); ok {
			out = append(out, n)
		}
	})
	return out
}

func (a *Adapter) wireAddToCart() {
	for _, n := range addToCartSelector.MatchAll(a.doc) {
		if _, ok := attr(n, addToCartAttr); !ok {
			setAttr(n, addToCartAttr, a.page.ProductID)
		}
	}
}

// targets puts the variant hero first, then the gallery without it.
func targets(ac *ActiveCase) []string {
	if ac.HeroMediaURL == "" {
		return ac.GalleryMediaURLs
	}
	out := make([]string, 0, len(ac.GalleryMediaURLs)+1)
	out = append(out, ac.HeroMediaURL)
	for _, u := range ac.GalleryMediaURLs {
		if u != ac.HeroMediaURL {
			out = append(out, u)
		}
	}
	return out
}
