package storefront

import "github.com/andybalholm/cascadia"

type ThemeKind string

const (
	ThemeDawn     ThemeKind = "dawn"
	ThemeDebut    ThemeKind = "debut"
	ThemePrestige ThemeKind = "prestige"
	ThemeImpulse  ThemeKind = "impulse"
	ThemeTurbo    ThemeKind = "turbo"
	// ThemeAdaptive and ThemeAncestor are the fallbacks used when no
	// fingerprint matches.
	ThemeAdaptive ThemeKind = "adaptive"
	ThemeAncestor ThemeKind = "ancestor"
)

// HideStrategy controls how surplus slots are taken out of view.
type HideStrategy string

const (
	HideDisplay   HideStrategy = "display"
	HideOffscreen HideStrategy = "offscreen"
	HideRemove    HideStrategy = "remove"
)

// Theme is the selector set for one storefront layout. Fingerprint decides
// whether the theme applies; Container and Item locate the gallery.
type Theme struct {
	Kind        ThemeKind
	Fingerprint cascadia.Selector
	Container   cascadia.Selector
	// Item is the per-slot wrapper that gets hidden. Nil means the image
	// itself is the slot.
	Item cascadia.Selector
	Hide HideStrategy
}

func mustTheme(kind ThemeKind, fingerprint, container, item string, hide HideStrategy) Theme {
	t := Theme{
		Kind:        kind,
		Fingerprint: cascadia.MustCompile(fingerprint),
		Container:   cascadia.MustCompile(container),
		Hide:        hide,
	}
	if item != "" {
		t.Item = cascadia.MustCompile(item)
	}
	return t
}

// KnownThemes is checked in order; the first fingerprint match wins.
// Slider themes measure slide widths, so they hide off-screen instead of
// collapsing the slide.
var KnownThemes = []Theme{
	mustTheme(ThemeDawn, "media-gallery, .product__media-list", ".product__media-list", ".product__media-item", HideDisplay),
	mustTheme(ThemePrestige, ".Product__Slideshow", ".Product__Slideshow", ".Product__SlideItem", HideOffscreen),
	mustTheme(ThemeImpulse, ".product__main-photos", ".product__main-photos", ".product-main-slide", HideOffscreen),
	mustTheme(ThemeTurbo, ".product_gallery.flickity-enabled", ".product_gallery", ".gallery-cell", HideRemove),
	mustTheme(ThemeDebut, ".product-single__photos", ".product-single__photos", ".product-single__photo-wrapper", HideDisplay),
}
