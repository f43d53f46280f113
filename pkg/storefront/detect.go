package storefront

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

type Phase string

const (
	PhaseDetecting Phase = "DETECTING"
	PhaseFound     Phase = "FOUND"
	PhaseReplacing Phase = "REPLACING"
	PhaseDone      Phase = "DONE"
	PhaseNotFound  Phase = "NOT_FOUND"
)

// Slot is one gallery position. Item is what gets hidden; it is the image
// itself when the layout has no per-slide wrapper.
type Slot struct {
	Image *html.Node
	Item  *html.Node
}

type Detection struct {
	Phase     Phase
	Theme     Theme
	Container *html.Node
	Slots     []Slot
}

// galleryPattern matches class, id and data-* names that usually mark a
// product gallery.
var galleryPattern = regexp.MustCompile(`(?i)(gallery|carousel|slider|slideshow|swiper|thumbnails?|product[-_]?(images?|media|photos?))`)

const (
	defaultAncestorDepth = 6
	ancestorPercent      = 80

	// A single product photo is not a gallery; pages below this are left alone.
	minSlots = 2
)

type Detector struct {
	themes        []Theme
	images        imageMatcher
	ancestorDepth int
	fallbackHide  HideStrategy
}

func NewDetector(themes []Theme, productImages *regexp.Regexp, ancestorDepth int, fallbackHide HideStrategy) *Detector {
	if productImages == nil {
		productImages = DefaultProductImagePattern
	}
	if ancestorDepth <= 0 {
		ancestorDepth = defaultAncestorDepth
	}
	if fallbackHide == "" {
		fallbackHide = HideDisplay
	}
	return &Detector{
		themes:        themes,
		images:        imageMatcher{pattern: productImages},
		ancestorDepth: ancestorDepth,
		fallbackHide:  fallbackHide,
	}
}

// Detect runs the fallback chain: known fingerprints, then adaptive name
// matching, then common-ancestor inference.
func (d *Detector) Detect(doc *html.Node) Detection {
	if det, ok := d.known(doc); ok {
		return det
	}
	if det, ok := d.adaptive(doc); ok {
		return det
	}
	if det, ok := d.ancestor(doc); ok {
		return det
	}
	return Detection{Phase: PhaseNotFound}
}

func (d *Detector) known(doc *html.Node) (Detection, bool) {
	for _, t := range d.themes {
		if t.Fingerprint.MatchFirst(doc) == nil {
			continue
		}
		container := t.Container.MatchFirst(doc)
		if container == nil {
			continue
		}

		var slots []Slot
		if t.Item != nil {
			for _, item := range t.Item.MatchAll(container) {
				if item == container {
					continue
				}
				if imgs := d.images.productImages(item); len(imgs) > 0 {
					slots = append(slots, Slot{Image: imgs[0], Item: item})
				}
			}
		} else {
			slots = d.slotsIn(container)
		}
		if len(slots) < minSlots {
			continue
		}
		return Detection{Phase: PhaseFound, Theme: t, Container: container, Slots: slots}, true
	}
	return Detection{}, false
}

func galleryNamed(n *html.Node) bool {
	for _, a := range n.Attr {
		switch {
		case a.Key == "class" || a.Key == "id":
			if galleryPattern.MatchString(a.Val) {
				return true
			}
		case strings.HasPrefix(a.Key, "data-"):
			if galleryPattern.MatchString(a.Key) {
				return true
			}
		}
	}
	return false
}

func (d *Detector) adaptive(doc *html.Node) (Detection, bool) {
	var (
		best      *html.Node
		bestCount int
		bestDepth int
	)
	walk(doc, func(n *html.Node) {
		if !galleryNamed(n) {
			return
		}
		count := len(d.images.productImages(n))
		if count < minSlots {
			return
		}
		nd := depth(n)
		if count > bestCount || (count == bestCount && nd > bestDepth) {
			best, bestCount, bestDepth = n, count, nd
		}
	})
	if best == nil {
		return Detection{}, false
	}
	return d.fallback(ThemeAdaptive, best)
}

func (d *Detector) ancestor(doc *html.Node) (Detection, bool) {
	imgs := d.images.productImages(doc)
	if len(imgs) < minSlots {
		return Detection{}, false
	}
	// ceil(80%) in integers
	need := (len(imgs)*ancestorPercent + 99) / 100

	counts := map[*html.Node]int{}
	for _, img := range imgs {
		p := img.Parent
		for level := 0; level < d.ancestorDepth && p != nil && p.Type == html.ElementNode; level++ {
			counts[p]++
			p = p.Parent
		}
	}

	var (
		best      *html.Node
		bestDepth int
	)
	for n, c := range counts {
		if c < need {
			continue
		}
		if nd := depth(n); best == nil || nd > bestDepth {
			best, bestDepth = n, nd
		}
	}
	if best == nil {
		return Detection{}, false
	}
	return d.fallback(ThemeAncestor, best)
}

func (d *Detector) fallback(kind ThemeKind, container *html.Node) (Detection, bool) {
	slots := d.slotsIn(container)
	if len(slots) < minSlots {
		return Detection{}, false
	}
	return Detection{
		Phase:     PhaseFound,
		Theme:     Theme{Kind: kind, Hide: d.fallbackHide},
		Container: container,
		Slots:     slots,
	}, true
}

// slotsIn treats each direct child of container that holds a product image
// as one slot.
func (d *Detector) slotsIn(container *html.Node) []Slot {
	var slots []Slot
	seen := map[*html.Node]bool{}
	for _, img := range d.images.productImages(container) {
		item := img
		for item.Parent != nil && item.Parent != container {
			item = item.Parent
		}
		if seen[item] {
			continue
		}
		seen[item] = true
		slots = append(slots, Slot{Image: img, Item: item})
	}
	return slots
}
