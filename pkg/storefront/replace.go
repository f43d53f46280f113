package storefront

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	MarkerAttr        = "data-pixelswap"
	MarkerSwapped     = "swapped"
	MarkerHidden      = "hidden"
	swappedSourceAttr = "data-pixelswap-src"
	savedStyleAttr    = "data-pixelswap-style"
)

var responsiveAttrs = []string{"srcset", "sizes", "data-srcset"}

// Replace puts targets into the first slots and hides the rest. It returns
// the number of slots it touched; a repeat call with the same targets
// touches none.
func Replace(det Detection, targets []string) int {
	mutations := 0
	for i, slot := range det.Slots {
		if i < len(targets) {
			if swap(slot, targets[i]) {
				mutations++
			}
			continue
		}
		if hide(slot, det.Theme.Hide) {
			mutations++
		}
	}
	return mutations
}

func swap(slot Slot, target string) bool {
	img := slot.Image
	marker, _ := attr(img, MarkerAttr)
	current, _ := attr(img, swappedSourceAttr)
	if marker == MarkerSwapped && current == target && !isHidden(slot.Item) {
		return false
	}

	unhide(slot.Item)
	setAttr(img, "src", target)
	if _, ok := attr(img, "data-src"); ok {
		setAttr(img, "data-src", target)
	}
	for _, key := range responsiveAttrs {
		removeAttr(img, key)
	}
	setAttr(img, "loading", "eager")

	if p := img.Parent; p != nil && p.DataAtom == atom.Picture {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.DataAtom == atom.Source {
				removeAttr(c, "srcset")
				removeAttr(c, "data-srcset")
			}
		}
	}

	setAttr(img, MarkerAttr, MarkerSwapped)
	setAttr(img, swappedSourceAttr, target)
	return true
}

func isHidden(n *html.Node) bool {
	v, _ := attr(n, MarkerAttr)
	return v == MarkerHidden
}

func hide(slot Slot, strategy HideStrategy) bool {
	item := slot.Item
	if isHidden(item) {
		return false
	}

	switch strategy {
	case HideRemove:
		if item.Parent == nil {
			return false
		}
		item.Parent.RemoveChild(item)
		return true
	case HideOffscreen:
		addStyle(item, "visibility:hidden;position:absolute;left:-10000px")
	default:
		addStyle(item, "display:none !important")
	}
	setAttr(item, "aria-hidden", "true")
	setAttr(item, MarkerAttr, MarkerHidden)
	return true
}

func addStyle(n *html.Node, decl string) {
	style, _ := attr(n, "style")
	setAttr(n, savedStyleAttr, style)
	style = strings.TrimRight(strings.TrimSpace(style), ";")
	if style != "" {
		style += ";"
	}
	setAttr(n, "style", style+decl)
}

func unhide(n *html.Node) {
	if !isHidden(n) {
		return
	}
	style, _ := attr(n, savedStyleAttr)
	if style == "" {
		removeAttr(n, "style")
	} else {
		setAttr(n, "style", style)
	}
	removeAttr(n, savedStyleAttr)
	removeAttr(n, "aria-hidden")
	removeAttr(n, MarkerAttr)
}
