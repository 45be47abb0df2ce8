package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blocklist holds CDP resource types (lower-case) that are never loaded.
type blocklist map[string]bool

// aliases maps config names to CDP resource types.
var aliases = map[string]string{
	"images":      "image",
	"fonts":       "font",
	"stylesheets": "stylesheet",
	"scripts":     "script",
}

func newBlocklist(names []string) blocklist {
	bl := make(blocklist, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := aliases[n]; ok {
			n = t
		}
		bl[n] = true
	}
	return bl
}

func (bl blocklist) blocks(t proto.NetworkResourceType) bool {
	return bl[strings.ToLower(string(t))]
}

// blockResources fails matching requests before they leave the browser.
func blockResources(page *rod.Page, bl blocklist) {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if bl.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
