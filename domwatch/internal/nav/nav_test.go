package nav

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

type change struct {
	url   string
	cause Cause
}

func record(t *Tracker) *[]change {
	var got []change
	t.OnChange(func(url string, cause Cause) {
		got = append(got, change{url, cause})
	})
	return &got
}

func TestTracker_EventStream(t *testing.T) {
	tr := NewTracker("https://app.test/", "main")
	got := record(tr)

	events := []any{
		// Same URL: no dispatch.
		&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "main", URL: "https://app.test/"}},
		// pushState.
		&proto.PageNavigatedWithinDocument{FrameID: "main", URL: "https://app.test/inbox"},
		// An iframe navigating is not the page navigating.
		&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "ad", ParentID: "main", URL: "https://ads.test/"}},
		&proto.PageNavigatedWithinDocument{FrameID: "ad", URL: "https://ads.test/#x"},
		// Hash change.
		&proto.PageNavigatedWithinDocument{FrameID: "main", URL: "https://app.test/inbox#42"},
		// Full load with a fragment.
		&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "main", URL: "https://app.test/login", URLFragment: "#top"}},
	}
	for _, e := range events {
		switch e := e.(type) {
		case *proto.PageFrameNavigated:
			tr.FrameNavigated(e)
		case *proto.PageNavigatedWithinDocument:
			tr.NavigatedWithinDocument(e)
		}
	}

	want := []change{
		{"https://app.test/inbox", CauseSameDocument},
		{"https://app.test/inbox#42", CauseSameDocument},
		{"https://app.test/login#top", CauseLoad},
	}
	if len(*got) != len(want) {
		t.Fatalf("changes: got %+v, want %+v", *got, want)
	}
	for i := range want {
		if (*got)[i] != want[i] {
			t.Errorf("change %d: got %+v, want %+v", i, (*got)[i], want[i])
		}
	}
	if tr.URL() != "https://app.test/login#top" {
		t.Errorf("URL: got %q", tr.URL())
	}
}

func TestTracker_LearnsMainFrame(t *testing.T) {
	tr := NewTracker("about:blank", "")
	got := record(tr)

	// Unknown main frame: same-document events cannot be attributed yet.
	if tr.NavigatedWithinDocument(&proto.PageNavigatedWithinDocument{FrameID: "f1", URL: "https://x.test/#a"}) {
		t.Error("dispatched before the main frame was known")
	}
	tr.FrameNavigated(&proto.PageFrameNavigated{Frame: &proto.PageFrame{ID: "f1", URL: "https://x.test/"}})
	tr.NavigatedWithinDocument(&proto.PageNavigatedWithinDocument{FrameID: "f1", URL: "https://x.test/#a"})

	if len(*got) != 2 || (*got)[1].url != "https://x.test/#a" {
		t.Fatalf("changes: %+v", *got)
	}
}

func TestTracker_RemoveHandler(t *testing.T) {
	tr := NewTracker("https://a.test/", "main")
	var first, second int
	remove := tr.OnChange(func(string, Cause) { first++ })
	tr.OnChange(func(string, Cause) { second++ })

	tr.Set("https://a.test/1", CauseSameDocument)
	remove()
	remove()
	tr.Set("https://a.test/2", CauseSameDocument)

	if first != 1 || second != 2 {
		t.Fatalf("calls: first %d second %d", first, second)
	}
	if tr.Set("https://a.test/2", CauseLoad) {
		t.Error("unchanged URL dispatched")
	}
}
