package session

import (
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/protocol"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	d := gesture.NewDebouncer(gesture.DefaultDebounceConfig())

	newPipeline := func(id string) *Pipeline {
		return New(Config{
			SessionID:  id,
			Remote:     "127.0.0.1:9",
			Codec:      protocol.JSON(),
			Classifier: gesture.Noop{},
			Debouncer:  d,
		})
	}

	r.Add(newPipeline("b"), "cbor", epoch.Add(time.Second))
	r.Add(newPipeline("a"), "json", epoch)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}

	list := r.List()
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List order = %s, %s; want oldest first", list[0].ID, list[1].ID)
	}
	if list[1].Encoding != "cbor" || list[0].Remote != "127.0.0.1:9" {
		t.Errorf("info = %+v", list)
	}

	r.Remove("a")
	r.Remove("missing")
	if r.Len() != 1 {
		t.Errorf("Len = %d after remove, want 1", r.Len())
	}
}
