package convctx

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeCompleter struct {
	output string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, _, _, _ string) (string, error) {
	f.calls++
	return f.output, f.err
}

func TestExtractMergesFacts(t *testing.T) {
	u := NewUpdater(&fakeCompleter{output: `{"user_name":"Ada","favorite_lang":"Go"}`}, "mini")
	current := Context{"user_name": "Ada"}

	updated := u.Extract(context.Background(), "my name is Ada", "Nice to meet you", current)

	if updated["favorite_lang"] != "Go" {
		t.Errorf("new fact missing: %v", updated)
	}
	if updated["user_name"] != "Ada" {
		t.Errorf("contained value must not be duplicated: %q", updated["user_name"])
	}
}

func TestExtractFailureReturnsInputUnchanged(t *testing.T) {
	u := NewUpdater(&fakeCompleter{err: errors.New("upstream 500")}, "mini")
	current := Context{"project": "modelgate", "user_name": "Ada"}
	snapshot := current.Clone()

	updated := u.Extract(context.Background(), "p", "r", current)

	if !reflect.DeepEqual(updated, snapshot) {
		t.Errorf("context changed on failure: %v", updated)
	}
	if !reflect.DeepEqual(current, snapshot) {
		t.Errorf("input context mutated: %v", current)
	}
}

func TestExtractMalformedOutputReturnsInputUnchanged(t *testing.T) {
	for _, output := range []string{"", "not json at all", `["a","b"]`} {
		u := NewUpdater(&fakeCompleter{output: output}, "mini")
		current := Context{"k": "v"}

		updated := u.Extract(context.Background(), "p", "r", current)

		if !reflect.DeepEqual(updated, Context{"k": "v"}) {
			t.Errorf("output %q: context changed: %v", output, updated)
		}
	}
}

func TestExtractUnwrapsFencedOutput(t *testing.T) {
	u := NewUpdater(&fakeCompleter{output: "```json\n{\"city\":\"Oslo\"}\n```"}, "mini")

	updated := u.Extract(context.Background(), "p", "r", Context{})

	if updated["city"] != "Oslo" {
		t.Errorf("fenced JSON not unwrapped: %v", updated)
	}
}

func TestExtractSkipsNonScalarValues(t *testing.T) {
	u := NewUpdater(&fakeCompleter{output: `{"name":"Ada","count":3,"active":true,"nested":{"x":1}}`}, "mini")

	updated := u.Extract(context.Background(), "p", "r", Context{})

	want := Context{"name": "Ada", "count": "3", "active": "true"}
	if !reflect.DeepEqual(updated, want) {
		t.Errorf("updated = %v, want %v", updated, want)
	}
}

func TestNilUpdaterIsInert(t *testing.T) {
	var u *Updater
	current := Context{"k": "v"}
	if got := u.Extract(context.Background(), "p", "r", current); !reflect.DeepEqual(got, current) {
		t.Errorf("nil updater changed context: %v", got)
	}
}

func TestMergeAdditive(t *testing.T) {
	base := Context{"tags": "alpha"}

	merged := base.Merge(Context{"tags": "beta", "new": "value", "blank": "  "})

	if merged["tags"] != "alpha; beta" {
		t.Errorf("existing key must be extended: %q", merged["tags"])
	}
	if merged["new"] != "value" {
		t.Errorf("new key missing: %v", merged)
	}
	if _, ok := merged["blank"]; ok {
		t.Error("blank values must be skipped")
	}
	if base["tags"] != "alpha" {
		t.Error("receiver mutated")
	}
}

func TestMergeSkipsContainedValue(t *testing.T) {
	base := Context{"tags": "alpha; beta"}
	merged := base.Merge(Context{"tags": "beta"})
	if merged["tags"] != "alpha; beta" {
		t.Errorf("contained value duplicated: %q", merged["tags"])
	}
}
