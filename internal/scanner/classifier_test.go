package scanner

import (
	"strings"
	"testing"
)

// fakeField is an in-memory Field.
type fakeField struct {
	value   string
	focused int
}

func (f *fakeField) Value() string      { return f.value }
func (f *fakeField) SetValue(s string)  { f.value = s }
func (f *fakeField) Clear()             { f.value = "" }
func (f *fakeField) Focus()             { f.focused++ }

type countingFeedback struct {
	success int
	errors  int
}

func (c *countingFeedback) Success() { c.success++ }
func (c *countingFeedback) Error()   { c.errors++ }

func typeToken(c *Classifier, token string) {
	for _, r := range token {
		c.KeyPress(r)
	}
	c.PressEnter()
}

func TestEnterEmitsCompletedScan(t *testing.T) {
	field := &fakeField{}
	fb := &countingFeedback{}
	c := New(Config{}, fb)

	var scans []string
	c.Attach(field, func(token string) { scans = append(scans, token) })

	if field.focused != 1 {
		t.Errorf("expected Attach to focus the field")
	}

	typeToken(c, "ABC123")

	if len(scans) != 1 || scans[0] != "ABC123" {
		t.Fatalf("expected one scan of ABC123, got %v", scans)
	}
	if field.value != "" {
		t.Errorf("expected field cleared after scan, got %q", field.value)
	}
	if fb.success != 1 {
		t.Errorf("expected one success signal, got %d", fb.success)
	}
}

func TestEnterIgnoresEmptyField(t *testing.T) {
	field := &fakeField{}
	c := New(Config{}, nil)

	var scans []string
	c.Attach(field, func(token string) { scans = append(scans, token) })

	c.PressEnter()
	field.SetValue("   ")
	c.PressEnter()

	if len(scans) != 0 {
		t.Errorf("expected no scans for empty input, got %v", scans)
	}
}

func TestTokenIsTrimmed(t *testing.T) {
	field := &fakeField{value: "  XY-99  "}
	c := New(Config{}, nil)

	var got string
	c.Attach(field, func(token string) { got = token })
	c.PressEnter()

	if got != "XY-99" {
		t.Errorf("expected trimmed token XY-99, got %q", got)
	}
}

func TestOverlongTokenIsTruncated(t *testing.T) {
	field := &fakeField{value: strings.Repeat("A", 60)}
	c := New(Config{MaxLength: 50}, nil)

	var got string
	c.Attach(field, func(token string) { got = token })
	c.PressEnter()

	if len(got) != 50 {
		t.Errorf("expected token truncated to 50 chars, got %d", len(got))
	}
}

func TestMinLengthGate(t *testing.T) {
	field := &fakeField{value: "AB"}
	c := New(Config{MinLength: 3}, nil)

	scans := 0
	c.Attach(field, func(token string) { scans++ })
	c.PressEnter()

	if scans != 0 {
		t.Errorf("expected token below min length to be ignored")
	}
	if field.value != "AB" {
		t.Errorf("expected field untouched on rejected input, got %q", field.value)
	}
}

func TestSubmitReadsFieldWithoutEnter(t *testing.T) {
	field := &fakeField{}
	c := New(Config{}, nil)

	var got string
	c.Attach(field, func(token string) { got = token })

	// Camera-decoded value injected programmatically.
	field.SetValue("5012345678900")
	c.Submit()

	if got != "5012345678900" {
		t.Errorf("expected submitted token, got %q", got)
	}

	// Empty submit is a no-op.
	got = ""
	c.Submit()
	if got != "" {
		t.Errorf("expected no scan on empty submit, got %q", got)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	field := &fakeField{value: "ZZZ"}
	c := New(Config{}, nil)

	scans := 0
	c.Attach(field, func(token string) { scans++ })
	c.Detach()
	c.Detach()

	c.PressEnter()
	c.Submit()
	c.KeyPress('X')

	if scans != 0 {
		t.Errorf("expected no scans after detach, got %d", scans)
	}
}

func TestAttachReplacesPreviousBinding(t *testing.T) {
	first := &fakeField{value: "FIRST"}
	second := &fakeField{value: "SECOND"}
	c := New(Config{}, nil)

	var scans []string
	c.Attach(first, func(token string) { scans = append(scans, "1:"+token) })
	c.Attach(second, func(token string) { scans = append(scans, "2:"+token) })

	c.PressEnter()

	if len(scans) != 1 || scans[0] != "2:SECOND" {
		t.Fatalf("expected only the second binding to fire, got %v", scans)
	}
	if first.value != "FIRST" {
		t.Errorf("expected first field untouched, got %q", first.value)
	}
}

func TestCallbackMayReattach(t *testing.T) {
	field := &fakeField{value: "TOKEN"}
	next := &fakeField{}
	c := New(Config{}, nil)

	c.Attach(field, func(token string) {
		// Workflow steps re-attach the classifier to the next field.
		c.Attach(next, nil)
	})
	c.PressEnter()

	if next.focused != 1 {
		t.Errorf("expected re-attach inside callback to focus the next field")
	}
}
