// Package scanner turns keystrokes on a text field into discrete scan
// events. Hardware barcode scanners type rapidly and terminate with an
// Enter keystroke; the classifier treats Enter as the sole completion
// signal, so human-typed input completes the same way (or via Submit,
// which also serves camera-decoded tokens injected programmatically).
package scanner

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Field is the text input a classifier is bound to. A terminal prompt,
// a UI input, or a test fake can implement it.
type Field interface {
	// Value returns the field's current text.
	Value() string

	// SetValue replaces the field's text.
	SetValue(s string)

	// Clear empties the field.
	Clear()

	// Focus directs subsequent keystrokes to the field.
	Focus()
}

// Feedback signals scan outcomes to the operator (haptic, audio).
type Feedback interface {
	Success()
	Error()
}

// NopFeedback is a Feedback that does nothing.
type NopFeedback struct{}

func (NopFeedback) Success() {}
func (NopFeedback) Error()   {}

// Config tunes token acceptance.
type Config struct {
	// MinLength and MaxLength bound accepted token lengths. Tokens
	// longer than MaxLength are truncated, not rejected.
	MinLength int
	MaxLength int

	// ScanTimeout is the inter-keystroke gap below which input would
	// be considered scanner-typed. It is recorded but not consulted:
	// Enter-termination is the only completion signal.
	ScanTimeout time.Duration
}

const (
	defaultMinLength   = 1
	defaultMaxLength   = 50
	defaultScanTimeout = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.MinLength <= 0 {
		c.MinLength = defaultMinLength
	}
	if c.MaxLength <= 0 {
		c.MaxLength = defaultMaxLength
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = defaultScanTimeout
	}
	return c
}

// ScanFunc receives one completed, trimmed scan token.
type ScanFunc func(token string)

// Classifier binds to one Field at a time and emits completed scan
// tokens. All methods are safe for concurrent use.
type Classifier struct {
	cfg      Config
	feedback Feedback

	mu      sync.Mutex
	field   Field
	onScan  ScanFunc
	lastKey time.Time
}

// New creates a classifier. A nil feedback means no operator feedback.
func New(cfg Config, feedback Feedback) *Classifier {
	if feedback == nil {
		feedback = NopFeedback{}
	}
	return &Classifier{cfg: cfg.withDefaults(), feedback: feedback}
}

// Attach binds the classifier to a field, replacing any previous
// binding, clears buffered state, and focuses the field.
func (c *Classifier) Attach(field Field, onScan ScanFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.field = field
	c.onScan = onScan
	c.lastKey = time.Time{}
	field.Focus()
}

// Detach unbinds the field and callback. Idempotent.
func (c *Classifier) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.field = nil
	c.onScan = nil
	c.lastKey = time.Time{}
}

// KeyPress records a printable keystroke, appending it to the field.
func (c *Classifier) KeyPress(r rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.field == nil {
		return
	}
	c.field.SetValue(c.field.Value() + string(r))
	c.lastKey = time.Now()
}

// PressEnter handles the Enter keystroke: if the field's trimmed value
// is at least MinLength, it is emitted as a completed scan. Enter's
// default action is consumed either way.
func (c *Classifier) PressEnter() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.field == nil {
		return
	}

	token := strings.TrimSpace(c.field.Value())
	if len(token) < c.cfg.MinLength {
		return
	}
	c.complete(token)
}

// Submit reads the field's current value directly, without requiring
// Enter, and emits it if non-empty. This serves both a typed-input
// confirm button and camera-decoded tokens injected via SetValue.
func (c *Classifier) Submit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.field == nil {
		return
	}

	token := strings.TrimSpace(c.field.Value())
	if token == "" {
		return
	}
	c.complete(token)
}

// complete finishes one scan: truncate overlong tokens, clear the
// field, signal feedback, and invoke the callback. Caller holds mu.
func (c *Classifier) complete(token string) {
	if len(token) > c.cfg.MaxLength {
		log.Printf("[Scanner] Token too long (%d chars), truncating to %d", len(token), c.cfg.MaxLength)
		token = token[:c.cfg.MaxLength]
	}

	c.field.Clear()
	c.feedback.Success()

	if c.onScan != nil {
		// Release the lock for the callback: handlers may re-attach.
		onScan := c.onScan
		c.mu.Unlock()
		onScan(token)
		c.mu.Lock()
	}
}

// Value returns the bound field's current trimmed value, or "" when
// detached.
func (c *Classifier) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.field == nil {
		return ""
	}
	return strings.TrimSpace(c.field.Value())
}
