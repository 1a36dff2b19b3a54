package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"stocktake-api/internal/model"
	"stocktake-api/internal/repository"
)

// Step identifies a position in the counting workflow.
type Step string

const (
	StepIdentify       Step = "identify_item"
	StepItemInfo       Step = "item_info"
	StepProductBarcode Step = "product_barcode"
	StepQuantity       Step = "quantity"
	StepConfirm        Step = "confirm"
)

// ErrInvalidStep is returned when an operation is requested from a step
// that does not support it.
var ErrInvalidStep = errors.New("operation not valid in current step")

// ErrNoPendingItem is returned when a double-count confirmation is
// answered but no confirmation is pending.
var ErrNoPendingItem = errors.New("no pending item confirmation")

// ErrInvalidInput is returned for rejected operation input, wrapped
// with a description of what was wrong.
var ErrInvalidInput = errors.New("invalid input")

// Backend is the persistence surface the controller drives. Lookups and
// saves go through here; the controller itself holds only in-progress
// state for the item currently being counted.
type Backend interface {
	FindItem(ctx context.Context, sessionID, token string) (*model.Item, error)
	LogUnknownBarcode(ctx context.Context, sessionID, barcode, operator string) error
	SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error
}

// State is a snapshot of a controller, safe to serialize. Notice carries
// a non-fatal message produced by the transition that returned it (an
// unknown-barcode log entry, a count mismatch warning); it is not part
// of the persistent controller state.
type State struct {
	Step            Step        `json:"step"`
	SessionID       string      `json:"session_id"`
	Operator        string      `json:"operator"`
	Item            *model.Item `json:"item,omitempty"`
	PendingItem     *model.Item `json:"pending_item,omitempty"`
	ProductBarcode  string      `json:"product_barcode"`
	ExpectedBarcode string      `json:"expected_barcode"`
	Quantity        int         `json:"quantity"`
	Notice          string      `json:"notice,omitempty"`
}

// Controller owns the workflow state for one operator in one session.
// All transitions are mutex-guarded; no other component mutates the
// in-progress item state.
type Controller struct {
	mu        sync.Mutex
	backend   Backend
	sessionID string
	operator  string

	step     Step
	item     *model.Item
	pending  *model.Item
	barcode  string
	expected string
	quantity int
}

// NewController starts at StepIdentify with no item in progress.
func NewController(backend Backend, sessionID, operator string) *Controller {
	return &Controller{
		backend:   backend,
		sessionID: sessionID,
		operator:  operator,
		step:      StepIdentify,
	}
}

// reset clears all per-item transient state and returns to StepIdentify.
// Caller holds the lock.
func (c *Controller) reset() {
	c.step = StepIdentify
	c.item = nil
	c.pending = nil
	c.barcode = ""
	c.expected = ""
	c.quantity = 0
}

func (c *Controller) snapshot(notice string) State {
	return State{
		Step:            c.step,
		SessionID:       c.sessionID,
		Operator:        c.operator,
		Item:            c.item,
		PendingItem:     c.pending,
		ProductBarcode:  c.barcode,
		ExpectedBarcode: c.expected,
		Quantity:        c.quantity,
		Notice:          notice,
	}
}

// State returns the current snapshot without a notice.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot("")
}

// Scan resolves a scanned token while identifying an item. A miss on
// both the primary and SKU lookups records an unknown barcode and stays
// in StepIdentify. A hit on an already-counted item parks the item
// behind a confirmation prompt instead of advancing.
func (c *Controller) Scan(ctx context.Context, token string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepIdentify {
		return c.snapshot(""), ErrInvalidStep
	}
	if c.pending != nil {
		return c.snapshot(""), fmt.Errorf("%w: confirmation pending for %s", ErrInvalidInput, c.pending.ID)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return c.snapshot(""), fmt.Errorf("%w: empty scan token", ErrInvalidInput)
	}

	item, err := c.backend.FindItem(ctx, c.sessionID, token)
	if errors.Is(err, repository.ErrNotFound) {
		if logErr := c.backend.LogUnknownBarcode(ctx, c.sessionID, token, c.operator); logErr != nil {
			log.Printf("[Workflow] Failed to log unknown barcode %s: %v", token, logErr)
			return c.snapshot(""), logErr
		}
		return c.snapshot(fmt.Sprintf("barcode %s not found, logged", token)), nil
	}
	if err != nil {
		return c.snapshot(""), err
	}

	if item.Modified {
		c.pending = item
		return c.snapshot(fmt.Sprintf("item %s already counted, confirm to continue", item.ID)), nil
	}

	c.item = item
	c.step = StepItemInfo
	return c.snapshot(""), nil
}

// ConfirmContinue accepts the double-count prompt and advances to the
// item info step with the parked item.
func (c *Controller) ConfirmContinue() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return c.snapshot(""), ErrNoPendingItem
	}
	c.item = c.pending
	c.pending = nil
	c.step = StepItemInfo
	return c.snapshot(""), nil
}

// ConfirmGoBack declines the double-count prompt. Nothing about the
// item or session is touched.
func (c *Controller) ConfirmGoBack() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return c.snapshot(""), ErrNoPendingItem
	}
	c.pending = nil
	return c.snapshot(""), nil
}

// Continue advances a forward edge that needs no input: item info to
// product barcode, and quantity to confirm.
func (c *Controller) Continue() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepItemInfo:
		c.barcode = c.item.ProductBarcode
		c.step = StepProductBarcode
	case StepQuantity:
		c.step = StepConfirm
	default:
		return c.snapshot(""), ErrInvalidStep
	}
	return c.snapshot(""), nil
}

// SkipItem abandons the current item from the info step. No state is
// persisted for the skipped item.
func (c *Controller) SkipItem() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepItemInfo {
		return c.snapshot(""), ErrInvalidStep
	}
	c.reset()
	return c.snapshot(""), nil
}

// SetProductBarcode records a scanned or typed product barcode. It also
// becomes the expected value for scan-to-count.
func (c *Controller) SetProductBarcode(value string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepProductBarcode {
		return c.snapshot(""), ErrInvalidStep
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return c.snapshot(""), fmt.Errorf("%w: empty product barcode", ErrInvalidInput)
	}
	c.barcode = value
	c.expected = value
	c.step = StepQuantity
	return c.snapshot(""), nil
}

// NoBarcode proceeds to counting for an item with no product barcode.
// Both the recorded barcode and the counting expectation are cleared.
func (c *Controller) NoBarcode() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepProductBarcode {
		return c.snapshot(""), ErrInvalidStep
	}
	c.barcode = ""
	c.expected = ""
	c.step = StepQuantity
	return c.snapshot(""), nil
}

// CountScan handles one scan in the quantity step. A token matching the
// expected barcode increments the count by one. The first token seen
// with no expectation set becomes the expectation. A mismatch leaves
// the count unchanged and returns a warning notice.
func (c *Controller) CountScan(token string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepQuantity {
		return c.snapshot(""), ErrInvalidStep
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return c.snapshot(""), fmt.Errorf("%w: empty scan token", ErrInvalidInput)
	}

	if c.expected != "" && token != c.expected {
		log.Printf("[Workflow] Count scan mismatch: got %s, expected %s", token, c.expected)
		return c.snapshot(fmt.Sprintf("scanned %s does not match expected %s", token, c.expected)), nil
	}
	if c.expected == "" {
		c.expected = token
	}
	c.quantity++
	return c.snapshot(fmt.Sprintf("counted %d", c.quantity)), nil
}

// Adjust moves the quantity by delta, floored at zero.
func (c *Controller) Adjust(delta int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepQuantity {
		return c.snapshot(""), ErrInvalidStep
	}
	c.quantity += delta
	if c.quantity < 0 {
		c.quantity = 0
	}
	return c.snapshot(""), nil
}

// SetQuantity replaces the quantity with a direct entry, floored at zero.
func (c *Controller) SetQuantity(n int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepQuantity {
		return c.snapshot(""), ErrInvalidStep
	}
	if n < 0 {
		n = 0
	}
	c.quantity = n
	return c.snapshot(""), nil
}

// Back walks one step backwards. StepIdentify and StepItemInfo have no
// back edge; use SkipItem to abandon an item.
func (c *Controller) Back() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepProductBarcode:
		c.step = StepItemInfo
	case StepQuantity:
		c.step = StepProductBarcode
	case StepConfirm:
		c.step = StepQuantity
	default:
		return c.snapshot(""), ErrInvalidStep
	}
	return c.snapshot(""), nil
}

// Save commits the counted quantity and product barcode. On success the
// controller resets for the next item; on failure it stays in
// StepConfirm so the operator can retry.
func (c *Controller) Save(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepConfirm {
		return c.snapshot(""), ErrInvalidStep
	}

	err := c.backend.SaveCount(ctx, c.sessionID, c.item.ID, c.barcode, c.quantity, c.operator)
	if err != nil {
		log.Printf("[Workflow] Save failed for item %s: %v", c.item.ID, err)
		return c.snapshot(""), err
	}

	saved := c.item.ID
	c.reset()
	return c.snapshot(fmt.Sprintf("saved %s", saved)), nil
}
