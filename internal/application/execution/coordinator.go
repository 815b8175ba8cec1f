package execution

import (
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// DefaultBuyCooldown is the minimum gap between buy attempts on the same
// (marketID, side) key.
const DefaultBuyCooldown = 5 * time.Second

// Coordinator owns the cooldown and in-flight state that makes execution
// race-free. One step of the decision loop may await I/O mid-buy while
// another notification arrives, so the guard must be taken synchronously
// before the first suspension point, which is exactly what BeginBuy and
// BeginSell are.
//
// Buy semantics: a successful buy leaves its cooldown mark standing so the
// same key can't fire again for the cooldown window; only a failed buy
// releases the mark for immediate retry. Sell semantics: the in-flight flag
// is always cleared on completion so a later legitimate exit can proceed.
type Coordinator struct {
	mu       sync.Mutex
	buyMarks map[string]time.Time
	selling  map[string]bool
	cooldown time.Duration
	now      func() time.Time
}

// NewCoordinator creates a coordinator with the given buy cooldown.
func NewCoordinator(cooldown time.Duration) *Coordinator {
	if cooldown <= 0 {
		cooldown = DefaultBuyCooldown
	}
	return &Coordinator{
		buyMarks: make(map[string]time.Time),
		selling:  make(map[string]bool),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func buyKey(marketID string, side domain.Side) string {
	return marketID + "|" + string(side)
}

// BeginBuy marks a buy attempt for (marketID, side). Returns false if a
// buy on the same key was issued within the cooldown window.
func (c *Coordinator) BeginBuy(marketID string, side domain.Side) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buyKey(marketID, side)
	if at, ok := c.buyMarks[key]; ok && c.now().Sub(at) < c.cooldown {
		return false
	}
	c.buyMarks[key] = c.now()
	return true
}

// ReleaseBuy clears the mark after a failed buy so a retry is possible.
// Successful buys never call this: the standing mark is the cooldown.
func (c *Coordinator) ReleaseBuy(marketID string, side domain.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buyMarks, buyKey(marketID, side))
}

// BeginSell marks a sell as in flight for a position id. Returns false if
// one is already in flight.
func (c *Coordinator) BeginSell(positionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selling[positionID] {
		return false
	}
	c.selling[positionID] = true
	return true
}

// FinishSell clears the in-flight flag, success or failure.
func (c *Coordinator) FinishSell(positionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.selling, positionID)
}
