package order

const qtyTolerance = 1e-8

// Order is the lifecycle record the execution engine keeps for an
// accepted signal. Only the execution engine and the fill simulator
// mutate it, through the methods below.
type Order struct {
	ID                string  `json:"id"`
	Signal            Signal  `json:"signal"`
	Status            Status  `json:"status"`
	CreatedAt         int64   `json:"created_at"`
	UpdatedAt         int64   `json:"updated_at"`
	FilledQuantity    float64 `json:"filled_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	Fills             []Fill  `json:"fills"`
	TotalFee          float64 `json:"total_fee"`
	RejectionReason   string  `json:"rejection_reason,omitempty"`
}

// New builds an order in state NEW for an already-validated signal.
func New(id string, sig Signal, now int64) *Order {
	return &Order{
		ID:                id,
		Signal:            sig,
		Status:            StatusNew,
		CreatedAt:         now,
		UpdatedAt:         now,
		RemainingQuantity: sig.Quantity,
	}
}

// Symbol returns the signal's trading pair.
func (o *Order) Symbol() string {
	return o.Signal.Symbol
}

// AverageFillPrice returns Σ(qty×price)/filled, or 0 when unfilled.
func (o *Order) AverageFillPrice() float64 {
	if o.FilledQuantity <= 0 {
		return 0
	}
	var notional float64
	for _, f := range o.Fills {
		notional += f.Quantity * f.Price
	}
	return notional / o.FilledQuantity
}

// IsActive reports whether the order can still receive fills.
func (o *Order) IsActive() bool {
	if o.Status.Terminal() {
		return false
	}
	return o.RemainingQuantity > qtyTolerance ||
		o.Status == StatusNew || o.Status == StatusPending
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return o.Status.Terminal()
}

// AddFill applies an execution to the order and updates the status:
// FILLED once nothing remains, PARTIALLY_FILLED while 0 < filled < qty.
func (o *Order) AddFill(f Fill) {
	o.Fills = append(o.Fills, f)
	o.FilledQuantity += f.Quantity
	o.RemainingQuantity = o.Signal.Quantity - o.FilledQuantity
	if o.RemainingQuantity < 0 {
		o.RemainingQuantity = 0
	}
	o.TotalFee += f.Fee
	o.UpdatedAt = f.Timestamp

	if o.RemainingQuantity <= qtyTolerance {
		o.RemainingQuantity = 0
		o.Status = StatusFilled
	} else if o.FilledQuantity > 0 {
		o.Status = StatusPartiallyFilled
	}
}

// UndoFills rolls the order back to its unfilled state. Used for FOK
// orders whose call did not fill completely.
func (o *Order) UndoFills() {
	o.Fills = nil
	o.FilledQuantity = 0
	o.RemainingQuantity = o.Signal.Quantity
	o.TotalFee = 0
}

// CancelRemainder drops the unfilled remainder of a partially filled
// order (IOC semantics). The order keeps status PARTIALLY_FILLED but
// becomes inactive.
func (o *Order) CancelRemainder(now int64) {
	o.RemainingQuantity = 0
	o.UpdatedAt = now
}

// Cancel moves an active order to CANCELLED. Returns false when the
// order already reached a terminal state.
func (o *Order) Cancel(reason string, now int64) bool {
	if o.Status.Terminal() {
		return false
	}
	o.Status = StatusCancelled
	o.RejectionReason = reason
	o.UpdatedAt = now
	return true
}

// Reject moves the order to REJECTED with a structured reason.
func (o *Order) Reject(reason string, now int64) {
	o.Status = StatusRejected
	o.RejectionReason = reason
	o.UpdatedAt = now
}

// Expire moves the order to EXPIRED (DAY session boundary).
func (o *Order) Expire(now int64) {
	o.Status = StatusExpired
	o.UpdatedAt = now
}
