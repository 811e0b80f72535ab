package paywall

import (
	"errors"
	"sync"
	"time"

	"paywall/core/events"
	"paywall/core/state"
	"paywall/native/bank"
	"paywall/storage"
)

var errNilStore = errors.New("paywall engine: store not configured")

// Observer receives settlement outcomes. Implementations must not block.
type Observer interface {
	PurchaseSettled(split Split)
	PurchaseRejected(kind Kind)
}

type noopObserver struct{}

func (noopObserver) PurchaseSettled(Split) {}
func (noopObserver) PurchaseRejected(Kind) {}

// Engine wires the article registry, fee manager and settlement state machine
// to a transactional store. Every operation runs as one storage transaction and
// events are emitted only after it commits.
type Engine struct {
	db       storage.Database
	rent     state.RentPolicy
	emitter  events.Emitter
	observer Observer
	nowFn    func() int64

	// writeMu orders event emission with commit order.
	writeMu sync.Mutex

	adminMu sync.RWMutex
	admins  map[[20]byte]struct{}
}

// NewEngine constructs an engine over db with default dependencies.
func NewEngine(db storage.Database) *Engine {
	return &Engine{
		db:       db,
		emitter:  events.NoopEmitter{},
		observer: noopObserver{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		admins: make(map[[20]byte]struct{}),
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetObserver configures the settlement observer.
func (e *Engine) SetObserver(observer Observer) {
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetRentPolicy configures the backing charged for every created record.
func (e *Engine) SetRentPolicy(policy state.RentPolicy) { e.rent = policy }

// RentPolicy returns the active rent policy.
func (e *Engine) RentPolicy() state.RentPolicy { return e.rent }

// SetAdmins replaces the fee admin principal set.
func (e *Engine) SetAdmins(admins [][20]byte) {
	set := make(map[[20]byte]struct{}, len(admins))
	for _, admin := range admins {
		set[admin] = struct{}{}
	}
	e.adminMu.Lock()
	e.admins = set
	e.adminMu.Unlock()
}

// IsAdmin reports whether addr may write the fee schedule.
func (e *Engine) IsAdmin(addr [20]byte) bool {
	e.adminMu.RLock()
	defer e.adminMu.RUnlock()
	_, ok := e.admins[addr]
	return ok
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// txn carries the per-transaction state handles and the events buffered until
// commit.
type txn struct {
	state  *state.Manager
	ledger *bank.Ledger
	events []events.Event
}

func (t *txn) emit(evt events.Event) { t.events = append(t.events, evt) }

func (e *Engine) update(fn func(*txn) error) error {
	if e == nil || e.db == nil {
		return errNilStore
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	var pending []events.Event
	err := e.db.Update(func(tx storage.Tx) error {
		manager := state.NewManager(tx, e.rent)
		t := &txn{state: manager, ledger: bank.NewLedger(manager)}
		if err := fn(t); err != nil {
			return err
		}
		pending = t.events
		return nil
	})
	if err != nil {
		return err
	}
	for _, evt := range pending {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) view(fn func(*txn) error) error {
	if e == nil || e.db == nil {
		return errNilStore
	}
	return e.db.View(func(tx storage.Tx) error {
		manager := state.NewManager(tx, e.rent)
		return fn(&txn{state: manager, ledger: bank.NewLedger(manager)})
	})
}

// mapStateErr translates store and ledger failures into the paywall taxonomy.
func mapStateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrNotRentExempt):
		return ErrNotRentExempt
	case errors.Is(err, state.ErrBalanceOverflow):
		return ErrOverflow
	case errors.Is(err, bank.ErrInsufficientFunds):
		return ErrInsufficientPayment
	case errors.Is(err, bank.ErrTransferBlocked):
		return ErrTransferBlocked
	case errors.Is(err, bank.ErrNotOwner), errors.Is(err, bank.ErrUnauthorized):
		return ErrUnauthorized
	case errors.Is(err, bank.ErrCredentialNotFound):
		return ErrCredentialNotFound
	default:
		return err
	}
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
