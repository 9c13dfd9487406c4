package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/slot"
	"github.com/carebook/carebook/internal/platform/notification"
)

type mockSlotRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot.Slot
}

func newMockSlotRepo(slots ...*slot.Slot) *mockSlotRepo {
	m := &mockSlotRepo{slots: make(map[uuid.UUID]*slot.Slot)}
	for _, s := range slots {
		cp := *s
		m.slots[s.ID] = &cp
	}
	return m
}

func (m *mockSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, slot.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSlotRepo) ListByOwner(context.Context, uuid.UUID, time.Time, time.Time, slot.Filters, int, int) ([]*slot.Slot, int, error) {
	return nil, 0, nil
}

func (m *mockSlotRepo) ListByWindow(context.Context, uuid.UUID) ([]*slot.Slot, error) {
	return nil, nil
}

func (m *mockSlotRepo) ListForOverlay(context.Context, uuid.UUID, time.Time, time.Time) ([]*slot.Slot, error) {
	return nil, nil
}

func (m *mockSlotRepo) CreateBatch(_ context.Context, slots []*slot.Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		cp := *s
		m.slots[s.ID] = &cp
	}
	return len(slots), nil
}

func (m *mockSlotRepo) CompareAndSetStatus(_ context.Context, slotID uuid.UUID, expectedVersion int, expectedStatus, newStatus slot.Status, newCurrentBookings int, blockingEventID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return slot.ErrNotFound
	}
	if s.VersionID != expectedVersion || s.Status != expectedStatus {
		return slot.ErrConflict
	}
	s.Status = newStatus
	s.CurrentBookings = newCurrentBookings
	s.BlockingEventID = blockingEventID
	s.VersionID++
	return nil
}

// ClaimForBooking mirrors the store's single-statement claim: the slot
// match, the owner-overlap predicate, and the write happen under one lock
// so no interleaving can separate the check from the set.
func (m *mockSlotRepo) ClaimForBooking(_ context.Context, slotID uuid.UUID, expectedVersion int, newStatus slot.Status, newCurrentBookings int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok {
		return slot.ErrNotFound
	}
	if s.VersionID != expectedVersion || s.Status != slot.StatusAvailable {
		return slot.ErrConflict
	}
	for _, o := range m.slots {
		if o.OwnerID != s.OwnerID || o.ID == s.ID || o.Status != slot.StatusBooked {
			continue
		}
		if o.StartTime.Before(s.BufferedEnd()) && s.StartTime.Before(o.BufferedEnd()) {
			return slot.ErrConflict
		}
	}
	s.Status = newStatus
	s.CurrentBookings = newCurrentBookings
	s.VersionID++
	return nil
}

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockBookingRepo) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.VersionID = 1
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepo) GetActiveBySlot(_ context.Context, slotID uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.SlotID == slotID && (b.Status == StatusPending || b.Status == StatusConfirmed) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockBookingRepo) ListByClient(_ context.Context, clientID uuid.UUID, _, _ int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Booking
	for _, b := range m.bookings {
		if b.ClientID != nil && *b.ClientID == clientID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockBookingRepo) Transition(_ context.Context, id uuid.UUID, expectedVersion int, expectedStatus, newStatus Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if b.VersionID != expectedVersion || b.Status != expectedStatus {
		return ErrConflict
	}
	b.Status = newStatus
	b.VersionID++
	b.UpdatedAt = time.Now()
	return nil
}

func (m *mockBookingRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

type sinkCall struct {
	recipient  string
	templateID string
	data       map[string]string
}

type mockSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (m *mockSink) Notify(_ context.Context, recipient, templateID string, data map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{recipient: recipient, templateID: templateID, data: data})
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testSlot(owner uuid.UUID) *slot.Slot {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &slot.Slot{
		ID:                 uuid.New(),
		WindowID:           uuid.New(),
		OwnerID:            owner,
		ServiceID:          uuid.New(),
		ServiceConfigID:    uuid.New(),
		StartTime:          start,
		EndTime:            start.Add(30 * time.Minute),
		Status:             slot.StatusAvailable,
		MaxCapacity:        1,
		CurrentBookings:    0,
		BufferAfterMinutes: 5,
		PriceCents:         5000,
		VersionID:          1,
	}
}

func clientPayload(s *slot.Slot) *Payload {
	clientID := uuid.New()
	return &Payload{ClientID: &clientID, ServiceID: s.ServiceID, PriceCents: s.PriceCents}
}

func newTestArbiter(slots *mockSlotRepo, bookings *mockBookingRepo, sink *mockSink) *Arbiter {
	return NewArbiter(bookings, slots, passthroughTx, sink, zerolog.Nop())
}

func TestAttemptBookingMutualExclusion(t *testing.T) {
	s := testSlot(uuid.New())
	slots := newMockSlotRepo(s)
	bookings := newMockBookingRepo()
	a := newTestArbiter(slots, bookings, &mockSink{})

	const callers = 16
	outcomes := make([]*Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", i, err)
				return
			}
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		switch out.Kind {
		case OutcomeBooked:
			booked++
		case OutcomeConflict, OutcomeSlotUnavailable:
		default:
			t.Fatalf("unexpected outcome %s", out.Kind)
		}
	}
	if booked != 1 {
		t.Fatalf("expected exactly 1 booked outcome, got %d", booked)
	}
	if bookings.count() != 1 {
		t.Fatalf("expected exactly 1 booking row, got %d", bookings.count())
	}

	final, err := slots.GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != slot.StatusBooked || final.CurrentBookings != 1 || final.VersionID != 2 {
		t.Fatalf("slot not claimed exactly once: status=%s bookings=%d version=%d", final.Status, final.CurrentBookings, final.VersionID)
	}
}

func TestAttemptBookingStaleVersion(t *testing.T) {
	s := testSlot(uuid.New())
	slots := newMockSlotRepo(s)
	a := newTestArbiter(slots, newMockBookingRepo(), &mockSink{})

	out, err := a.AttemptBooking(context.Background(), s.ID, 99, clientPayload(s))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeConflict {
		t.Fatalf("expected CONFLICT for stale version, got %s", out.Kind)
	}
	if out.Slot == nil || out.Slot.VersionID != 1 {
		t.Fatalf("conflict outcome should carry the fresh slot")
	}
}

func TestAttemptBookingSlotUnavailable(t *testing.T) {
	s := testSlot(uuid.New())
	s.Status = slot.StatusBooked
	s.CurrentBookings = 1
	a := newTestArbiter(newMockSlotRepo(s), newMockBookingRepo(), &mockSink{})

	out, err := a.AttemptBooking(context.Background(), s.ID, s.VersionID, clientPayload(s))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeSlotUnavailable {
		t.Fatalf("expected SLOT_UNAVAILABLE, got %s", out.Kind)
	}
}

func TestAttemptBookingUnknownSlot(t *testing.T) {
	a := newTestArbiter(newMockSlotRepo(), newMockBookingRepo(), &mockSink{})
	if _, err := a.AttemptBooking(context.Background(), uuid.New(), 1, &Payload{ServiceID: uuid.New()}); !errors.Is(err, slot.ErrNotFound) {
		t.Fatalf("expected slot.ErrNotFound, got %v", err)
	}
}

func TestAttemptBookingValidation(t *testing.T) {
	s := testSlot(uuid.New())
	name, email, phone := "Ada Byron", "ada@example.com", "+1-555-0100"

	tests := []struct {
		name    string
		payload *Payload
	}{
		{"guest missing phone", &Payload{GuestName: &name, GuestEmail: &email, ServiceID: s.ServiceID, PriceCents: s.PriceCents}},
		{"service mismatch", func() *Payload { p := clientPayload(s); p.ServiceID = uuid.New(); return p }()},
		{"price mismatch", func() *Payload { p := clientPayload(s); p.PriceCents = 100; return p }()},
		{"online requested on in-person slot", func() *Payload { p := clientPayload(s); p.IsOnline = true; return p }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := newMockSlotRepo(s)
			a := newTestArbiter(slots, newMockBookingRepo(), &mockSink{})
			out, err := a.AttemptBooking(context.Background(), s.ID, 1, tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			if out.Kind != OutcomeValidationFailed {
				t.Fatalf("expected VALIDATION_FAILED, got %s", out.Kind)
			}
			got, _ := slots.GetByID(context.Background(), s.ID)
			if got.VersionID != 1 || got.Status != slot.StatusAvailable {
				t.Fatal("validation failure must not touch the slot")
			}
		})
	}

	// A complete guest triple is accepted.
	slots := newMockSlotRepo(s)
	a := newTestArbiter(slots, newMockBookingRepo(), &mockSink{})
	out, err := a.AttemptBooking(context.Background(), s.ID, 1, &Payload{
		GuestName: &name, GuestEmail: &email, GuestPhone: &phone,
		ServiceID: s.ServiceID, PriceCents: s.PriceCents,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeBooked {
		t.Fatalf("expected BOOKED for guest payload, got %s", out.Kind)
	}
}

func TestAttemptBookingCrossServiceOverlap(t *testing.T) {
	owner := uuid.New()
	target := testSlot(owner)

	// A different service of the same owner already booked a slot whose
	// buffer reaches into the target's time.
	other := testSlot(owner)
	other.ServiceID = uuid.New()
	other.StartTime = target.StartTime.Add(-30 * time.Minute)
	other.EndTime = target.StartTime.Add(-2 * time.Minute)
	other.BufferAfterMinutes = 10
	other.Status = slot.StatusBooked
	other.CurrentBookings = 1

	slots := newMockSlotRepo(target, other)
	bookings := newMockBookingRepo()
	a := newTestArbiter(slots, bookings, &mockSink{})

	out, err := a.AttemptBooking(context.Background(), target.ID, 1, clientPayload(target))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeConflict {
		t.Fatalf("expected CONFLICT for overlapping booked slot, got %s", out.Kind)
	}
	if bookings.count() != 0 {
		t.Fatal("conflicting attempt must not create a booking")
	}
	got, _ := slots.GetByID(context.Background(), target.ID)
	if got.Status != slot.StatusAvailable || got.VersionID != 1 {
		t.Fatal("conflicting attempt must not claim the slot")
	}
}

func TestAttemptBookingCrossServiceRace(t *testing.T) {
	// Two overlapping AVAILABLE slots of one owner, one claimant each,
	// released simultaneously. Whatever the interleaving, the owner must
	// end up booked at most once; one claim always wins, so exactly once.
	for i := 0; i < 25; i++ {
		owner := uuid.New()
		first := testSlot(owner)
		second := testSlot(owner)
		second.ServiceID = uuid.New()
		second.StartTime = first.StartTime.Add(15 * time.Minute)
		second.EndTime = second.StartTime.Add(30 * time.Minute)

		slots := newMockSlotRepo(first, second)
		bookings := newMockBookingRepo()
		a := newTestArbiter(slots, bookings, &mockSink{})

		start := make(chan struct{})
		outcomes := make([]*Outcome, 2)
		var wg sync.WaitGroup
		for j, target := range []*slot.Slot{first, second} {
			wg.Add(1)
			go func(j int, target *slot.Slot) {
				defer wg.Done()
				<-start
				out, err := a.AttemptBooking(context.Background(), target.ID, 1, clientPayload(target))
				if err != nil {
					t.Errorf("claimant %d: unexpected error: %v", j, err)
					return
				}
				outcomes[j] = out
			}(j, target)
		}
		close(start)
		wg.Wait()

		booked := 0
		for _, out := range outcomes {
			if out != nil && out.Kind == OutcomeBooked {
				booked++
			}
		}
		if booked != 1 {
			t.Fatalf("iteration %d: %d overlapping slots of the same owner were booked, want exactly 1", i, booked)
		}
		if bookings.count() != 1 {
			t.Fatalf("iteration %d: expected exactly 1 booking row, got %d", i, bookings.count())
		}
	}
}

func TestAttemptBookingDuplicateSubmission(t *testing.T) {
	s := testSlot(uuid.New())
	slots := newMockSlotRepo(s)
	bookings := newMockBookingRepo()
	a := newTestArbiter(slots, bookings, &mockSink{})

	p := clientPayload(s)
	first, err := a.AttemptBooking(context.Background(), s.ID, 1, p)
	if err != nil || first.Kind != OutcomeBooked {
		t.Fatalf("setup booking failed: %v %+v", err, first)
	}

	// The same requester resubmitting (say after a timeout) gets its own
	// booking back instead of SLOT_UNAVAILABLE, and no second row.
	again, err := a.AttemptBooking(context.Background(), s.ID, 1, p)
	if err != nil {
		t.Fatal(err)
	}
	if again.Kind != OutcomeBooked {
		t.Fatalf("duplicate submission should return the existing booking, got %s", again.Kind)
	}
	if again.Booking.ID != first.Booking.ID {
		t.Fatalf("duplicate submission returned a different booking: %s vs %s", again.Booking.ID, first.Booking.ID)
	}
	if bookings.count() != 1 {
		t.Fatalf("duplicate submission created a row, have %d", bookings.count())
	}

	// A different requester still sees the slot as gone.
	other, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil {
		t.Fatal(err)
	}
	if other.Kind != OutcomeSlotUnavailable {
		t.Fatalf("expected SLOT_UNAVAILABLE for a different requester, got %s", other.Kind)
	}
}

func TestAttemptBookingRequiresConfirmation(t *testing.T) {
	s := testSlot(uuid.New())
	s.RequiresConfirmation = true
	sink := &mockSink{}
	a := newTestArbiter(newMockSlotRepo(s), newMockBookingRepo(), sink)

	out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeBooked {
		t.Fatalf("expected BOOKED, got %s", out.Kind)
	}
	if out.Booking.Status != StatusPending {
		t.Fatalf("confirmation-gated slot should yield a PENDING booking, got %s", out.Booking.Status)
	}
	if len(sink.calls) != 1 || sink.calls[0].templateID != notification.TemplateBookingPending {
		t.Fatalf("expected one booking-pending notification, got %+v", sink.calls)
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	s := testSlot(uuid.New())
	slots := newMockSlotRepo(s)
	bookings := newMockBookingRepo()
	sink := &mockSink{}
	a := newTestArbiter(slots, bookings, sink)

	out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil || out.Kind != OutcomeBooked {
		t.Fatalf("setup booking failed: %v %+v", err, out)
	}

	b, err := a.Cancel(context.Background(), out.Booking.ID, out.Booking.VersionID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", b.Status)
	}

	released, _ := slots.GetByID(context.Background(), s.ID)
	if released.Status != slot.StatusAvailable || released.CurrentBookings != 0 {
		t.Fatalf("slot not released: status=%s bookings=%d", released.Status, released.CurrentBookings)
	}

	// The released slot is claimable again at its new version.
	out2, err := a.AttemptBooking(context.Background(), s.ID, released.VersionID, clientPayload(s))
	if err != nil {
		t.Fatal(err)
	}
	if out2.Kind != OutcomeBooked {
		t.Fatalf("expected released slot to be bookable, got %s", out2.Kind)
	}
}

func TestCancelTerminalBooking(t *testing.T) {
	s := testSlot(uuid.New())
	a := newTestArbiter(newMockSlotRepo(s), newMockBookingRepo(), &mockSink{})

	out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil || out.Kind != OutcomeBooked {
		t.Fatalf("setup booking failed: %v %+v", err, out)
	}
	if _, err := a.Complete(context.Background(), out.Booking.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Cancel(context.Background(), out.Booking.ID, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition cancelling a completed booking, got %v", err)
	}
}

func TestBookingStateMachine(t *testing.T) {
	s := testSlot(uuid.New())
	s.RequiresConfirmation = true
	a := newTestArbiter(newMockSlotRepo(s), newMockBookingRepo(), &mockSink{})

	out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil || out.Kind != OutcomeBooked {
		t.Fatalf("setup booking failed: %v %+v", err, out)
	}
	id := out.Booking.ID

	if _, err := a.Complete(context.Background(), id, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("PENDING booking must not complete, got %v", err)
	}
	b, err := a.Confirm(context.Background(), id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", b.Status)
	}
	if _, err := a.Confirm(context.Background(), id, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double confirm must fail, got %v", err)
	}
	if b, err = a.NoShow(context.Background(), id, 0); err != nil || b.Status != StatusNoShow {
		t.Fatalf("expected NO_SHOW, got %v %v", b, err)
	}
}

func TestTransitionStaleVersion(t *testing.T) {
	s := testSlot(uuid.New())
	a := newTestArbiter(newMockSlotRepo(s), newMockBookingRepo(), &mockSink{})

	out, err := a.AttemptBooking(context.Background(), s.ID, 1, clientPayload(s))
	if err != nil || out.Kind != OutcomeBooked {
		t.Fatalf("setup booking failed: %v %+v", err, out)
	}
	if _, err := a.Complete(context.Background(), out.Booking.ID, 42); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for stale booking version, got %v", err)
	}
}
