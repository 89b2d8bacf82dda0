package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/payment"
	"github.com/iliyamo/slot-reservation/internal/queue"
	"github.com/iliyamo/slot-reservation/internal/repository"
)

// fakeStore keeps the whole inventory in memory. It implements every store
// interface except TransactionStore, which lives on fakeTxns so the two
// GetByID methods do not collide.
type fakeStore struct {
	mu sync.Mutex

	services     map[uint64]fakeService
	dates        map[uint64]model.Date
	days         map[uint64]map[time.Weekday]model.DayDefinition
	slots        map[uint64]*model.Slot
	carts        map[uint64]*model.Cart
	reservations map[uint64]*model.Reservation
	userPlans    map[uint64]*model.UserPlan
	users        map[uint64]*model.User
	txns         map[uint64]*model.Transaction
	nextID       uint64
	lockOrder    []uint64
	debits       []int64
	ops          []string
}

type fakeService struct {
	ID            uint64
	ScheduleID    uint64
	Title         string
	Sport         *string
	InstitutionID uint64
	Slug          string
	Advance       int
	PerDay        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services:     map[uint64]fakeService{},
		dates:        map[uint64]model.Date{},
		days:         map[uint64]map[time.Weekday]model.DayDefinition{},
		slots:        map[uint64]*model.Slot{},
		carts:        map[uint64]*model.Cart{},
		reservations: map[uint64]*model.Reservation{},
		userPlans:    map[uint64]*model.UserPlan{},
		users:        map[uint64]*model.User{},
		txns:         map[uint64]*model.Transaction{},
		nextID:       1000,
	}
}

func (f *fakeStore) id() uint64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addService(s fakeService) { f.services[s.ID] = s }

func (f *fakeStore) addDay(scheduleID uint64, wd time.Weekday, start, end string, capacity int) {
	if f.days[scheduleID] == nil {
		f.days[scheduleID] = map[time.Weekday]model.DayDefinition{}
	}
	f.days[scheduleID][wd] = model.DayDefinition{
		ID:         f.id(),
		ScheduleID: scheduleID,
		DayOfWeek:  wd,
		Window:     win(start, end),
		Capacity:   capacity,
	}
}

func (f *fakeStore) dateID(scheduleID uint64, d time.Time) uint64 {
	for id, dt := range f.dates {
		if dt.ScheduleID == scheduleID && dt.Date.Equal(d) {
			return id
		}
	}
	id := f.id()
	f.dates[id] = model.Date{ID: id, ScheduleID: scheduleID, Date: d}
	return id
}

func (f *fakeStore) addSlot(id, serviceID uint64, d time.Time, start, end string, defID uint64, capacity int, price int64) {
	svc := f.services[serviceID]
	f.slots[id] = &model.Slot{
		ID:               id,
		DateID:           f.dateID(svc.ScheduleID, d),
		SlotDefinitionID: defID,
		Window:           win(start, end),
		PriceCents:       price,
		Capacity:         capacity,
		Available:        true,
	}
}

func (f *fakeStore) addUser(id uint64, tokens int64) {
	f.users[id] = &model.User{ID: id, Email: "user" + uintString(id) + "@example.com", Role: "CUSTOMER", IsActive: true, TokensCents: tokens}
}

func (f *fakeStore) addUserPlan(id, userID uint64, p model.Plan, remaining int) {
	f.userPlans[id] = &model.UserPlan{ID: id, UserID: userID, TotalReservations: remaining, Plan: p}
}

// seedHeld inserts a held reservation directly, bypassing the validator.
func (f *fakeStore) seedHeld(userID, slotID uint64) uint64 {
	cart := f.cartFor(userID)
	id := f.id()
	cid := cart.ID
	f.reservations[id] = &model.Reservation{ID: id, UserID: userID, SlotID: slotID, CartID: &cid, Status: model.ReservationHeld}
	return id
}

func (f *fakeStore) cartFor(userID uint64) *model.Cart {
	c, ok := f.carts[userID]
	if !ok {
		c = &model.Cart{ID: f.id(), UserID: userID}
		f.carts[userID] = c
	}
	return c
}

func (f *fakeStore) detail(s *model.Slot) model.SlotDetail {
	dt := f.dates[s.DateID]
	var svc fakeService
	for _, sv := range f.services {
		if sv.ScheduleID == dt.ScheduleID {
			svc = sv
		}
	}
	return model.SlotDetail{
		Slot:                   *s,
		Date:                   dt.Date,
		ScheduleID:             dt.ScheduleID,
		ServiceID:              svc.ID,
		ServiceTitle:           svc.Title,
		Sport:                  svc.Sport,
		InstitutionID:          svc.InstitutionID,
		InstitutionSlug:        svc.Slug,
		DaysInAdvanceToReserve: svc.Advance,
		ReservationsPerDay:     svc.PerDay,
	}
}

func sortDetails(out []model.SlotDetail) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Window.Start != out[j].Window.Start {
			return out[i].Window.Start < out[j].Window.Start
		}
		return out[i].ID < out[j].ID
	})
}

func (f *fakeStore) heldIDs(userID uint64) []uint64 {
	var ids []uint64
	for _, r := range f.reservations {
		if r.UserID == userID && r.Status == model.ReservationHeld {
			ids = append(ids, r.SlotID)
		}
	}
	return sortedIDs(ids)
}

func (f *fakeStore) countStatus(userID uint64, status string) int {
	n := 0
	for _, r := range f.reservations {
		if r.UserID == userID && r.Status == status {
			n++
		}
	}
	return n
}

// SlotStore

func (f *fakeStore) GetSlot(ctx context.Context, id uint64) (*model.SlotDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d := f.detail(s)
	return &d, nil
}

func (f *fakeStore) ListCandidateSlots(ctx context.Context, serviceID uint64, from, to time.Time) ([]model.SlotDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.SlotDetail{}
	for _, s := range f.slots {
		d := f.detail(s)
		if d.ServiceID == serviceID && !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	sortDetails(out)
	return out, nil
}

func (f *fakeStore) GetDetailsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.SlotDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SlotDetail
	for _, id := range uniqueIDs(ids) {
		if s, ok := f.slots[id]; ok {
			out = append(out, f.detail(s))
		}
	}
	sortDetails(out)
	return out, nil
}

func (f *fakeStore) LockDateTx(ctx context.Context, tx *sql.Tx, dateID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dates[dateID]; !ok {
		return repository.ErrNotFound
	}
	f.lockOrder = append(f.lockOrder, dateID)
	f.ops = append(f.ops, "lock:"+uintString(dateID))
	return nil
}

func (f *fakeStore) IntersectingOccupancyTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]model.Occupant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "occupancy:"+uintString(dateID))
	var out []model.Occupant
	for _, r := range f.reservations {
		s := f.slots[r.SlotID]
		if s.DateID == dateID && s.Window.Overlaps(w) {
			out = append(out, model.Occupant{ReservationID: r.ID, UserID: r.UserID, SlotID: s.ID, SlotDefinitionID: s.SlotDefinitionID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationID < out[j].ReservationID })
	return out, nil
}

func (f *fakeStore) IntersectingSlotIDsTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for _, s := range f.slots {
		if s.DateID == dateID && s.Window.Overlaps(w) {
			ids = append(ids, s.ID)
		}
	}
	return sortedIDs(ids), nil
}

func (f *fakeStore) SetAvailabilityTx(ctx context.Context, tx *sql.Tx, slotID uint64, available bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[slotID]
	if s.Available == available {
		return false, nil
	}
	s.Available = available
	return true, nil
}

// DayDefinitionStore

func (f *fakeStore) DayDefinitionTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, weekday time.Weekday) (*model.DayDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dd, ok := f.days[scheduleID][weekday]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dd, nil
}

// CartStore

func (f *fakeStore) GetOrCreateForUpdateTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.cartFor(userID)
	return &c, nil
}

func (f *fakeStore) SetServiceTx(ctx context.Context, tx *sql.Tx, cartID uint64, serviceID *uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.ID == cartID {
			c.ServiceID = serviceID
			c.UpdatedAt = at
			return nil
		}
	}
	return repository.ErrNotFound
}

// ReservationStore

func (f *fakeStore) ListHeldByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.HeldReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.HeldReservation
	for _, r := range f.reservations {
		if r.UserID != userID || r.Status != model.ReservationHeld {
			continue
		}
		s := f.slots[r.SlotID]
		out = append(out, model.HeldReservation{Reservation: *r, DateID: s.DateID, Date: f.dates[s.DateID].Date, Window: s.Window})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateHeldTx(ctx context.Context, tx *sql.Tx, cartID, userID, slotID uint64, at time.Time) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.UserID == userID && r.SlotID == slotID {
			return 0, repository.ErrConflict
		}
	}
	id := f.id()
	cid := cartID
	f.reservations[id] = &model.Reservation{ID: id, UserID: userID, SlotID: slotID, CartID: &cid, Status: model.ReservationHeld, CreatedAt: at}
	return id, nil
}

func (f *fakeStore) DeleteHeldTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := f.reservations[id]; ok && r.UserID == userID && r.Status == model.ReservationHeld {
			delete(f.reservations, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ConfirmTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := f.reservations[id]; ok && r.UserID == userID && r.Status == model.ReservationHeld {
			r.Status = model.ReservationConfirmed
			r.CartID = nil
			ts := at
			r.ConfirmedAt = &ts
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListHeldSlots(ctx context.Context, userID uint64, today time.Time) ([]model.HeldSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type row struct {
		d model.SlotDetail
		r *model.Reservation
	}
	var rows []row
	for _, r := range f.reservations {
		if r.UserID != userID || r.Status != model.ReservationHeld {
			continue
		}
		d := f.detail(f.slots[r.SlotID])
		if d.Date.Before(today) {
			continue
		}
		rows = append(rows, row{d, r})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].d.Date.Equal(rows[j].d.Date) {
			return rows[i].d.Date.Before(rows[j].d.Date)
		}
		return rows[i].d.Window.Start < rows[j].d.Window.Start
	})
	out := make([]model.HeldSlot, 0, len(rows))
	for _, x := range rows {
		out = append(out, model.HeldSlot{
			ReservationID:   x.r.ID,
			SlotID:          x.d.ID,
			Date:            x.d.Date.Format("2006-01-02"),
			StartTime:       x.d.Window.Start,
			EndTime:         x.d.Window.End,
			PriceCents:      x.d.PriceCents,
			Price:           model.FormatCents(x.d.PriceCents),
			Available:       x.d.Available,
			ServiceID:       x.d.ServiceID,
			ServiceTitle:    x.d.ServiceTitle,
			ScheduleID:      x.d.ScheduleID,
			InstitutionID:   x.d.InstitutionID,
			InstitutionSlug: x.d.InstitutionSlug,
		})
	}
	return out, nil
}

// PlanStore

func (f *fakeStore) findUserPlan(userID, planID uint64) (*model.UserPlan, error) {
	for _, up := range f.userPlans {
		if up.UserID == userID && up.Plan.ID == planID {
			cp := *up
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetUserPlanTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findUserPlan(userID, planID)
}

func (f *fakeStore) GetUserPlanForUpdateTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error) {
	return f.GetUserPlanTx(ctx, tx, userID, planID)
}

func (f *fakeStore) UpdateRemainingTx(ctx context.Context, tx *sql.Tx, userPlanID uint64, remaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.userPlans[userPlanID]
	if !ok {
		return repository.ErrNotFound
	}
	up.TotalReservations = remaining
	return nil
}

func (f *fakeStore) DeleteUserPlanTx(ctx context.Context, tx *sql.Tx, userPlanID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.userPlans[userPlanID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.userPlans, userPlanID)
	return nil
}

// UserStore and ReceiptUsers

func (f *fakeStore) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeStore) DebitTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits = append(f.debits, amount)
	u := f.users[id]
	if u.TokensCents < amount {
		return false, nil
	}
	u.TokensCents -= amount
	return true, nil
}

func (f *fakeStore) CreditTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TokensCents += amount
	return nil
}

type fakeTxns struct{ *fakeStore }

func (f fakeTxns) CreateBookingTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.id()
	t.Type = model.TransactionBooking
	cp := *t
	f.txns[t.ID] = &cp
	return nil
}

func (f fakeTxns) CreatePendingTopup(ctx context.Context, t *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.txns {
		if x.ExternalPaymentID != nil && t.ExternalPaymentID != nil && *x.ExternalPaymentID == *t.ExternalPaymentID {
			return repository.ErrConflict
		}
	}
	t.ID = f.id()
	t.Type = model.TransactionTopup
	t.Status = model.TransactionPending
	cp := *t
	f.txns[t.ID] = &cp
	return nil
}

func (f fakeTxns) GetByExternalIDForUpdateTx(ctx context.Context, tx *sql.Tx, externalID string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.txns {
		if x.ExternalPaymentID != nil && *x.ExternalPaymentID == externalID {
			cp := *x
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeTxns) MarkSuccessTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.txns[id]
	if !ok || x.Status != model.TransactionPending {
		return repository.ErrConflict
	}
	x.Status = model.TransactionSuccess
	x.UpdatedAt = at
	return nil
}

func (f fakeTxns) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *x
	return &cp, nil
}

func (f fakeTxns) ReceiptLines(ctx context.Context, transactionID uint64) ([]model.ReceiptLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.txns[transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var out []model.ReceiptLine
	for _, rid := range x.ReservationIDs {
		r := f.reservations[rid]
		d := f.detail(f.slots[r.SlotID])
		out = append(out, model.ReceiptLine{ReservationID: rid, Date: d.Date, Window: d.Window, PriceCents: d.PriceCents, ServiceTitle: d.ServiceTitle})
	}
	return out, nil
}

func (f *fakeStore) bookings(userID uint64) []*model.Transaction {
	var out []*model.Transaction
	for _, x := range f.txns {
		if x.UserID == userID && x.Type == model.TransactionBooking {
			out = append(out, x)
		}
	}
	return out
}

type recorder struct {
	mu       sync.Mutex
	bookings []queue.BookingConfirmedEvent
	changes  []model.AvailabilityChange
}

func (r *recorder) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append(r.bookings, ev)
	return nil
}

func (r *recorder) PublishAvailability(ctx context.Context, changes []model.AvailabilityChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, ErrLockBusy
}

func win(start, end string) model.Window {
	s, err := model.ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	return model.Window{Start: s, End: e}
}

func ptr[T any](v T) *T { return &v }

var (
	testNow   = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) // wednesday
	testToday = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	tomorrow  = testToday.AddDate(0, 0, 1)
	yesterday = testToday.AddDate(0, 0, -1)
)

// harness wires every service over one fakeStore. Each call that opens a
// transaction must be preceded by expectTx.
type harness struct {
	t        *testing.T
	db       *sql.DB
	store    *fakeStore
	mock     sqlmock.Sqlmock
	events   *recorder
	cart     *CartService
	checkout *CheckoutService
	topup    *TopupService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := newFakeStore()
	events := &recorder{}
	cal := NewCalendar(func() time.Time { return testNow }, time.UTC)
	h := &harness{t: t, db: db, store: store, mock: mock, events: events}
	h.cart = NewCartService(CartDeps{
		DB: db, Slots: store, Days: store, Carts: store, Reservations: store, Plans: store,
		Calendar: cal, Availability: events,
	})
	h.checkout = NewCheckoutService(CheckoutDeps{
		DB: db, Slots: store, Days: store, Carts: store, Reservations: store, Plans: store,
		Users: store, Transactions: fakeTxns{store}, Calendar: cal,
		Bookings: events, Availability: events,
	})
	h.topup = NewTopupService(TopupDeps{
		DB: db, Users: store, Transactions: fakeTxns{store}, Gateway: payment.NewLocalGateway(),
		Calendar: cal,
	})
	return h
}

func (h *harness) expectTx(commit bool) {
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

func (h *harness) done() {
	h.t.Helper()
	if err := h.mock.ExpectationsWereMet(); err != nil {
		h.t.Fatalf("sql expectations: %v", err)
	}
}

// standardFixture is one padel court service opening 08:00-20:00 every day
// with a pool of capacity 2, and three 08:00-11:00 hours tomorrow.
func (h *harness) standardFixture() {
	s := h.store
	s.addService(fakeService{ID: 1, ScheduleID: 1, Title: "Padel court", Sport: ptr("padel"), InstitutionID: 7, Slug: "club", Advance: 14, PerDay: 4})
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		s.addDay(1, wd, "08:00", "20:00", 2)
	}
	s.addSlot(101, 1, tomorrow, "08:00", "09:00", 1, 1, 400)
	s.addSlot(102, 1, tomorrow, "09:00", "10:00", 2, 1, 400)
	s.addSlot(103, 1, tomorrow, "10:00", "11:00", 3, 1, 400)
	s.addUser(1, 2000)
	s.addUser(2, 2000)
	s.addUser(3, 2000)
}
