// Package memrepo is an in-memory implementation of the repository interfaces
// used by pipeline and handler tests.
//
// Transactions serialize against each other but writes apply immediately;
// Rollback does not undo them.
package memrepo

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errRawSQL = errors.New("memrepo: raw SQL is not supported")

// Store holds all rows. The exported *Err fields inject failures.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	links       map[string]*domain.TrackingLink
	sources     map[string]domain.TrafficSource
	offers      map[string]*domain.Offer
	visitors    map[string]*domain.Visitor
	leads       []*domain.Lead
	clicks      map[string]*domain.Click
	conversions []*domain.Conversion
	outbox      []domain.OutboxDraft

	LinkErr             error
	VisitorErr          error
	LeadErr             error
	ClickInsertErr      error
	VisitorInsertErr    error
	ConversionInsertErr error
	PingErr             error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		links:    make(map[string]*domain.TrackingLink),
		sources:  make(map[string]domain.TrafficSource),
		offers:   make(map[string]*domain.Offer),
		visitors: make(map[string]*domain.Visitor),
		clicks:   make(map[string]*domain.Click),
	}
}

// Repos returns repository implementations backed by s.
func (s *Store) Repos() repository.Set {
	return repository.Set{
		Links:          linkRepo{s},
		TrafficSources: sourceRepo{s},
		Offers:         offerRepo{s},
		Visitors:       visitorRepo{s},
		Leads:          leadRepo{s},
		Clicks:         clickRepo{s},
		Conversions:    conversionRepo{s},
		Outbox:         outboxRepo{s},
	}
}

// Seeding and inspection helpers.

// PutLink stores a tracking link with its traffic source and every offer
// reachable from it.
func (s *Store) PutLink(l *domain.TrackingLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.ID] = l
	if ts := l.TrafficSource; ts != nil {
		s.sources[ts.ID] = *ts
	}
	if o := l.Placement.Offer; o != nil {
		s.offers[o.ID] = o
	}
	if st := l.Placement.SplitTest; st != nil {
		for _, v := range st.Variants {
			if v.Offer != nil {
				s.offers[v.Offer.ID] = v.Offer
			}
		}
	}
}

// SetSourceStatus changes a traffic source's status. Links read afterwards
// carry the new status, as the joined query would.
func (s *Store) SetSourceStatus(id string, status domain.SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.sources[id]
	ts.ID = id
	ts.Status = status
	s.sources[id] = ts
}

func (s *Store) PutVisitor(v *domain.Visitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitors[v.ID] = v
}

func (s *Store) PutLead(l *domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, l)
}

func (s *Store) Visitor(id string) *domain.Visitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visitors[id]
}

func (s *Store) VisitorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

func (s *Store) Click(id string) *domain.Click {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks[id]
}

func (s *Store) ClickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clicks)
}

// Conversions returns a copy of the stored conversions in insertion order.
func (s *Store) Conversions() []domain.Conversion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversion, 0, len(s.conversions))
	for _, c := range s.conversions {
		out = append(out, *c)
	}
	return out
}

// Events returns the event types written to the outbox in order.
func (s *Store) Events() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.outbox))
	for _, d := range s.outbox {
		out = append(out, d.EventType)
	}
	return out
}

// repository.Pool

func (s *Store) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errRawSQL
}

func (s *Store) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errRawSQL
}

func (s *Store) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return errRow{}
}

func (s *Store) Ping(context.Context) error { return s.PingErr }

// Begin serializes with every other open transaction on the Store.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	return &tx{store: s}, nil
}

type tx struct {
	pgx.Tx
	store *Store
	once  sync.Once
}

func (t *tx) end() { t.once.Do(t.store.txMu.Unlock) }

func (t *tx) Commit(context.Context) error   { t.end(); return nil }
func (t *tx) Rollback(context.Context) error { t.end(); return nil }

func (t *tx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.store.Exec(ctx, sql, args...)
}

func (t *tx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return t.store.Query(ctx, sql, args...)
}

func (t *tx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return t.store.QueryRow(ctx, sql, args...)
}

type errRow struct{}

func (errRow) Scan(...any) error { return errRawSQL }

// Repository views.

type linkRepo struct{ s *Store }

func (r linkRepo) FindByID(_ context.Context, _ repository.DBTX, id string) (*domain.TrackingLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LinkErr != nil {
		return nil, r.s.LinkErr
	}
	l, ok := r.s.links[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	if l.TrafficSource != nil {
		if ts, ok := r.s.sources[l.TrafficSource.ID]; ok {
			cp.TrafficSource = &ts
		}
	}
	return &cp, nil
}

type sourceRepo struct{ s *Store }

func (r sourceRepo) FindByID(_ context.Context, _ repository.DBTX, id string) (*domain.TrafficSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LinkErr != nil {
		return nil, r.s.LinkErr
	}
	ts, ok := r.s.sources[id]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

type offerRepo struct{ s *Store }

func (r offerRepo) FindByID(_ context.Context, _ repository.DBTX, id string) (*domain.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.offers[id], nil
}

type visitorRepo struct{ s *Store }

func (r visitorRepo) FindByID(_ context.Context, _ repository.DBTX, id string) (*domain.Visitor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.VisitorErr != nil {
		return nil, r.s.VisitorErr
	}
	return r.s.visitors[id], nil
}

func (r visitorRepo) CreateIfAbsent(_ context.Context, _ repository.DBTX, v *domain.Visitor) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.VisitorInsertErr != nil {
		return false, r.s.VisitorInsertErr
	}
	if _, ok := r.s.visitors[v.ID]; ok {
		return false, nil
	}
	cp := *v
	r.s.visitors[v.ID] = &cp
	return true, nil
}

type leadRepo struct{ s *Store }

func (r leadRepo) FindMostRecentByVisitor(_ context.Context, _ repository.DBTX, visitorID string) (*domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LeadErr != nil {
		return nil, r.s.LeadErr
	}
	var matches []*domain.Lead
	for _, l := range r.s.leads {
		if l.VisitorID == visitorID {
			matches = append(matches, l)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

type clickRepo struct{ s *Store }

func (r clickRepo) Insert(_ context.Context, _ repository.DBTX, c *domain.Click) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ClickInsertErr != nil {
		return r.s.ClickInsertErr
	}
	if _, ok := r.s.clicks[c.ID]; ok {
		return errors.New("memrepo: duplicate click id")
	}
	cp := *c
	r.s.clicks[c.ID] = &cp
	return nil
}

func (r clickRepo) FindByID(_ context.Context, _ repository.DBTX, id string) (*domain.Click, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.clicks[id], nil
}

type conversionRepo struct{ s *Store }

// LockClickOffer is a no-op: Begin already serializes transactions.
func (r conversionRepo) LockClickOffer(context.Context, repository.DBTX, string, string) error {
	return nil
}

func (r conversionRepo) FindDuplicate(_ context.Context, _ repository.DBTX, q domain.DuplicateQuery) (*domain.Conversion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *domain.Conversion
	for _, c := range r.s.conversions {
		if c.ClickID != q.ClickID || c.OfferID != q.OfferID {
			continue
		}
		sameTxn := q.TransactionID != "" && c.TransactionID == q.TransactionID
		if sameTxn || c.CreatedAt.After(q.Since) {
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				found = c
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r conversionRepo) Insert(_ context.Context, _ repository.DBTX, c *domain.Conversion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ConversionInsertErr != nil {
		return r.s.ConversionInsertErr
	}
	cp := *c
	r.s.conversions = append(r.s.conversions, &cp)
	return nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox = append(r.s.outbox, d)
	return nil
}
