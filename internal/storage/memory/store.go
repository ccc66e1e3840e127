// Package memory provides an in-memory implementation of storage.Store used by
// tests and by ephemeral deployments (STORAGE=memory).
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type ruleKey struct {
	category string
	code     string
	version  string
}

func keyFor(category string, ref domain.RuleRef) ruleKey {
	return ruleKey{strings.ToUpper(strings.TrimSpace(category)), ref.Code, ref.Version}
}

type sequences struct {
	label, version, session, reviewEvent, statusEvent int64
}

type state struct {
	seq          sequences
	labels       map[int64]domain.Label
	versions     map[int64]domain.Version
	drafts       map[int64]domain.Draft
	rules        map[ruleKey]domain.Rule
	sessions     map[int64]domain.Session
	reviewEvents []domain.ReviewEvent
	statusEvents []domain.StatusEvent
}

func newState() *state {
	return &state{
		labels:   map[int64]domain.Label{},
		versions: map[int64]domain.Version{},
		drafts:   map[int64]domain.Draft{},
		rules:    map[ruleKey]domain.Rule{},
		sessions: map[int64]domain.Session{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:          s.seq,
		labels:       maps.Clone(s.labels),
		versions:     maps.Clone(s.versions),
		drafts:       maps.Clone(s.drafts),
		rules:        maps.Clone(s.rules),
		sessions:     maps.Clone(s.sessions),
		reviewEvents: slices.Clone(s.reviewEvents),
		statusEvents: slices.Clone(s.statusEvents),
	}
}

// Store serializes every read-write transaction behind one mutex. A transaction
// works on a private clone of the state that replaces the shared state on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state, readOnly: true})
}

func (s *Store) Ready(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

// --- labels ---

func (t *tx) InsertLabel(_ context.Context, content domain.Content, at time.Time) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	for {
		t.st.seq.label++
		if _, taken := t.st.labels[t.st.seq.label]; !taken {
			break
		}
	}
	id := t.st.seq.label
	t.st.labels[id] = domain.Label{ID: id, Content: content, CreatedAt: at, UpdatedAt: at}
	return id, nil
}

func (t *tx) UpsertLabel(_ context.Context, id int64, content domain.Content, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	l, ok := t.st.labels[id]
	if !ok {
		l = domain.Label{ID: id, CreatedAt: at}
	}
	l.Content = content
	l.UpdatedAt = at
	t.st.labels[id] = l
	return nil
}

func (t *tx) GetLabel(_ context.Context, id int64, _ bool) (domain.Label, error) {
	l, ok := t.st.labels[id]
	if !ok {
		return domain.Label{}, storage.ErrNotFound
	}
	return l, nil
}

func (t *tx) SetCurrentVersion(_ context.Context, labelID, versionID int64, content domain.Content, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	l, ok := t.st.labels[labelID]
	if !ok {
		return storage.ErrNotFound
	}
	l.CurrentVersionID = &versionID
	l.Content = content
	l.UpdatedAt = at
	t.st.labels[labelID] = l
	return nil
}

func (t *tx) UpdateLabelMetadata(_ context.Context, id int64, m domain.Metadata, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	l, ok := t.st.labels[id]
	if !ok {
		return storage.ErrNotFound
	}
	l.Metadata = m
	l.UpdatedAt = at
	t.st.labels[id] = l
	return nil
}

// --- versions ---

func (t *tx) InsertVersion(_ context.Context, v domain.Version) (domain.Version, error) {
	if err := t.writable(); err != nil {
		return domain.Version{}, err
	}
	if _, ok := t.st.labels[v.LabelID]; !ok {
		return domain.Version{}, storage.ErrNotFound
	}
	t.st.seq.version++
	v.ID = t.st.seq.version
	t.st.versions[v.ID] = v
	return v, nil
}

func (t *tx) GetVersion(_ context.Context, id int64, _ bool) (domain.Version, error) {
	v, ok := t.st.versions[id]
	if !ok {
		return domain.Version{}, storage.ErrNotFound
	}
	return v, nil
}

func (t *tx) LatestVersion(ctx context.Context, labelID int64) (domain.Version, error) {
	vs, err := t.ListVersions(ctx, storage.VersionFilter{LabelID: &labelID, Limit: 1})
	if err != nil {
		return domain.Version{}, err
	}
	if len(vs) == 0 {
		return domain.Version{}, storage.ErrNotFound
	}
	return vs[0], nil
}

func (t *tx) ListVersions(_ context.Context, f storage.VersionFilter) ([]domain.Version, error) {
	var out []domain.Version
	for _, v := range t.st.versions {
		if f.LabelID != nil && v.LabelID != *f.LabelID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) UpdateVersionContent(_ context.Context, id int64, c domain.Content) error {
	if err := t.writable(); err != nil {
		return err
	}
	v, ok := t.st.versions[id]
	if !ok {
		return storage.ErrNotFound
	}
	v.Content = c
	t.st.versions[id] = v
	return nil
}

func (t *tx) SetVersionStatus(_ context.Context, id int64, code domain.StatusCode, externalID *string, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	v, ok := t.st.versions[id]
	if !ok {
		return storage.ErrNotFound
	}
	v.Status = &code
	if externalID != nil {
		v.ExternalApplicationID = externalID
	}
	v.StatusChangedAt = &at
	t.st.versions[id] = v
	return nil
}

// --- drafts ---

func (t *tx) GetDraft(_ context.Context, labelID int64) (domain.Draft, error) {
	d, ok := t.st.drafts[labelID]
	if !ok {
		return domain.Draft{}, storage.ErrNotFound
	}
	return d, nil
}

func (t *tx) PutDraft(_ context.Context, d domain.Draft) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.labels[d.LabelID]; !ok {
		return storage.ErrNotFound
	}
	if prev, ok := t.st.drafts[d.LabelID]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	t.st.drafts[d.LabelID] = d
	return nil
}

// --- rules ---

func (t *tx) ListActiveRules(_ context.Context, category string) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range t.st.rules {
		if r.Active && domain.SameCategory(r.Category, category) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := sectionOf(out[i]), sectionOf(out[j])
		if si != sj {
			return si < sj
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func sectionOf(r domain.Rule) string {
	if r.Section == nil {
		return ""
	}
	return *r.Section
}

func (t *tx) GetRule(_ context.Context, category string, ref domain.RuleRef) (domain.Rule, error) {
	r, ok := t.st.rules[keyFor(category, ref)]
	if !ok {
		return domain.Rule{}, storage.ErrNotFound
	}
	return r, nil
}

func (t *tx) UpsertRule(_ context.Context, r domain.Rule) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.rules[keyFor(r.Category, r.Ref())] = r
	return nil
}

// --- sessions ---

func (t *tx) InsertSession(_ context.Context, s domain.Session) (domain.Session, error) {
	if err := t.writable(); err != nil {
		return domain.Session{}, err
	}
	if _, ok := t.st.versions[s.VersionID]; !ok {
		return domain.Session{}, storage.ErrNotFound
	}
	t.st.seq.session++
	s.ID = t.st.seq.session
	t.st.sessions[s.ID] = s
	return s, nil
}

func (t *tx) GetSession(_ context.Context, id int64, _ bool) (domain.Session, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return domain.Session{}, storage.ErrNotFound
	}
	return s, nil
}

func (t *tx) ListSessions(_ context.Context, versionID int64) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range t.st.sessions {
		if s.VersionID == versionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) FinalizeSession(_ context.Context, id int64, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.st.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.Status = domain.SessionFinalized
	s.FinalizedAt = &at
	t.st.sessions[id] = s
	return nil
}

// --- review events ---

func (t *tx) InsertReviewEvent(_ context.Context, e domain.ReviewEvent) (domain.ReviewEvent, error) {
	if err := t.writable(); err != nil {
		return domain.ReviewEvent{}, err
	}
	if _, ok := t.st.sessions[e.SessionID]; !ok {
		return domain.ReviewEvent{}, storage.ErrNotFound
	}
	t.st.seq.reviewEvent++
	e.ID = t.st.seq.reviewEvent
	t.st.reviewEvents = append(t.st.reviewEvents, e)
	return e, nil
}

func (t *tx) ListReviewEvents(_ context.Context, sessionID int64) ([]domain.ReviewEvent, error) {
	var out []domain.ReviewEvent
	for _, e := range t.st.reviewEvents {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- status events ---

func (t *tx) InsertStatusEvent(_ context.Context, e domain.StatusEvent) (domain.StatusEvent, error) {
	if err := t.writable(); err != nil {
		return domain.StatusEvent{}, err
	}
	if _, ok := t.st.versions[e.VersionID]; !ok {
		return domain.StatusEvent{}, storage.ErrNotFound
	}
	t.st.seq.statusEvent++
	e.ID = t.st.seq.statusEvent
	t.st.statusEvents = append(t.st.statusEvents, e)
	return e, nil
}

func (t *tx) ListStatusEvents(_ context.Context, versionID int64) ([]domain.StatusEvent, error) {
	var out []domain.StatusEvent
	for _, e := range t.st.statusEvents {
		if e.VersionID == versionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.EventBefore(out[i], out[j]) })
	return out, nil
}

func (t *tx) LatestStatusEvents(_ context.Context) ([]domain.StatusEvent, error) {
	latest := map[int64]domain.StatusEvent{}
	for _, e := range t.st.statusEvents {
		cur, ok := latest[e.VersionID]
		if !ok || domain.EventBefore(cur, e) {
			latest[e.VersionID] = e
		}
	}
	out := make([]domain.StatusEvent, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	return out, nil
}
