// Package repotest provides an in-memory repository.Store for service,
// middleware and handler tests.
package repotest

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DukeRupert/toeicprep/internal/repository"
)

// Store is a concurrency-safe in-memory Store. ExecTx serializes
// transactions but does not roll back on error.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users  map[uuid.UUID]repository.User
	plans  map[string]repository.SubscriptionPlan
	subs   map[uuid.UUID]repository.UserSubscription
	quotas []repository.UsageQuota
	vocab  []repository.VocabularyItem
	jobs   []repository.Job

	failures map[string]error
	tick     time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]repository.User),
		plans:    make(map[string]repository.SubscriptionPlan),
		subs:     make(map[uuid.UUID]repository.UserSubscription),
		failures: make(map[string]error),
		tick:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var _ repository.Store = (*Store)(nil)

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

// now returns a strictly increasing timestamp so created_at ordering is
// deterministic.
func (s *Store) now() time.Time {
	s.tick = s.tick.Add(time.Millisecond)
	return s.tick
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// =============================================================================
// Seeding helpers
// =============================================================================

// PutUser stores u, assigning an id when empty.
func (s *Store) PutUser(u repository.User) repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = u
	return u
}

// PutPlan stores a plan row.
func (s *Store) PutPlan(p repository.SubscriptionPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// PutSubscription stores the subscription row of a user.
func (s *Store) PutSubscription(sub repository.UserSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subs[sub.UserID] = sub
}

// PutQuota appends a quota row.
func (s *Store) PutQuota(q repository.UsageQuota) repository.UsageQuota {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	s.quotas = append(s.quotas, q)
	return q
}

// Quotas returns a copy of all quota rows.
func (s *Store) Quotas() []repository.UsageQuota {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.UsageQuota(nil), s.quotas...)
}

// Jobs returns a copy of all enqueued jobs.
func (s *Store) Jobs() []repository.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.Job(nil), s.jobs...)
}

// User returns the stored user row.
func (s *Store) User(id uuid.UUID) repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// Vocabulary returns a copy of all vocabulary rows.
func (s *Store) Vocabulary() []repository.VocabularyItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.VocabularyItem(nil), s.vocab...)
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateUser"); err != nil {
		return repository.User{}, err
	}
	for _, u := range s.users {
		if u.Email == arg.Email {
			return repository.User{}, uniqueViolation()
		}
	}
	now := s.now()
	u := repository.User{
		ID:           uuid.New(),
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		Name:         arg.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByID"); err != nil {
		return repository.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (s *Store) GetUserByStripeCustomerID(ctx context.Context, customerID string) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.StripeCustomerID.Valid && u.StripeCustomerID.String == customerID {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (s *Store) UpdateUserStripeCustomerID(ctx context.Context, arg repository.UpdateUserStripeCustomerIDParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[arg.ID]
	if !ok {
		return nil
	}
	u.StripeCustomerID = sql.NullString{String: arg.StripeCustomerID, Valid: true}
	s.users[arg.ID] = u
	return nil
}

func (s *Store) CountUsedTrialsByEmail(ctx context.Context, arg repository.CountUsedTrialsByEmailParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountUsedTrialsByEmail"); err != nil {
		return 0, err
	}
	var n int64
	for _, u := range s.users {
		if u.ID != arg.ExcludeUserID && u.HasUsedTrial && u.TrialEmail.Valid && u.TrialEmail.String == arg.TrialEmail {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTrialStartsByIP(ctx context.Context, arg repository.CountTrialStartsByIPParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.TrialIpAddress.Valid && u.TrialIpAddress.String == arg.TrialIpAddress &&
			u.TrialStartedAt.Valid && !u.TrialStartedAt.Time.Before(arg.Since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) LockTrialKey(ctx context.Context, key string) error {
	return nil
}

func (s *Store) StartUserTrial(ctx context.Context, arg repository.StartUserTrialParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("StartUserTrial"); err != nil {
		return repository.User{}, err
	}
	u, ok := s.users[arg.ID]
	if !ok || u.HasUsedTrial || u.TrialExpiresAt.Valid {
		return repository.User{}, sql.ErrNoRows
	}
	u.HasUsedTrial = true
	u.TrialStartedAt = sql.NullTime{Time: arg.TrialStartedAt, Valid: true}
	u.TrialExpiresAt = sql.NullTime{Time: arg.TrialExpiresAt, Valid: true}
	u.TrialEmail = sql.NullString{String: arg.TrialEmail, Valid: true}
	u.TrialIpAddress = sql.NullString{String: arg.TrialIpAddress, Valid: true}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListUsersWithExpiringTrials(ctx context.Context, arg repository.ListUsersWithExpiringTrialsParams) ([]repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.User
	for _, u := range s.users {
		if u.TrialExpiresAt.Valid && u.TrialExpiresAt.Time.After(arg.Now) &&
			!u.TrialExpiresAt.Time.After(arg.Before) && !u.TrialReminderSentAt.Valid {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialExpiresAt.Time.Before(out[j].TrialExpiresAt.Time) })
	return out, nil
}

func (s *Store) MarkTrialReminderSent(ctx context.Context, arg repository.MarkTrialReminderSentParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[arg.ID]
	if !ok || u.TrialReminderSentAt.Valid {
		return false, nil
	}
	u.TrialReminderSentAt = sql.NullTime{Time: arg.SentAt, Valid: true}
	s.users[u.ID] = u
	return true, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountUsers"); err != nil {
		return 0, err
	}
	return int64(len(s.users)), nil
}

func (s *Store) CountActiveTrials(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.TrialExpiresAt.Valid && u.TrialExpiresAt.Time.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTrialsStartedSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.TrialStartedAt.Valid && !u.TrialStartedAt.Time.Before(since) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Plans and subscriptions
// =============================================================================

func (s *Store) GetPlanByID(ctx context.Context, id string) (repository.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPlanByID"); err != nil {
		return repository.SubscriptionPlan{}, err
	}
	p, ok := s.plans[id]
	if !ok {
		return repository.SubscriptionPlan{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) ListActivePlans(ctx context.Context) ([]repository.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SubscriptionPlan
	for _, p := range s.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetPlanByStripePriceID(ctx context.Context, priceID string) (repository.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if (p.StripeMonthlyPriceID.Valid && p.StripeMonthlyPriceID.String == priceID) ||
			(p.StripeYearlyPriceID.Valid && p.StripeYearlyPriceID.String == priceID) {
			return p, nil
		}
	}
	return repository.SubscriptionPlan{}, sql.ErrNoRows
}

func (s *Store) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (repository.UserSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscriptionByUserID"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub, ok := s.subs[userID]
	if !ok {
		return repository.UserSubscription{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (repository.UserSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.StripeSubscriptionID.Valid && sub.StripeSubscriptionID.String == stripeSubscriptionID {
			return sub, nil
		}
	}
	return repository.UserSubscription{}, sql.ErrNoRows
}

func (s *Store) UpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (repository.UserSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertSubscription"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub, ok := s.subs[arg.UserID]
	if !ok {
		sub = repository.UserSubscription{ID: uuid.New(), UserID: arg.UserID, CreatedAt: s.now()}
	}
	sub.PlanID = arg.PlanID
	sub.Status = arg.Status
	sub.BillingInterval = arg.BillingInterval
	sub.StripeSubscriptionID = arg.StripeSubscriptionID
	sub.CurrentPeriodStart = arg.CurrentPeriodStart
	sub.CurrentPeriodEnd = arg.CurrentPeriodEnd
	sub.TrialStart = arg.TrialStart
	sub.TrialEnd = arg.TrialEnd
	sub.CancelAtPeriodEnd = arg.CancelAtPeriodEnd
	sub.CanceledAt = arg.CanceledAt
	sub.UpdatedAt = s.now()
	s.subs[arg.UserID] = sub
	return sub, nil
}

func (s *Store) CountSubscriptionsByStatus(ctx context.Context) ([]repository.CountSubscriptionsByStatusRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, sub := range s.subs {
		counts[sub.Status]++
	}
	var rows []repository.CountSubscriptionsByStatusRow
	for status, n := range counts {
		rows = append(rows, repository.CountSubscriptionsByStatusRow{Status: status, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
	return rows, nil
}

// =============================================================================
// Usage quotas
// =============================================================================

func (s *Store) findQuota(userID uuid.UUID, rt string, periodStart time.Time) int {
	for i, q := range s.quotas {
		if q.UserID == userID && q.ResourceType == rt && q.PeriodStart.Equal(periodStart) {
			return i
		}
	}
	return -1
}

func (s *Store) quotaByID(id uuid.UUID) int {
	for i, q := range s.quotas {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) GetQuotaForPeriod(ctx context.Context, arg repository.GetQuotaForPeriodParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetQuotaForPeriod"); err != nil {
		return repository.UsageQuota{}, err
	}
	i := s.findQuota(arg.UserID, arg.ResourceType, arg.PeriodStart)
	if i < 0 {
		return repository.UsageQuota{}, sql.ErrNoRows
	}
	return s.quotas[i], nil
}

func (s *Store) GetLatestQuota(ctx context.Context, arg repository.GetLatestQuotaParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetLatestQuota"); err != nil {
		return repository.UsageQuota{}, err
	}
	for i := len(s.quotas) - 1; i >= 0; i-- {
		q := s.quotas[i]
		if q.UserID == arg.UserID && q.ResourceType == arg.ResourceType {
			return q, nil
		}
	}
	return repository.UsageQuota{}, sql.ErrNoRows
}

func (s *Store) EnsureQuota(ctx context.Context, arg repository.EnsureQuotaParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("EnsureQuota"); err != nil {
		return repository.UsageQuota{}, err
	}
	if i := s.findQuota(arg.UserID, arg.ResourceType, arg.PeriodStart); i >= 0 {
		return s.quotas[i], nil
	}
	return s.insertQuota(arg, 0), nil
}

func (s *Store) insertQuota(arg repository.EnsureQuotaParams, used int32) repository.UsageQuota {
	now := s.now()
	q := repository.UsageQuota{
		ID:           uuid.New(),
		UserID:       arg.UserID,
		ResourceType: arg.ResourceType,
		UsedCount:    used,
		LimitCount:   arg.LimitCount,
		PeriodStart:  arg.PeriodStart,
		PeriodEnd:    arg.PeriodEnd,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.quotas = append(s.quotas, q)
	return q
}

func (s *Store) UpsertQuotaLimit(ctx context.Context, arg repository.UpsertQuotaLimitParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertQuotaLimit"); err != nil {
		return repository.UsageQuota{}, err
	}
	if i := s.findQuota(arg.UserID, arg.ResourceType, arg.PeriodStart); i >= 0 {
		s.quotas[i].LimitCount = arg.LimitCount
		s.quotas[i].PeriodEnd = arg.PeriodEnd
		return s.quotas[i], nil
	}
	return s.insertQuota(arg, 0), nil
}

func (s *Store) IncrementQuota(ctx context.Context, arg repository.IncrementQuotaParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IncrementQuota"); err != nil {
		return repository.UsageQuota{}, err
	}
	i := s.quotaByID(arg.ID)
	if i < 0 {
		return repository.UsageQuota{}, sql.ErrNoRows
	}
	s.quotas[i].UsedCount += arg.Amount
	return s.quotas[i], nil
}

func (s *Store) ConsumeQuota(ctx context.Context, arg repository.ConsumeQuotaParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ConsumeQuota"); err != nil {
		return repository.UsageQuota{}, err
	}
	i := s.quotaByID(arg.ID)
	if i < 0 {
		return repository.UsageQuota{}, sql.ErrNoRows
	}
	q := s.quotas[i]
	if q.LimitCount.Valid && q.UsedCount+arg.Amount > q.LimitCount.Int32 {
		return repository.UsageQuota{}, sql.ErrNoRows
	}
	s.quotas[i].UsedCount += arg.Amount
	return s.quotas[i], nil
}

func (s *Store) ReleaseQuota(ctx context.Context, arg repository.ReleaseQuotaParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReleaseQuota"); err != nil {
		return err
	}
	if i := s.quotaByID(arg.ID); i >= 0 {
		s.quotas[i].UsedCount -= arg.Amount
		if s.quotas[i].UsedCount < 0 {
			s.quotas[i].UsedCount = 0
		}
	}
	return nil
}

func (s *Store) UpsertIncrementQuota(ctx context.Context, arg repository.UpsertIncrementQuotaParams) (repository.UsageQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertIncrementQuota"); err != nil {
		return repository.UsageQuota{}, err
	}
	if i := s.findQuota(arg.UserID, arg.ResourceType, arg.PeriodStart); i >= 0 {
		s.quotas[i].UsedCount += arg.Amount
		return s.quotas[i], nil
	}
	return s.insertQuota(repository.EnsureQuotaParams{
		UserID:       arg.UserID,
		ResourceType: arg.ResourceType,
		LimitCount:   arg.LimitCount,
		PeriodStart:  arg.PeriodStart,
		PeriodEnd:    arg.PeriodEnd,
	}, arg.Amount), nil
}

func (s *Store) DeleteDailyQuotasBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []repository.UsageQuota
	var n int64
	for _, q := range s.quotas {
		if strings.HasPrefix(q.ResourceType, "daily_") && q.PeriodStart.Before(before) {
			n++
			continue
		}
		kept = append(kept, q)
	}
	s.quotas = kept
	return n, nil
}

func (s *Store) SumUsageByResourceSince(ctx context.Context, since time.Time) ([]repository.SumUsageByResourceSinceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]int64{}
	for _, q := range s.quotas {
		if !q.PeriodStart.Before(since) {
			totals[q.ResourceType] += int64(q.UsedCount)
		}
	}
	var rows []repository.SumUsageByResourceSinceRow
	for rt, n := range totals {
		rows = append(rows, repository.SumUsageByResourceSinceRow{ResourceType: rt, Total: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ResourceType < rows[j].ResourceType })
	return rows, nil
}

// =============================================================================
// Vocabulary
// =============================================================================

func (s *Store) vocabIndex(id, userID uuid.UUID) int {
	for i, v := range s.vocab {
		if v.ID == id && v.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Store) CreateVocabularyItem(ctx context.Context, arg repository.CreateVocabularyItemParams) (repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateVocabularyItem"); err != nil {
		return repository.VocabularyItem{}, err
	}
	for _, v := range s.vocab {
		if v.UserID == arg.UserID && v.Word == arg.Word {
			return repository.VocabularyItem{}, uniqueViolation()
		}
	}
	now := s.now()
	v := repository.VocabularyItem{
		ID:             uuid.New(),
		UserID:         arg.UserID,
		Word:           arg.Word,
		Meaning:        arg.Meaning,
		Example:        arg.Example,
		PartOfSpeech:   arg.PartOfSpeech,
		EaseFactor:     arg.EaseFactor,
		IntervalDays:   arg.IntervalDays,
		NextReviewDate: arg.NextReviewDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.vocab = append(s.vocab, v)
	return v, nil
}

func (s *Store) GetVocabularyItem(ctx context.Context, arg repository.GetVocabularyItemParams) (repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.vocabIndex(arg.ID, arg.UserID)
	if i < 0 {
		return repository.VocabularyItem{}, sql.ErrNoRows
	}
	return s.vocab[i], nil
}

func (s *Store) ListVocabularyItems(ctx context.Context, arg repository.ListVocabularyItemsParams) ([]repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.VocabularyItem
	for i := len(s.vocab) - 1; i >= 0; i-- {
		v := s.vocab[i]
		if v.UserID != arg.UserID {
			continue
		}
		if arg.Search != "" && !strings.Contains(v.Word, strings.ToLower(arg.Search)) {
			continue
		}
		out = append(out, v)
	}
	return page(out, int(arg.Offset), int(arg.Limit)), nil
}

func page(items []repository.VocabularyItem, offset, limit int) []repository.VocabularyItem {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) ListAllVocabularyItems(ctx context.Context, userID uuid.UUID) ([]repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.VocabularyItem
	for _, v := range s.vocab {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

func (s *Store) ListDueVocabularyItems(ctx context.Context, arg repository.ListDueVocabularyItemsParams) ([]repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.VocabularyItem
	for _, v := range s.vocab {
		if v.UserID != arg.UserID || v.NextReviewDate.After(arg.Now) {
			continue
		}
		if v.Mastered && !arg.IncludeMastered {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextReviewDate.Before(out[j].NextReviewDate) })
	return page(out, 0, int(arg.Limit)), nil
}

func (s *Store) CountVocabularyItems(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountVocabularyItems"); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range s.vocab {
		if v.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetVocabularyStats(ctx context.Context, arg repository.GetVocabularyStatsParams) (repository.GetVocabularyStatsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row repository.GetVocabularyStatsRow
	for _, v := range s.vocab {
		if v.UserID != arg.UserID {
			continue
		}
		row.Total++
		if v.Mastered {
			row.Mastered++
		}
		if !v.NextReviewDate.After(arg.Now) {
			row.DueNow++
			if !v.Mastered {
				row.NeedsReview++
			}
		}
		if v.LastReviewedAt.Valid && !v.LastReviewedAt.Time.Before(arg.DayStart) {
			row.ReviewedToday++
		}
	}
	return row, nil
}

func (s *Store) UpdateVocabularyReview(ctx context.Context, arg repository.UpdateVocabularyReviewParams) (repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateVocabularyReview"); err != nil {
		return repository.VocabularyItem{}, err
	}
	i := s.vocabIndex(arg.ID, arg.UserID)
	if i < 0 || s.vocab[i].ReviewCount != arg.ExpectedReviewCount {
		return repository.VocabularyItem{}, sql.ErrNoRows
	}
	v := &s.vocab[i]
	v.ReviewCount = arg.ReviewCount
	v.CorrectCount = arg.CorrectCount
	v.IncorrectCount = arg.IncorrectCount
	v.EaseFactor = arg.EaseFactor
	v.IntervalDays = arg.IntervalDays
	v.NextReviewDate = arg.NextReviewDate
	v.LastReviewedAt = arg.LastReviewedAt
	v.Mastered = arg.Mastered
	v.UpdatedAt = s.now()
	return *v, nil
}

func (s *Store) UpdateVocabularyItem(ctx context.Context, arg repository.UpdateVocabularyItemParams) (repository.VocabularyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.vocabIndex(arg.ID, arg.UserID)
	if i < 0 {
		return repository.VocabularyItem{}, sql.ErrNoRows
	}
	v := &s.vocab[i]
	v.Meaning = arg.Meaning
	v.Example = arg.Example
	v.Mastered = arg.Mastered
	v.UpdatedAt = s.now()
	return *v, nil
}

func (s *Store) DeleteVocabularyItem(ctx context.Context, arg repository.DeleteVocabularyItemParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.vocabIndex(arg.ID, arg.UserID)
	if i < 0 {
		return 0, nil
	}
	s.vocab = append(s.vocab[:i], s.vocab[i+1:]...)
	return 1, nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("EnqueueJob"); err != nil {
		return repository.Job{}, err
	}
	j := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     arg.Payload,
		Status:      "pending",
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   s.now(),
	}
	s.jobs = append(s.jobs, j)
	return j, nil
}

func (s *Store) DequeueJob(ctx context.Context) (repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := -1
	for i, j := range s.jobs {
		if j.Status != "pending" {
			continue
		}
		if best < 0 || j.Priority > s.jobs[best].Priority ||
			(j.Priority == s.jobs[best].Priority && j.ScheduledAt.Before(s.jobs[best].ScheduledAt)) {
			best = i
		}
	}
	if best < 0 {
		return repository.Job{}, sql.ErrNoRows
	}
	return s.jobs[best], nil
}

func (s *Store) setJob(id uuid.UUID, fn func(*repository.Job)) {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			fn(&s.jobs[i])
			return
		}
	}
}

func (s *Store) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setJob(id, func(j *repository.Job) {
		j.Status = "running"
		j.Attempts++
		j.StartedAt = sql.NullTime{Time: s.now(), Valid: true}
	})
	return nil
}

func (s *Store) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setJob(id, func(j *repository.Job) {
		j.Status = "completed"
		j.CompletedAt = sql.NullTime{Time: s.now(), Valid: true}
	})
	return nil
}

func (s *Store) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setJob(arg.ID, func(j *repository.Job) {
		j.ErrorMessage = arg.ErrorMessage
		if arg.Permanent || j.Attempts >= j.MaxAttempts {
			j.Status = "failed"
			return
		}
		j.Status = "pending"
	})
	return nil
}

func (s *Store) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	return 0, nil
}

func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == "pending" {
			n++
		}
	}
	return n, nil
}
