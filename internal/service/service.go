package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pumpdesk/backend/internal/cache"
	"pumpdesk/backend/internal/checkpoint"
	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/metrics"
	"pumpdesk/backend/internal/store"
	"pumpdesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const rateCacheKey = "rates:current"

type Service struct {
	repo          store.Repository
	registry      *checkpoint.Registry
	rateCache     cache.RateCache
	rateCacheTTL  time.Duration
	fallbackRates domain.RateTable
}

func New(repo store.Repository, registry *checkpoint.Registry, rateCache cache.RateCache, rateCacheTTL time.Duration, fallbackRates domain.RateTable) *Service {
	if registry == nil {
		registry = checkpoint.Default()
	}
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	if rateCacheTTL <= 0 {
		rateCacheTTL = 30 * time.Second
	}
	if len(fallbackRates) == 0 {
		fallbackRates = domain.RateTable{
			domain.FuelMS:  9550,
			domain.FuelMSP: 9820,
			domain.FuelHSD: 8730,
			domain.FuelCNG: 6540,
		}
	}

	return &Service{
		repo:          repo,
		registry:      registry,
		rateCache:     rateCache,
		rateCacheTTL:  rateCacheTTL,
		fallbackRates: fallbackRates,
	}
}

// Checkpoints returns the station layout in declaration order.
func (s *Service) Checkpoints(_ context.Context) []domain.Checkpoint {
	return s.registry.Checkpoints()
}

// CurrentRates returns the effective rate table: the latest persisted set with
// fallback defaults filled in for any fuel type missing a row. A missing or
// empty store never fails a read, the table is always complete.
func (s *Service) CurrentRates(ctx context.Context) (domain.RateSet, error) {
	set, err := s.loadRates(ctx)
	if err != nil {
		return domain.RateSet{}, err
	}

	effective := domain.RateSet{
		ID:        set.ID,
		Rates:     make(domain.RateTable, len(domain.AllFuelTypes())),
		UpdatedBy: set.UpdatedBy,
		UpdatedAt: set.UpdatedAt,
	}
	for _, fuel := range domain.AllFuelTypes() {
		effective.Rates[fuel] = set.Rates.Resolve(fuel, s.fallbackRates)
	}
	return effective, nil
}

func (s *Service) loadRates(ctx context.Context) (domain.RateSet, error) {
	cached, hit, err := s.rateCache.Get(ctx, rateCacheKey)
	if err != nil {
		metrics.IncRateCacheLookup(metrics.CacheError)
		log.Printf("[service] WARN: rate cache read failed: %v", err)
	} else if hit {
		metrics.IncRateCacheLookup(metrics.CacheHit)
		return *cached, nil
	} else {
		metrics.IncRateCacheLookup(metrics.CacheMiss)
	}

	set, err := s.repo.GetCurrentRates(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return domain.RateSet{Rates: domain.RateTable{}}, nil
		}
		return domain.RateSet{}, err
	}

	if err := s.rateCache.Set(ctx, rateCacheKey, set, s.rateCacheTTL); err != nil {
		log.Printf("[service] WARN: rate cache write failed: %v", err)
	}
	return *set, nil
}

// UpdateRates persists a new rate snapshot. Only fuel types present in the
// request are updated; absent ones keep their previous value. Admin and
// manager only.
func (s *Service) UpdateRates(ctx context.Context, req domain.RateUpdateRequest) (domain.RateSet, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return domain.RateSet{}, fmt.Errorf("admin or manager role required")
	}
	if len(req.Rates) == 0 {
		return domain.RateSet{}, store.ErrValidation
	}

	current, err := s.CurrentRates(ctx)
	if err != nil {
		return domain.RateSet{}, err
	}

	next := make(domain.RateTable, len(current.Rates))
	for fuel, rate := range current.Rates {
		next[fuel] = rate
	}
	for raw, value := range req.Rates {
		fuel, err := domain.ParseFuelType(raw)
		if err != nil {
			return domain.RateSet{}, store.ErrValidation
		}
		rate := domain.ParseAmountOrZero(value)
		if rate <= 0 {
			return domain.RateSet{}, store.ErrValidation
		}
		next[fuel] = rate
	}

	saved, err := s.repo.SaveRates(ctx, domain.RateSet{
		Rates:     next,
		UpdatedBy: actor.Username,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.RateSet{}, err
	}

	if err := s.rateCache.Invalidate(ctx, rateCacheKey); err != nil {
		log.Printf("[service] WARN: rate cache invalidate failed: %v", err)
	}

	s.logAudit(ctx, "rates_update", "rates", saved.ID, describeRates(saved.Rates))
	return *saved, nil
}

// PreviousReadings returns the supervisor-set previous meter values for every
// nozzle of the named checkpoint. Nozzles without a stored value report 0.
func (s *Service) PreviousReadings(ctx context.Context, checkpointName string) ([]domain.NozzleReading, error) {
	cp, ok := s.registry.Checkpoint(checkpointName)
	if !ok {
		return nil, store.ErrNotFound
	}

	nozzles := make([]string, 0, len(cp.Nozzles))
	for _, nz := range cp.Nozzles {
		nozzles = append(nozzles, nz.Name)
	}

	stored, err := s.repo.GetPreviousReadings(ctx, nozzles)
	if err != nil {
		return nil, err
	}

	readings := make([]domain.NozzleReading, 0, len(cp.Nozzles))
	for _, nz := range cp.Nozzles {
		readings = append(readings, domain.NozzleReading{
			Nozzle:   nz.Name,
			Previous: stored[nz.Name],
		})
	}
	return readings, nil
}

// PreviousReadingsFor returns stored previous meter values for an explicit
// nozzle list. Every nozzle must be registered.
func (s *Service) PreviousReadingsFor(ctx context.Context, nozzles []string) ([]domain.NozzleReading, error) {
	if len(nozzles) == 0 {
		return nil, store.ErrValidation
	}
	for _, nozzle := range nozzles {
		if _, ok := s.registry.FuelTypeFor(nozzle); !ok {
			return nil, fmt.Errorf("unknown nozzle %q: %w", nozzle, store.ErrValidation)
		}
	}

	stored, err := s.repo.GetPreviousReadings(ctx, nozzles)
	if err != nil {
		return nil, err
	}

	readings := make([]domain.NozzleReading, 0, len(nozzles))
	for _, nozzle := range nozzles {
		readings = append(readings, domain.NozzleReading{
			Nozzle:   nozzle,
			Previous: stored[nozzle],
		})
	}
	return readings, nil
}

// UpdatePreviousReadings overwrites stored previous meter values. Admin and
// manager only; every nozzle must belong to the registry.
func (s *Service) UpdatePreviousReadings(ctx context.Context, req domain.PreviousReadingsUpdateRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return fmt.Errorf("admin or manager role required")
	}
	if len(req.Readings) == 0 {
		return store.ErrValidation
	}

	for nozzle, reading := range req.Readings {
		if _, ok := s.registry.FuelTypeFor(nozzle); !ok {
			return fmt.Errorf("unknown nozzle %q: %w", nozzle, store.ErrValidation)
		}
		if reading < 0 {
			return store.ErrValidation
		}
	}

	if err := s.repo.SetPreviousReadings(ctx, req.Readings, actor.Username); err != nil {
		return err
	}

	s.logAudit(ctx, "previous_readings_update", "readings", "", describeReadings(req.Readings))
	return nil
}

// SubmitRequest creates an expense or holiday request for the calling actor.
func (s *Service) SubmitRequest(ctx context.Context, req domain.RequestCreateRequest) (domain.Request, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Request{}, fmt.Errorf("authentication required")
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Request{}, store.ErrValidation
	}

	request := domain.Request{
		RequesterID: actor.Username,
		Description: description,
	}

	switch req.Type {
	case domain.RequestTypeExpense:
		amount := domain.ParseAmountOrZero(req.Amount)
		if amount <= 0 {
			return domain.Request{}, store.ErrValidation
		}
		request.Type = domain.RequestTypeExpense
		request.AmountPaise = amount
	case domain.RequestTypeHoliday:
		date := strings.TrimSpace(req.Date)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return domain.Request{}, store.ErrValidation
		}
		request.Type = domain.RequestTypeHoliday
		request.Date = date
	default:
		return domain.Request{}, store.ErrValidation
	}

	created, err := s.repo.CreateRequest(ctx, request)
	if err != nil {
		return domain.Request{}, err
	}

	s.logAudit(ctx, "request_create", "request", created.ID, fmt.Sprintf("type=%s", created.Type))
	return *created, nil
}

// ListRequests returns the caller's own requests, or every request for admins
// and managers.
func (s *Service) ListRequests(ctx context.Context) ([]domain.Request, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	if actor.Role == domain.RoleAdmin || actor.Role == domain.RoleManager {
		return s.repo.ListRequests(ctx)
	}
	return s.repo.ListRequestsByRequester(ctx, actor.Username)
}

// ResolveRequest approves or rejects a pending request. Admin and manager
// only. A request that already left the pending state is never re-resolved.
func (s *Service) ResolveRequest(ctx context.Context, requestID string, status string) (domain.Request, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return domain.Request{}, fmt.Errorf("admin or manager role required")
	}
	if status != domain.RequestStatusApproved && status != domain.RequestStatusRejected {
		return domain.Request{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateRequestStatus(ctx, requestID, status, actor.Username)
	if err != nil {
		return domain.Request{}, err
	}

	s.logAudit(ctx, "request_"+status, "request", updated.ID, "")
	return *updated, nil
}

// PendingExpenses returns the caller's approved expense requests that have not
// yet been folded into a reconciliation run.
func (s *Service) PendingExpenses(ctx context.Context) ([]domain.Request, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}
	return s.repo.GetUnusedApprovedExpenses(ctx, actor.Username)
}

// SalesRecord fetches one persisted reconciliation record. Operators may only
// read their own records.
func (s *Service) SalesRecord(ctx context.Context, recordID string) (domain.SalesRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SalesRecord{}, fmt.Errorf("authentication required")
	}

	record, err := s.repo.GetSalesRecord(ctx, recordID)
	if err != nil {
		return domain.SalesRecord{}, err
	}
	if actor.Role == domain.RoleCashier && record.OperatorID != actor.Username {
		return domain.SalesRecord{}, store.ErrNotFound
	}
	return *record, nil
}

// ListSalesRecords returns records in the given date range. Operators see only
// their own; admins and managers see all.
func (s *Service) ListSalesRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}

	if actor.Role == domain.RoleAdmin || actor.Role == domain.RoleManager {
		return s.repo.ListSalesRecords(ctx, from, to)
	}
	return s.repo.ListSalesRecordsByOperator(ctx, actor.Username, from, to)
}

// FuelStock returns per-fuel tank quantities.
func (s *Service) FuelStock(ctx context.Context) ([]domain.FuelStock, error) {
	return s.repo.GetFuelStock(ctx)
}

// UpdateFuelStock overwrites tank quantities. Admin and manager only.
func (s *Service) UpdateFuelStock(ctx context.Context, req domain.FuelStockUpdateRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return fmt.Errorf("admin or manager role required")
	}
	if len(req.Quantities) == 0 {
		return store.ErrValidation
	}

	now := time.Now().UTC()
	entries := make([]domain.FuelStock, 0, len(req.Quantities))
	for raw, qty := range req.Quantities {
		fuel, err := domain.ParseFuelType(raw)
		if err != nil {
			return store.ErrValidation
		}
		if qty < 0 {
			return store.ErrValidation
		}
		entries = append(entries, domain.FuelStock{
			FuelType:       fuel,
			QuantityLiters: qty,
			UpdatedBy:      actor.Username,
			UpdatedAt:      now,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FuelType < entries[j].FuelType })

	if err := s.repo.UpdateFuelStock(ctx, entries); err != nil {
		return err
	}

	s.logAudit(ctx, "fuel_stock_update", "fuel_stock", "", fmt.Sprintf("fuels=%d", len(entries)))
	return nil
}

// FuelDensity returns the recorded hydrometer readings.
func (s *Service) FuelDensity(ctx context.Context) ([]domain.FuelDensity, error) {
	return s.repo.GetFuelDensity(ctx)
}

// UpdateFuelDensity records hydrometer readings per fuel type. Admin and
// manager only.
func (s *Service) UpdateFuelDensity(ctx context.Context, req domain.FuelDensityUpdateRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return fmt.Errorf("admin or manager role required")
	}
	if len(req.Readings) == 0 {
		return store.ErrValidation
	}

	now := time.Now().UTC()
	entries := make([]domain.FuelDensity, 0, len(req.Readings))
	for raw, reading := range req.Readings {
		fuel, err := domain.ParseFuelType(raw)
		if err != nil {
			return store.ErrValidation
		}
		if reading.HydrometerReading <= 0 {
			return store.ErrValidation
		}
		entries = append(entries, domain.FuelDensity{
			FuelType:          fuel,
			HydrometerReading: reading.HydrometerReading,
			Temperature:       reading.Temperature,
			UpdatedBy:         actor.Username,
			UpdatedAt:         now,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FuelType < entries[j].FuelType })

	if err := s.repo.UpdateFuelDensity(ctx, entries); err != nil {
		return err
	}

	s.logAudit(ctx, "fuel_density_update", "fuel_density", "", fmt.Sprintf("fuels=%d", len(entries)))
	return nil
}

// ListAuditLogs returns recent audit entries in the date range. Admin only.
func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// CreateUser registers an account. Admin only.
func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("admin role required")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 {
		return domain.User{}, store.ErrValidation
	}
	switch req.Role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier:
	default:
		return domain.User{}, store.ErrValidation
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	account := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      req.Role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", username, fmt.Sprintf("role=%s", req.Role))
	return domain.User{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

// ListUsers returns accounts without credentials. Admin only.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, domain.User{
			Username:  account.Username,
			Role:      account.Role,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return users, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func describeRates(rates domain.RateTable) string {
	fuels := make([]string, 0, len(rates))
	for fuel := range rates {
		fuels = append(fuels, string(fuel))
	}
	sort.Strings(fuels)

	parts := make([]string, 0, len(fuels))
	for _, fuel := range fuels {
		parts = append(parts, fmt.Sprintf("%s=%d", fuel, rates[domain.FuelType(fuel)]))
	}
	return strings.Join(parts, ",")
}

func describeReadings(readings map[string]int64) string {
	nozzles := make([]string, 0, len(readings))
	for nozzle := range readings {
		nozzles = append(nozzles, nozzle)
	}
	sort.Strings(nozzles)

	parts := make([]string, 0, len(nozzles))
	for _, nozzle := range nozzles {
		parts = append(parts, fmt.Sprintf("%s=%d", nozzle, readings[nozzle]))
	}
	return strings.Join(parts, ",")
}
