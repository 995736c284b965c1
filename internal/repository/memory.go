package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/internal/token"
)

type allowanceKey struct {
	owner   model.Address
	spender model.Address
}

type memoryState struct {
	roles      *model.Roles
	nextID     int64
	policies   map[int64]model.Policy
	flights    map[string]int64
	balances   map[model.Address]model.Amount
	allowances map[allowanceKey]model.Amount
	pending    []model.Event
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextID:     s.nextID,
		policies:   make(map[int64]model.Policy, len(s.policies)),
		flights:    make(map[string]int64, len(s.flights)),
		balances:   make(map[model.Address]model.Amount, len(s.balances)),
		allowances: make(map[allowanceKey]model.Amount, len(s.allowances)),
		pending:    make([]model.Event, len(s.pending)),
	}
	if s.roles != nil {
		r := *s.roles
		c.roles = &r
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.flights {
		c.flights[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.allowances {
		c.allowances[k] = v
	}
	copy(c.pending, s.pending)
	return c
}

// MemoryRepository хранит состояние реестра в памяти процесса.
// Транзакции сериализуются одним мьютексом и применяются к копии состояния,
// которая заменяет текущее только при успешном завершении.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memoryState{
			nextID:     1,
			policies:   make(map[int64]model.Policy),
			flights:    make(map[string]int64),
			balances:   make(map[model.Address]model.Amount),
			allowances: make(map[allowanceKey]model.Amount),
		},
	}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// InTx выполняет fn атомарно.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.roles == nil {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	draft := r.state.clone()
	if err := fn(&memoryTx{s: draft}); err != nil {
		return err
	}

	r.state = draft
	return nil
}

// WithToken выполняет операции с токеном в отдельной транзакции.
func (r *MemoryRepository) WithToken(ctx context.Context, fn func(t token.Token) error) error {
	return r.InTx(ctx, func(tx Tx) error {
		return fn(tx)
	})
}

// InitRoles записывает роли, если они ещё не заданы, и возвращает действующие.
func (r *MemoryRepository) InitRoles(ctx context.Context, roles model.Roles) (model.Roles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.roles == nil {
		r.state.roles = &roles
	}
	return *r.state.roles, nil
}

// Roles возвращает роли реестра.
func (r *MemoryRepository) Roles(ctx context.Context) (model.Roles, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state.roles == nil {
		return model.Roles{}, ErrNotInitialized
	}
	return *r.state.roles, nil
}

// GetPolicy возвращает копию полиса.
func (r *MemoryRepository) GetPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.state.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return &p, nil
}

// PolicyIDsByHolder возвращает идентификаторы полисов держателя.
func (r *MemoryRepository) PolicyIDsByHolder(ctx context.Context, holder model.Address) ([]int64, error) {
	policies, err := r.PoliciesByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// PoliciesByHolder возвращает полисы держателя по возрастанию идентификатора.
func (r *MemoryRepository) PoliciesByHolder(ctx context.Context, holder model.Address) ([]model.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.filter(func(p model.Policy) bool { return p.Holder == holder }), nil
}

// FlightHasPolicy сообщает, есть ли у рейса полис.
func (r *MemoryRepository) FlightHasPolicy(ctx context.Context, flightID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.state.flights[flightID]
	return ok, nil
}

// HolderHasFlight сообщает, есть ли у держателя полис на рейс.
func (r *MemoryRepository) HolderHasFlight(ctx context.Context, holder model.Address, flightID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.state.flights[flightID]
	if !ok {
		return false, nil
	}
	return r.state.policies[id].Holder == holder, nil
}

// ActivePolicyIDsForFlight возвращает активные полисы рейса.
func (r *MemoryRepository) ActivePolicyIDsForFlight(ctx context.Context, flightID string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policies := r.state.filter(func(p model.Policy) bool {
		return p.FlightID == flightID && p.Status == model.PolicyStatusActive
	})
	ids := make([]int64, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// ActiveLiability возвращает сумму выплат и число активных полисов.
func (r *MemoryRepository) ActiveLiability(ctx context.Context) (model.Amount, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		total model.Amount
		count int64
	)
	for _, p := range r.state.policies {
		if p.Status == model.PolicyStatusActive {
			total += p.Payout
			count++
		}
	}
	return total, count, nil
}

// BalanceOf возвращает баланс счёта.
func (r *MemoryRepository) BalanceOf(ctx context.Context, account model.Address) (model.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.balances[account], nil
}

// Allowance возвращает разрешение spender на списание со счёта owner.
func (r *MemoryRepository) Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.allowances[allowanceKey{owner, spender}], nil
}

// PendingEvents возвращает неопубликованные события в порядке появления.
func (r *MemoryRepository) PendingEvents(ctx context.Context, limit int) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	n := min(limit, len(r.state.pending))
	res := make([]model.Event, n)
	copy(res, r.state.pending[:n])
	return res, nil
}

// MarkEventsPublished удаляет опубликованные события из очереди.
func (r *MemoryRepository) MarkEventsPublished(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	kept := r.state.pending[:0]
	for _, e := range r.state.pending {
		if _, ok := set[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	clear(r.state.pending[len(kept):])
	r.state.pending = kept
	return nil
}

func (s *memoryState) filter(keep func(p model.Policy) bool) []model.Policy {
	var res []model.Policy
	for _, p := range s.policies {
		if keep(p) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

type memoryTx struct {
	s *memoryState
}

func (t *memoryTx) Roles(ctx context.Context) (model.Roles, error) {
	return *t.s.roles, nil
}

func (t *memoryTx) SetRoles(ctx context.Context, roles model.Roles) error {
	t.s.roles = &roles
	return nil
}

func (t *memoryTx) LockPolicy(ctx context.Context, id int64) (*model.Policy, error) {
	p, ok := t.s.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return &p, nil
}

func (t *memoryTx) FlightHasPolicy(ctx context.Context, flightID string) (bool, error) {
	_, ok := t.s.flights[flightID]
	return ok, nil
}

func (t *memoryTx) InsertPolicy(ctx context.Context, p *model.Policy) (int64, error) {
	if _, ok := t.s.flights[p.FlightID]; ok {
		return 0, ErrFlightInsured
	}

	id := t.s.nextID
	t.s.nextID++

	p.ID = id
	t.s.policies[id] = *p
	t.s.flights[p.FlightID] = id
	return id, nil
}

func (t *memoryTx) UpdatePolicy(ctx context.Context, p *model.Policy) error {
	if _, ok := t.s.policies[p.ID]; !ok {
		return ErrPolicyNotFound
	}
	t.s.policies[p.ID] = *p
	return nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, e model.Event) error {
	t.s.pending = append(t.s.pending, e)
	return nil
}

func (t *memoryTx) BalanceOf(ctx context.Context, account model.Address) (model.Amount, error) {
	return t.s.balances[account], nil
}

func (t *memoryTx) Allowance(ctx context.Context, owner, spender model.Address) (model.Amount, error) {
	return t.s.allowances[allowanceKey{owner, spender}], nil
}

func (t *memoryTx) Approve(ctx context.Context, owner, spender model.Address, amount model.Amount) error {
	if owner.IsZero() || spender.IsZero() {
		return token.ErrZeroAddress
	}
	if amount < 0 {
		return token.ErrNegativeAllowance
	}
	t.s.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

func (t *memoryTx) Transfer(ctx context.Context, from, to model.Address, amount model.Amount) error {
	if err := token.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	if t.s.balances[from] < amount {
		return token.ErrInsufficientBalance
	}
	t.s.balances[from] -= amount
	t.s.balances[to] += amount
	return nil
}

func (t *memoryTx) TransferFrom(ctx context.Context, spender, from, to model.Address, amount model.Amount) error {
	if err := token.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	key := allowanceKey{from, spender}
	if t.s.allowances[key] < amount {
		return token.ErrInsufficientAllowance
	}
	if err := t.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	t.s.allowances[key] -= amount
	return nil
}

func (t *memoryTx) Mint(ctx context.Context, to model.Address, amount model.Amount) error {
	if amount <= 0 {
		return token.ErrNonPositiveAmount
	}
	if to.IsZero() {
		return token.ErrZeroAddress
	}
	t.s.balances[to] += amount
	return nil
}
