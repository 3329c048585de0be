package state

import (
	"sort"
	"sync"
	"time"

	"fleetwatch/statusclient/internal/logging"
	"fleetwatch/statusclient/internal/protocol"
)

// ServerSnapshot is the current known state of one fleet server. Snapshots are
// created lazily on first reference and never deleted during a session; servers
// that stop reporting simply go stale.
type ServerSnapshot struct {
	ID                 string
	DisplayName        string
	Address            string
	Online             bool
	PlayerCount        int
	MaxPlayers         int
	UptimeSeconds      int64
	TotalUptimeSeconds int64
	LastUpdate         time.Time
}

// PlayerIdentity describes one known player and the server it was last seen on.
type PlayerIdentity struct {
	UUID        string
	DisplayName string
	ServerID    string
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

// AggregateStats are derived totals recomputed wholesale after every mutation.
type AggregateStats struct {
	TotalPlayers      int
	OnlineServerCount int
	MaxUptimeSeconds  int64
}

// MaintenanceState tracks the authority-reported maintenance flag plus the
// sticky forced override.
type MaintenanceState struct {
	Active    bool
	StartedAt *time.Time
	Forced    bool
}

type uptimeBaseline struct {
	initialRunning int64
	initialTotal   int64
	capturedAt     time.Time
}

// StoreOption customises store construction.
type StoreOption func(*Store)

// WithClock overrides the store time source; primarily used in tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithExcludedServerID overrides which server id is hidden from aggregates.
func WithExcludedServerID(id string) StoreOption {
	return func(s *Store) {
		s.excludedID = id
	}
}

// Store is the authoritative in-memory ledger for the fleet. All mutations run
// atomically under one mutex, applied in the order events arrive, and finish by
// recomputing the aggregate statistics.
type Store struct {
	mu         sync.RWMutex
	log        *logging.Logger
	now        func() time.Time
	excludedID string

	servers    map[string]*ServerSnapshot
	locations  map[string]string
	identities map[string]*PlayerIdentity
	grouped    map[string]map[string]struct{}

	stats         AggregateStats
	reportedTotal int

	maintenance  MaintenanceState
	lastReported bool

	baseline         *uptimeBaseline
	displayedRunning int64
	displayedTotal   int64
}

// NewStore constructs an empty ledger.
func NewStore(logger *logging.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.L()
	}
	store := &Store{
		log:        logger,
		now:        time.Now,
		excludedID: "test",
		servers:    make(map[string]*ServerSnapshot),
		locations:  make(map[string]string),
		identities: make(map[string]*PlayerIdentity),
		grouped:    make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// FullSyncResult summarizes an applied full sync for event publication.
type FullSyncResult struct {
	ServerCount  int
	TotalPlayers int
}

// ApplyFullSync replaces the entire ledger with the authoritative payload,
// replays any embedded per-player data as adds, and re-baselines uptime.
func (s *Store) ApplyFullSync(sync *protocol.FullSync) FullSyncResult {
	if s == nil || sync == nil {
		return FullSyncResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Rebuild the server map wholesale from the payload.
	s.servers = make(map[string]*ServerSnapshot, len(sync.Servers))
	now := s.now()
	for _, delta := range sync.Servers {
		snapshot := &ServerSnapshot{ID: delta.ID, LastUpdate: now}
		applyDelta(snapshot, delta)
		s.servers[delta.ID] = snapshot
	}

	//2.- A full sync re-baselines the player ledgers too; stale locations from
	// before the sync would double count players replayed below.
	s.locations = make(map[string]string)
	s.identities = make(map[string]*PlayerIdentity)
	s.grouped = make(map[string]map[string]struct{})
	for _, detail := range sync.PlayerDetails {
		if detail.UUID == "" || detail.ServerID == "" {
			continue
		}
		s.recordIdentityLocked(detail.UUID, detail.DisplayName, detail.ServerID)
		s.locations[detail.UUID] = detail.ServerID
	}

	if sync.HasTotalOnline {
		s.reportedTotal = sync.TotalOnline
	}

	//3.- Apply the maintenance flag and reset the uptime baseline.
	s.setMaintenanceLocked(sync.IsMaintenance, sync.MaintenanceStart)
	if s.maintenance.Active {
		s.baseline = nil
	} else {
		s.baseline = &uptimeBaseline{
			initialRunning: sync.RunningTime,
			initialTotal:   sync.TotalRunningTime,
			capturedAt:     now,
		}
		s.displayedRunning = sync.RunningTime
		s.displayedTotal = sync.TotalRunningTime
	}

	s.recomputeStatsLocked()
	return FullSyncResult{ServerCount: len(s.servers), TotalPlayers: s.stats.TotalPlayers}
}

// ApplyServerDelta upserts the referenced servers, preserving previously known
// fields the delta does not carry, and returns the touched identifiers.
func (s *Store) ApplyServerDelta(deltas []protocol.ServerDelta) []string {
	if s == nil || len(deltas) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make([]string, 0, len(deltas))
	now := s.now()
	for _, delta := range deltas {
		if delta.ID == "" {
			continue
		}
		snapshot, ok := s.servers[delta.ID]
		if !ok {
			snapshot = &ServerSnapshot{ID: delta.ID}
			s.servers[delta.ID] = snapshot
		}
		applyDelta(snapshot, delta)
		snapshot.LastUpdate = now
		touched = append(touched, delta.ID)
	}
	sort.Strings(touched)

	s.recomputeStatsLocked()
	return touched
}

func applyDelta(snapshot *ServerSnapshot, delta protocol.ServerDelta) {
	if delta.DisplayName != "" {
		snapshot.DisplayName = delta.DisplayName
	}
	if delta.Address != "" {
		snapshot.Address = delta.Address
	}
	if delta.HasOnline {
		snapshot.Online = delta.Online
	}
	if delta.HasCount {
		snapshot.PlayerCount = delta.PlayerCount
		if snapshot.PlayerCount < 0 {
			snapshot.PlayerCount = 0
		}
	}
	if delta.HasMaxPlayers {
		snapshot.MaxPlayers = delta.MaxPlayers
	}
	if delta.HasUptime {
		snapshot.UptimeSeconds = delta.UptimeSeconds
	}
	if delta.HasTotalUptime {
		snapshot.TotalUptimeSeconds = delta.TotalUptime
	}
}

// AddOutcome reports how an add event mutated the ledger.
type AddOutcome int

const (
	// AddApplied means the player was newly recorded on the server.
	AddApplied AddOutcome = iota
	// AddDuplicate means the same location was already on record; no change.
	AddDuplicate
	// AddMoved means the player was on record elsewhere and was moved instead.
	AddMoved
)

// AddResult carries the outcome of AddPlayer plus the source of an implicit move.
type AddResult struct {
	Outcome   AddOutcome
	MovedFrom string
}

// AddPlayer records a player joining a server. Duplicate adds are idempotent;
// an add for a player recorded elsewhere is treated as an implicit move.
func (s *Store) AddPlayer(event protocol.PlayerEvent) AddResult {
	//1.- An empty server reference has no place in the ledger; recording it
	// would create a phantom "" grouping that repair could later resolve to.
	if s == nil || event.UUID == "" || event.ServerID == "" {
		return AddResult{Outcome: AddDuplicate}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.HasTotalOnline {
		s.reportedTotal = event.TotalOnline
	}

	result := s.addPlayerLocked(event.UUID, event.DisplayName, event.ServerID)
	s.recomputeStatsLocked()
	return result
}

func (s *Store) addPlayerLocked(uuid, displayName, serverID string) AddResult {
	existing, onRecord := s.locations[uuid]
	if onRecord && existing == serverID {
		//1.- Duplicate signal: refresh last-seen and leave counts untouched.
		if identity, ok := s.identities[uuid]; ok {
			identity.LastSeenAt = s.now()
		}
		return AddResult{Outcome: AddDuplicate}
	}
	if onRecord {
		//2.- Double-add from another server is an implicit move, not a recount.
		s.movePlayerLocked(uuid, existing, serverID)
		s.recordIdentityLocked(uuid, displayName, serverID)
		return AddResult{Outcome: AddMoved, MovedFrom: existing}
	}

	s.locations[uuid] = serverID
	if snapshot, ok := s.servers[serverID]; ok {
		snapshot.PlayerCount++
	} else {
		//3.- Unknown server: keep the location for later repair, skip the count.
		s.log.Warn("player added to unknown server",
			logging.String("player", uuid),
			logging.String("server", serverID))
	}
	s.recordIdentityLocked(uuid, displayName, serverID)
	return AddResult{Outcome: AddApplied}
}

func (s *Store) recordIdentityLocked(uuid, displayName, serverID string) {
	identity, ok := s.identities[uuid]
	now := s.now()
	if !ok {
		identity = &PlayerIdentity{UUID: uuid, JoinedAt: now}
		s.identities[uuid] = identity
	}
	if displayName != "" {
		identity.DisplayName = displayName
	}
	if identity.ServerID != serverID {
		s.dropGroupMemberLocked(identity.ServerID, uuid)
	}
	identity.ServerID = serverID
	identity.LastSeenAt = now
	members, ok := s.grouped[serverID]
	if !ok {
		members = make(map[string]struct{})
		s.grouped[serverID] = members
	}
	members[uuid] = struct{}{}
}

func (s *Store) dropGroupMemberLocked(serverID, uuid string) {
	if serverID == "" {
		return
	}
	if members, ok := s.grouped[serverID]; ok {
		delete(members, uuid)
		if len(members) == 0 {
			delete(s.grouped, serverID)
		}
	}
}

// RemoveResult carries the outcome of RemovePlayer.
type RemoveResult struct {
	Resolved bool
	ServerID string
}

// RemovePlayer records a player leaving. The owning server is resolved via the
// repair chain; counts never go below zero. An unresolvable removal leaves the
// server ledger untouched beyond best-effort identity cleanup.
func (s *Store) RemovePlayer(event protocol.PlayerEvent) RemoveResult {
	if s == nil || event.UUID == "" {
		return RemoveResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.HasTotalOnline {
		s.reportedTotal = event.TotalOnline
	}

	serverID, resolved := s.resolveServerLocked(event.UUID)
	if !resolved {
		s.log.Warn("player removal unresolved by repair chain",
			logging.String("player", event.UUID))
		s.deleteIdentityLocked(event.UUID)
		s.recomputeStatsLocked()
		return RemoveResult{}
	}

	if snapshot, ok := s.servers[serverID]; ok {
		if snapshot.PlayerCount > 0 {
			snapshot.PlayerCount--
		} else {
			s.log.Warn("player removal would drive count negative",
				logging.String("player", event.UUID),
				logging.String("server", serverID))
		}
	}
	delete(s.locations, event.UUID)
	s.deleteIdentityLocked(event.UUID)

	s.recomputeStatsLocked()
	return RemoveResult{Resolved: true, ServerID: serverID}
}

func (s *Store) deleteIdentityLocked(uuid string) {
	if identity, ok := s.identities[uuid]; ok {
		s.dropGroupMemberLocked(identity.ServerID, uuid)
		delete(s.identities, uuid)
	}
}

// MovePlayer relocates a player between servers. When the recorded location
// disagrees with the announced source, the recorded location wins. One-sided
// updates are applied when only one snapshot exists; dropping the event would
// lose more information than a partial repair.
func (s *Store) MovePlayer(uuid, from, to string) {
	if s == nil || uuid == "" || to == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.movePlayerLocked(uuid, from, to)
	if identity, ok := s.identities[uuid]; ok {
		s.recordIdentityLocked(uuid, identity.DisplayName, to)
	}
	s.recomputeStatsLocked()
}

func (s *Store) movePlayerLocked(uuid, from, to string) {
	//1.- Trust the recorded location over the announced source when they disagree.
	if recorded, ok := s.locations[uuid]; ok && recorded != from {
		from = recorded
	}

	if source, ok := s.servers[from]; ok {
		if source.PlayerCount > 0 {
			source.PlayerCount--
		} else {
			s.log.Warn("move source count already zero",
				logging.String("player", uuid),
				logging.String("server", from))
		}
	}
	if destination, ok := s.servers[to]; ok {
		destination.PlayerCount++
	} else {
		s.log.Warn("player moved to unknown server",
			logging.String("player", uuid),
			logging.String("server", to))
	}
	//2.- The location index always follows the move, even when a side is missing.
	s.locations[uuid] = to
}

// SetMaintenance applies an authority maintenance signal and reports the
// resulting state. The forced override pins maintenance on until cleared.
func (s *Store) SetMaintenance(active bool, startedAt *time.Time) MaintenanceState {
	if s == nil {
		return MaintenanceState{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.maintenance.Active
	s.setMaintenanceLocked(active, startedAt)
	if s.maintenance.Active && !wasActive {
		//1.- Entering maintenance stops uptime extrapolation entirely.
		s.baseline = nil
	}
	if !s.maintenance.Active && wasActive {
		//2.- Exiting maintenance re-baselines from the last displayed counters.
		s.baseline = &uptimeBaseline{
			initialRunning: s.displayedRunning,
			initialTotal:   s.displayedTotal,
			capturedAt:     s.now(),
		}
	}
	return s.maintenance
}

func (s *Store) setMaintenanceLocked(active bool, startedAt *time.Time) {
	s.lastReported = active
	s.maintenance.Active = active || s.maintenance.Forced
	if s.maintenance.Active {
		if startedAt != nil {
			s.maintenance.StartedAt = startedAt
		} else if s.maintenance.StartedAt == nil {
			now := s.now()
			s.maintenance.StartedAt = &now
		}
	} else {
		s.maintenance.StartedAt = nil
	}
}

// ForceMaintenance pins maintenance mode on regardless of authority signals.
func (s *Store) ForceMaintenance() MaintenanceState {
	if s == nil {
		return MaintenanceState{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance.Forced = true
	wasActive := s.maintenance.Active
	s.setMaintenanceLocked(s.lastReported, s.maintenance.StartedAt)
	if !wasActive && s.maintenance.Active {
		s.baseline = nil
	}
	return s.maintenance
}

// ClearForcedMaintenance releases the override; the flag reverts to the latest
// authority-reported value.
func (s *Store) ClearForcedMaintenance() MaintenanceState {
	if s == nil {
		return MaintenanceState{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance.Forced = false
	wasActive := s.maintenance.Active
	s.setMaintenanceLocked(s.lastReported, s.maintenance.StartedAt)
	if wasActive && !s.maintenance.Active {
		s.baseline = &uptimeBaseline{
			initialRunning: s.displayedRunning,
			initialTotal:   s.displayedTotal,
			capturedAt:     s.now(),
		}
	}
	return s.maintenance
}

// Reset wipes the entire ledger; used on teardown.
func (s *Store) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = make(map[string]*ServerSnapshot)
	s.locations = make(map[string]string)
	s.identities = make(map[string]*PlayerIdentity)
	s.grouped = make(map[string]map[string]struct{})
	s.stats = AggregateStats{}
	s.reportedTotal = 0
	s.maintenance = MaintenanceState{}
	s.lastReported = false
	s.baseline = nil
	s.displayedRunning = 0
	s.displayedTotal = 0
}

func (s *Store) recomputeStatsLocked() {
	stats := AggregateStats{}
	for id, snapshot := range s.servers {
		if snapshot.UptimeSeconds > stats.MaxUptimeSeconds {
			stats.MaxUptimeSeconds = snapshot.UptimeSeconds
		}
		//1.- The internal test server stays out of the player and online totals.
		if id == s.excludedID {
			continue
		}
		stats.TotalPlayers += snapshot.PlayerCount
		if snapshot.Online {
			stats.OnlineServerCount++
		}
	}
	s.stats = stats
}

// Server returns a copy of the snapshot for the given id.
func (s *Store) Server(id string) (ServerSnapshot, bool) {
	if s == nil {
		return ServerSnapshot{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.servers[id]
	if !ok {
		return ServerSnapshot{}, false
	}
	return *snapshot, true
}

// Servers returns copies of all snapshots ordered by id.
func (s *Store) Servers() []ServerSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshots := make([]ServerSnapshot, 0, len(s.servers))
	for _, snapshot := range s.servers {
		snapshots = append(snapshots, *snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots
}

// Location reports the recorded server for the player, if any.
func (s *Store) Location(uuid string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	serverID, ok := s.locations[uuid]
	return serverID, ok
}

// Identity returns a copy of the identity record for the player, if any.
func (s *Store) Identity(uuid string) (PlayerIdentity, bool) {
	if s == nil {
		return PlayerIdentity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[uuid]
	if !ok {
		return PlayerIdentity{}, false
	}
	return *identity, true
}

// PlayersOn returns copies of the identities grouped under the server, ordered by uuid.
func (s *Store) PlayersOn(serverID string) []PlayerIdentity {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.grouped[serverID]
	if !ok {
		return nil
	}
	players := make([]PlayerIdentity, 0, len(members))
	for uuid := range members {
		if identity, ok := s.identities[uuid]; ok {
			players = append(players, *identity)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UUID < players[j].UUID })
	return players
}

// Stats returns the current aggregate statistics.
func (s *Store) Stats() AggregateStats {
	if s == nil {
		return AggregateStats{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// ReportedTotal returns the authority's last reported total player count.
func (s *Store) ReportedTotal() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reportedTotal
}

// Maintenance returns the current maintenance state.
func (s *Store) Maintenance() MaintenanceState {
	if s == nil {
		return MaintenanceState{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maintenance
}

// Uptime returns the most recently published running and total counters.
func (s *Store) Uptime() (running, total int64) {
	if s == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayedRunning, s.displayedTotal
}

// TickUptime extrapolates the uptime counters from the captured baseline. It
// reports false when no baseline is armed, in which case nothing advances.
func (s *Store) TickUptime() (running, total int64, ok bool) {
	if s == nil {
		return 0, 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseline == nil {
		return 0, 0, false
	}
	elapsed := int64(s.now().Sub(s.baseline.capturedAt) / time.Second)
	s.displayedRunning = s.baseline.initialRunning + elapsed
	s.displayedTotal = s.baseline.initialTotal + elapsed
	return s.displayedRunning, s.displayedTotal, true
}
