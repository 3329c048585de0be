package state

import "fleetwatch/statusclient/internal/logging"

// resolveServerLocked reconstructs the owning server for a player whose
// location may be missing from the index. Strategies run in order and the
// first match wins; a successful repair backfills the location index so later
// operations on the same player take the fast path. Callers must hold s.mu.
func (s *Store) resolveServerLocked(uuid string) (string, bool) {
	//1.- Fast path: the location index already knows the answer.
	if serverID, ok := s.locations[uuid]; ok {
		return serverID, true
	}

	//2.- Fall back to the identity ledger's recorded server.
	if identity, ok := s.identities[uuid]; ok && identity.ServerID != "" {
		s.locations[uuid] = identity.ServerID
		s.log.Debug("location repaired from identity ledger",
			logging.String("player", uuid),
			logging.String("server", identity.ServerID))
		return identity.ServerID, true
	}

	//3.- Last resort: scan every per-server grouping index for the player.
	for serverID, members := range s.grouped {
		if _, ok := members[uuid]; ok {
			s.locations[uuid] = serverID
			s.log.Debug("location repaired from grouping index",
				logging.String("player", uuid),
				logging.String("server", serverID))
			return serverID, true
		}
	}

	//4.- Unresolved: the caller must not guess.
	return "", false
}
