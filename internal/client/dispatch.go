package client

import (
	"errors"

	"fleetwatch/statusclient/internal/events"
	"fleetwatch/statusclient/internal/logging"
	"fleetwatch/statusclient/internal/protocol"
	"fleetwatch/statusclient/internal/state"
)

// dispatch parses one inbound frame, applies it to the store, and publishes
// the resulting domain event. Malformed and unrecognized frames are contained
// here; they never interrupt subsequent message processing.
func (c *Client) dispatch(raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger().Debug("ignoring frame", logging.Error(err))
		} else {
			c.logger().Warn("dropping malformed frame", logging.Error(err))
		}
		return
	}

	switch frame.Type {
	case protocol.TypeServerStatus:
		result := c.store.ApplyFullSync(frame.FullSync)
		c.bus.Publish(events.Envelope{Kind: events.KindFullUpdate,
			FullUpdate: &events.FullUpdate{
				ServerCount:  result.ServerCount,
				TotalPlayers: result.TotalPlayers,
			}})

	case protocol.TypeMaintenance:
		st := c.store.SetMaintenance(frame.Maintenance.Active, frame.Maintenance.StartedAt)
		c.bus.Publish(events.Envelope{Kind: events.KindMaintenanceUpdate,
			MaintenanceUpdate: &events.MaintenanceUpdate{
				Active:    st.Active,
				StartedAt: st.StartedAt,
			}})

	case protocol.TypePlayerAdd:
		c.dispatchPlayerAdd(frame.PlayerAdd)

	case protocol.TypePlayerRemove:
		c.dispatchPlayerRemove(frame.PlayerRemove)

	case protocol.TypeServerUpdate:
		touched := c.store.ApplyServerDelta(frame.ServerDeltas)
		c.bus.Publish(events.Envelope{Kind: events.KindServerUpdate,
			ServerUpdate: &events.ServerUpdate{ServerIDs: touched}})
	}
}

func (c *Client) dispatchPlayerAdd(event *protocol.PlayerEvent) {
	//1.- An add carrying a distinct previous server is an announced move.
	if event.PreviousServerID != "" && event.PreviousServerID != event.ServerID {
		c.store.MovePlayer(event.UUID, event.PreviousServerID, event.ServerID)
		c.bus.Publish(events.Envelope{Kind: events.KindPlayerMove,
			PlayerMove: &events.PlayerMove{
				UUID: event.UUID,
				From: event.PreviousServerID,
				To:   event.ServerID,
			}})
		c.publishTotal(event)
		return
	}

	result := c.store.AddPlayer(*event)
	switch result.Outcome {
	case state.AddMoved:
		//2.- A double-add from another server surfaces as a move downstream.
		c.bus.Publish(events.Envelope{Kind: events.KindPlayerMove,
			PlayerMove: &events.PlayerMove{
				UUID: event.UUID,
				From: result.MovedFrom,
				To:   event.ServerID,
			}})
	case state.AddApplied:
		c.bus.Publish(events.Envelope{Kind: events.KindPlayerAdd,
			PlayerAdd: &events.PlayerAdd{UUID: event.UUID, ServerID: event.ServerID}})
	case state.AddDuplicate:
		c.logger().Debug("duplicate player add ignored",
			logging.String("player", event.UUID),
			logging.String("server", event.ServerID))
	}
	c.publishTotal(event)
}

func (c *Client) dispatchPlayerRemove(event *protocol.PlayerEvent) {
	result := c.store.RemovePlayer(*event)
	c.bus.Publish(events.Envelope{Kind: events.KindPlayerRemove,
		PlayerRemove: &events.PlayerRemove{
			UUID:     event.UUID,
			ServerID: result.ServerID,
			Resolved: result.Resolved,
		}})
	if !result.Resolved && c.cfg.ResyncOnUnresolved {
		c.requestResync()
	}
	c.publishTotal(event)
}

func (c *Client) publishTotal(event *protocol.PlayerEvent) {
	if !event.HasTotalOnline {
		return
	}
	c.bus.Publish(events.Envelope{Kind: events.KindPlayerUpdate,
		PlayerUpdate: &events.PlayerUpdate{TotalPlayers: event.TotalOnline}})
}
