package services

import (
	"raceroom/internal/models"
)

// AvailableActions lists the self-action tags the user may currently take in
// the race, given their entrant record (nil when not entered) and whether
// they are eligible to join. Handlers surface this in race payloads so
// clients never have to re-derive the state machine.
func AvailableActions(race *models.Race, entrant *models.Entrant, canJoin bool) []string {
	var actions []string

	if entrant == nil {
		if canJoin {
			switch race.State {
			case models.RaceStateOpen:
				actions = append(actions, "join")
			case models.RaceStateInvitational:
				actions = append(actions, "request_invite")
			}
		}
		return actions
	}

	switch entrant.State {
	case models.EntrantStateRequested:
		actions = append(actions, "cancel_invite")
	case models.EntrantStateInvited:
		actions = append(actions, "accept_invite", "decline_invite")
	case models.EntrantStateJoined:
		switch {
		case race.IsPreparing() || race.IsPending():
			if entrant.Ready {
				actions = append(actions, "unready")
			} else {
				actions = append(actions, "ready")
			}
			actions = append(actions, "leave")
		case race.IsInProgress():
			switch {
			case entrant.IsRunning():
				actions = append(actions, "done", "forfeit")
			case entrant.Dnf && !entrant.Dq:
				actions = append(actions, "unforfeit")
			case entrant.FinishTime != nil && !entrant.Dq:
				actions = append(actions, "undone")
			}
		}
		if race.AllowComments && !entrant.Dq &&
			(entrant.FinishTime != nil || entrant.Dnf) && entrant.Comment == nil {
			actions = append(actions, "add_comment")
		}
	}
	return actions
}
