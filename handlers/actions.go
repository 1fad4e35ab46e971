package handlers

// Action is a ticket button. The zero value is not a valid action.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionCloseRequest
	ActionConfirmClose
	ActionCancelClose
	ActionClaim
)

var actionCustomIDs = map[Action]string{
	ActionCreate:       "create_ticket",
	ActionCloseRequest: "close_ticket",
	ActionConfirmClose: "confirm_close",
	ActionCancelClose:  "cancel_close",
	ActionClaim:        "claim_ticket",
}

var actionsByCustomID = func() map[string]Action {
	m := make(map[string]Action, len(actionCustomIDs))
	for a, id := range actionCustomIDs {
		m[id] = a
	}
	return m
}()

// CustomID is the component custom id carried by the action's button.
func (a Action) CustomID() string {
	return actionCustomIDs[a]
}

func (a Action) String() string {
	if id, ok := actionCustomIDs[a]; ok {
		return id
	}
	return "unknown"
}

func ParseAction(customID string) (Action, bool) {
	a, ok := actionsByCustomID[customID]
	return a, ok
}
