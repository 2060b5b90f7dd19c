package wire

// Action names an outbound request.
type Action string

const (
	ActionOpenDatabase            Action = "OpenDatabase"
	ActionInsert                  Action = "Insert"
	ActionUpdate                  Action = "Update"
	ActionDelete                  Action = "Delete"
	ActionBatchTransaction        Action = "BatchTransaction"
	ActionBundle                  Action = "Bundle"
	ActionValidateKey             Action = "ValidateKey"
	ActionRequestSeed             Action = "RequestSeed"
	ActionSendSeed                Action = "SendSeed"
	ActionGetRequestsForSeed      Action = "GetRequestsForSeed"
	ActionGetPublicKey            Action = "GetPublicKey"
	ActionGrantDatabaseAccess     Action = "GrantDatabaseAccess"
	ActionGetDatabaseAccessGrants Action = "GetDatabaseAccessGrants"
	ActionAcceptDatabaseAccess    Action = "AcceptDatabaseAccess"
	ActionSignOut                 Action = "SignOut"
	ActionUpdateUser              Action = "UpdateUser"
	ActionDeleteUser              Action = "DeleteUser"

	// ActionPong answers a Ping and expects no response.
	ActionPong Action = "Pong"
)

// PreValidation reports whether a is allowed before the connection has
// proven key possession.
func (a Action) PreValidation() bool {
	switch a {
	case ActionValidateKey, ActionRequestSeed, ActionSignOut, ActionPong:
		return true
	}
	return false
}

// Request is the outbound envelope.
type Request struct {
	RequestID string `json:"requestId,omitempty"`
	Action    Action `json:"action"`
	Params    any    `json:"params,omitempty"`
}
