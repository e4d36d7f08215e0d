package walletservice

type WalletServiceSignMessageRequest struct {
	Action   string `json:"action"`
	FromType string `json:"from_type"`
	FromID   string `json:"from_id"`
	TargetID string `json:"target_id"`
	Payload  struct {
		Message  string `json:"message"`
		Encoding string `json:"encoding"`
	} `json:"payload"`
}

type WalletServiceSignMessageResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
	Payload    struct {
		Signature string `json:"signature"`
	} `json:"payload"`
}

// CustodyAccount is a row of the account table mapping a custodial address
// to the wallet service's target id.
type CustodyAccount struct {
	ID             string `dynamo:"ID"`
	Address        string `dynamo:"address"`
	OrganizationID string `dynamo:"organization_id"`
	IsActivated    bool   `dynamo:"is_activated"`
	CreatedAt      int    `dynamo:"created_at"`
}
