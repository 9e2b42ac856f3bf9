package event

// SessionEventType names a session channel.
type SessionEventType string

const (
	SessionCreated   SessionEventType = "session:created"
	SessionUpdated   SessionEventType = "session:updated"
	SessionDeleted   SessionEventType = "session:deleted"
	SessionCompleted SessionEventType = "session:completed"
	SessionFailed    SessionEventType = "session:failed"
)

func SessionEventTypes() []SessionEventType {
	return []SessionEventType{SessionCreated, SessionUpdated, SessionDeleted, SessionCompleted, SessionFailed}
}

// TeleportEventType names a teleport channel.
type TeleportEventType string

const (
	TeleportStarted   TeleportEventType = "teleport:started"
	TeleportUpdated   TeleportEventType = "teleport:updated"
	TeleportCompleted TeleportEventType = "teleport:completed"
)

func TeleportEventTypes() []TeleportEventType {
	return []TeleportEventType{TeleportStarted, TeleportUpdated, TeleportCompleted}
}

// TransactionEventType names a transaction channel.
type TransactionEventType string

const (
	TransactionStarted    TransactionEventType = "transaction:started"
	TransactionUpdated    TransactionEventType = "transaction:updated"
	TransactionProcessing TransactionEventType = "transaction:processing"
	TransactionCompleted  TransactionEventType = "transaction:completed"
	TransactionFailed     TransactionEventType = "transaction:failed"
)

func TransactionEventTypes() []TransactionEventType {
	return []TransactionEventType{TransactionStarted, TransactionUpdated, TransactionProcessing, TransactionCompleted, TransactionFailed}
}
