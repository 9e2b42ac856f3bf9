package model

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups every engine error code.
const Codespace = "paraport"

var (
	ErrConfigValidation    = errorsmod.Register(Codespace, 2, "invalid engine configuration")
	ErrInvalidParams       = errorsmod.Register(Codespace, 3, "invalid teleport parameters")
	ErrInvalidSession      = errorsmod.Register(Codespace, 4, "invalid session")
	ErrSessionNotFound     = errorsmod.Register(Codespace, 5, "session not found")
	ErrTeleportNotFound    = errorsmod.Register(Codespace, 6, "teleport not found")
	ErrTransactionNotFound = errorsmod.Register(Codespace, 7, "transaction not found")
	ErrProtocolNotFound    = errorsmod.Register(Codespace, 8, "bridge protocol not found")
	ErrNotInitialized      = errorsmod.Register(Codespace, 9, "not initialized")
	ErrAlreadyInitialized  = errorsmod.Register(Codespace, 10, "already initialized")
	ErrTransport           = errorsmod.Register(Codespace, 11, "transport failure")
	ErrFundsWaitExhausted  = errorsmod.Register(Codespace, 12, "funds did not arrive")
	ErrRetryNotAllowed     = errorsmod.Register(Codespace, 13, "Only failed teleports can be retried.")
)
