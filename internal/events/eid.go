package events

// Event IDs emitted by the bus and its command task. Numeric values
// only need to be stable within one process.
const (
	InitEID ID = iota + 1

	MsgIDLimErrEID // rate-limited MSGID_LIM_ERR_EID
	QFullErrEID

	BadMsgIDEID
	BadCmdCodeEID
	LenErrEID

	EnableRouteMissingEID  // ENBL_RTE1: destination not found
	DisableRouteMissingEID // DSBL_RTE1: destination not found
	EnableRouteInvalidEID  // ENBL_RTE3: invalid MsgId/Pipe
	DisableRouteInvalidEID // DSBL_RTE3
	EnableRouteOKEID       // ENBL_RTE2: success (debug)
	DisableRouteOKEID      // DSBL_RTE2: success (debug)

	FileWriteErrEID
	SendRtgEID // SND_RTG_EID (debug)
)
