package sweep

// Status is the result of polling an angle set or its buffers.
type Status int

const (
	NotExecuted Status = iota
	Receiving
	ReadyToExecute
	Finished
	MessagesPending
	MessagesSent
)

var statusNames = [...]string{"NOT_EXECUTED", "RECEIVING", "READY_TO_EXECUTE", "FINISHED", "MESSAGES_PENDING", "MESSAGES_SENT"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// Permission tells Advance whether a ready angle set may execute.
type Permission int

const (
	ExecuteIfReady Permission = iota
	HoldIfReady
)
