package model

import "fmt"

// Command names accepted on the command topics.
const (
	CmdChargeLimit = "charge_limit"
	CmdCharging    = "charging"
)

// CommandRequest is a validated inbound command plus its single typed
// argument. Which of Int or Bool carries the argument depends on Name.
type CommandRequest struct {
	Name string
	Int  int
	Bool bool
}

func (r CommandRequest) String() string {
	switch r.Name {
	case CmdChargeLimit:
		return fmt.Sprintf("%s=%d", r.Name, r.Int)
	case CmdCharging:
		return fmt.Sprintf("%s=%t", r.Name, r.Bool)
	default:
		return r.Name
	}
}
