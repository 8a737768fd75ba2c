package reconcile

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusResolved  Status = "RESOLVED"
	StatusEscalated Status = "ESCALATED"
)

// A PENDING item stays PENDING while retries remain. ESCALATED items are only
// touched by an operator retry.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPending: true, StatusResolved: true, StatusEscalated: true},
	StatusEscalated: {StatusEscalated: true, StatusResolved: true},
	StatusResolved:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}
