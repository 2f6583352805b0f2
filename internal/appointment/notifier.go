package appointment

// Action tags a notification event with the operation that produced it.
type Action string

const (
	ActionProcess Action = "process"
	ActionReset   Action = "reset"
	ActionConfirm Action = "confirm"
	ActionSkip    Action = "skip"
)

// Event is the transient message broadcast to connected dashboards
// after a state change. Delivery is best-effort, at most once per
// currently-connected subscriber.
type Event struct {
	Message string `json:"message"`
	Action  Action `json:"action"`
}

// Notifier fans a single event out to subscribed observers. Publish
// must never block on subscriber delivery.
type Notifier interface {
	Publish(ev Event)
}
