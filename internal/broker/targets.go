package broker

// Target names one fan-out destination: a topic (or direct) exchange plus the
// routing key published to it.
type Target struct {
	Exchange   string
	RoutingKey string
}

// Binding names an inbound queue and the exchange/routing-key pair it is
// bound to. The consumer declares the whole triple idempotently on every run.
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Exchange names.
const (
	UserExchange       = "user"
	EventExchange      = "event"
	SessionExchange    = "session"
	LogExchange        = "log_monitoring"
	MonitoringExchange = "monitoring"
)

// Downstream fan-out tables. Publishes are issued in slice order; delivery
// across targets is at-least-once, not exactly-once.
var (
	UserCreateTargets = []Target{
		{Exchange: UserExchange, RoutingKey: "crm.user.create"},
		{Exchange: UserExchange, RoutingKey: "facturatie.user.create"},
		{Exchange: UserExchange, RoutingKey: "kassa.user.create"},
	}
	UserUpdateTargets = []Target{
		{Exchange: UserExchange, RoutingKey: "crm.user.update"},
		{Exchange: UserExchange, RoutingKey: "facturatie.user.update"},
		{Exchange: UserExchange, RoutingKey: "kassa.user.update"},
	}
	UserDeleteTargets = []Target{
		{Exchange: UserExchange, RoutingKey: "facturatie.user.delete"},
		{Exchange: UserExchange, RoutingKey: "crm.user.delete"},
		{Exchange: UserExchange, RoutingKey: "kassa.user.delete"},
	}
	EventUpdateTargets = []Target{
		{Exchange: EventExchange, RoutingKey: "planning.event.update"},
		{Exchange: EventExchange, RoutingKey: "kassa.event.update"},
		{Exchange: EventExchange, RoutingKey: "crm.event.update"},
	}
	SessionUpdateTargets = []Target{
		{Exchange: SessionExchange, RoutingKey: "planning.session.update"},
		{Exchange: SessionExchange, RoutingKey: "crm.session.update"},
	}
)

// Monitoring targets.
var (
	ControlroomLogTarget = Target{Exchange: LogExchange, RoutingKey: "controlroom.log.event"}
	HeartbeatTarget      = Target{Exchange: MonitoringExchange, RoutingKey: "controlroom.heartbeat.ping"}
)

// Inbound queues the drain consumes from.
var (
	InboundUserCreate = Binding{Queue: "frontend_user_create", Exchange: UserExchange, RoutingKey: "frontend.user.create"}
	InboundUserUpdate = Binding{Queue: "frontend_user_update", Exchange: UserExchange, RoutingKey: "frontend.user.update"}
	InboundUserDelete = Binding{Queue: "frontend_user_delete", Exchange: UserExchange, RoutingKey: "frontend.user.delete"}
)

// InboundUserBindings lists the drain's queues in processing order.
var InboundUserBindings = []Binding{InboundUserCreate, InboundUserUpdate, InboundUserDelete}

// exchangeKind returns the AMQP exchange type declared for an exchange name.
// Everything is topic-routed except the controlroom log exchange.
func exchangeKind(exchange string) string {
	if exchange == LogExchange {
		return "direct"
	}
	return "topic"
}
