package syncbridge

import (
	"github.com/attendify/syncbridge/internal/broker"
	"github.com/attendify/syncbridge/internal/calendar"
	"github.com/attendify/syncbridge/internal/consumer"
	"github.com/attendify/syncbridge/internal/ids"
	"github.com/attendify/syncbridge/internal/locks"
	configpkg "github.com/attendify/syncbridge/internal/pipeline/config"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	"github.com/attendify/syncbridge/internal/producer"
	"github.com/attendify/syncbridge/internal/registration"
	runtimepkg "github.com/attendify/syncbridge/internal/runtime"
	"github.com/attendify/syncbridge/internal/sidecar"
	"github.com/attendify/syncbridge/internal/store"
	"github.com/attendify/syncbridge/internal/wire"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Producer  = producer.Producer
	Registrar = registration.Registrar
	Drainer   = consumer.Drainer

	Store        = store.Store
	Record       = store.Record
	MemoryStore  = store.MemoryStore
	LockRegistry = locks.Registry

	CalendarSource = calendar.Source
	CalendarEvent  = calendar.Event

	ChangeRecord = wire.ChangeRecord
	Action       = wire.Action
	Kind         = wire.Kind

	Target  = broker.Target
	Binding = broker.Binding

	SidecarStatus = sidecar.Status
)

const (
	ActionCreate   = wire.ActionCreate
	ActionUpdate   = wire.ActionUpdate
	ActionDelete   = wire.ActionDelete
	ActionRegister = wire.ActionRegister

	StatusSuccess = sidecar.StatusSuccess
	StatusError   = sidecar.StatusError
	StatusInfo    = sidecar.StatusInfo
	StatusWarning = sidecar.StatusWarning
)

var (
	NewService    = runtimepkg.NewService
	TryNewService = runtimepkg.TryNewService
	ConfigFromEnv = configpkg.FromEnv

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewMemoryStore = store.NewMemoryStore
	OpenSQLite     = store.OpenSQLite

	CreateToken = ids.NewToken

	ErrAlreadyRegistered = registration.ErrAlreadyRegistered
	ErrNotFound          = store.ErrNotFound
	ErrAlreadyExists     = store.ErrAlreadyExists
)
