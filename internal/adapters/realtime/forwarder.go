package realtime

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"

	"rutas_admin/internal/domain"
)

// Forwarder pipes the shared change channel into the local hub, so every API
// replica notifies its own clients.
type Forwarder struct {
	sub domain.ChangeSubscriber
	hub *Hub
}

func NewForwarder(sub domain.ChangeSubscriber, hub *Hub) *Forwarder {
	return &Forwarder{sub: sub, hub: hub}
}

// Serve implements suture.Service; a dropped subscription returns and is restarted.
func (f *Forwarder) Serve(ctx context.Context) error {
	return f.sub.Subscribe(ctx, f.hub.Broadcast)
}

func (f *Forwarder) String() string { return "change-forwarder" }

// NewSupervisor runs the given services under one restart policy.
func NewSupervisor(services ...suture.Service) *suture.Supervisor {
	sup := suture.New("realtime", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Str("event", e.String()).Msg("supervisor event")
		},
	})
	for _, s := range services {
		sup.Add(s)
	}
	return sup
}
