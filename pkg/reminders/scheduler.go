package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/config"
	"github.com/arielsz/jarvisz/pkg/logger"
)

const morningInvite = "☀️ Buen día. ¿Arrancamos con el check-in de la mañana?"
const eveningInvite = "🌙 Cierre del día. ¿Hacemos el check-in nocturno?"

type job struct {
	name   string
	expr   string
	text   string
	button string
}

// Scheduler fires the daily check-in invitations on the configured cron
// expressions. Schedules are evaluated in the assistant's timezone.
type Scheduler struct {
	bus  *bus.MessageBus
	cfg  config.RemindersConfig
	loc  *time.Location
	jobs []job

	now func() time.Time
}

// NewScheduler validates the cron expressions and builds the scheduler.
func NewScheduler(b *bus.MessageBus, cfg config.RemindersConfig, loc *time.Location) (*Scheduler, error) {
	g := gronx.New()
	jobs := []job{
		{name: "morning", expr: cfg.MorningCron, text: morningInvite, button: "☀️ Mañana"},
		{name: "evening", expr: cfg.EveningCron, text: eveningInvite, button: "🌙 Noche"},
	}
	for _, j := range jobs {
		if !g.IsValid(j.expr) {
			return nil, fmt.Errorf("invalid %s cron expression: %q", j.name, j.expr)
		}
	}
	return &Scheduler{
		bus:  b,
		cfg:  cfg,
		loc:  loc,
		jobs: jobs,
		now:  time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, firing each job at its next cron tick.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled || s.cfg.ChatID == "" {
		logger.InfoC("reminders", "scheduler disabled")
		return
	}

	for _, j := range s.jobs {
		go s.runJob(ctx, j)
	}
	<-ctx.Done()
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	for {
		next, err := gronx.NextTickAfter(j.expr, s.now().In(s.loc), false)
		if err != nil {
			logger.ErrorCF("reminders", "cron evaluation failed", map[string]interface{}{
				"job": j.name, "error": err.Error(),
			})
			return
		}

		wait := next.Sub(s.now())
		logger.DebugCF("reminders", "next tick scheduled", map[string]interface{}{
			"job": j.name, "at": next.Format(time.RFC3339),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		s.fire(j)
	}
}

func (s *Scheduler) fire(j job) {
	s.bus.PublishOutbound(bus.OutboundMessage{
		Channel: s.cfg.Channel,
		ChatID:  s.cfg.ChatID,
		Content: j.text,
		Buttons: []string{j.button},
	})
	logger.InfoCF("reminders", "invitation sent", map[string]interface{}{
		"job": j.name, "chat_id": s.cfg.ChatID,
	})
}
