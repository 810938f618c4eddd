package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/checkin"
	"github.com/arielsz/jarvisz/pkg/format"
	"github.com/arielsz/jarvisz/pkg/gateway"
	"github.com/arielsz/jarvisz/pkg/interactions"
	"github.com/arielsz/jarvisz/pkg/logger"
	"github.com/arielsz/jarvisz/pkg/session"
	"github.com/arielsz/jarvisz/pkg/sources"
	"github.com/arielsz/jarvisz/pkg/timers"
)

const readMoreLabel = "... Leer más ⬇️"

// affirmatives are the literal answers that confirm a pending action. Any
// other reply cancels it.
var affirmatives = map[string]bool{
	"si": true, "sí": true, "confirmar": true, "dale": true, "ok": true, "yes": true,
}

// Deps bundles everything the assistant needs. Calendar, Tasks, Biometrics
// and the stores may be nil: the matching features degrade instead of
// crashing.
type Deps struct {
	Bus          *bus.MessageBus
	Gateway      *gateway.Gateway
	Calendar     sources.Calendar
	Tasks        sources.Tasks
	Biometrics   sources.Biometrics
	Sessions     *session.Store
	Splitter     *format.Splitter
	Timers       *timers.Manager
	Interactions *interactions.Store
	Checkins     *checkin.Store
	Location     *time.Location
}

// Assistant consumes inbound messages and drives the whole conversation:
// routing, confirmations, check-ins, pagination and timers.
type Assistant struct {
	bus          *bus.MessageBus
	gw           *gateway.Gateway
	cal          sources.Calendar
	tasks        sources.Tasks
	bio          sources.Biometrics
	sessions     *session.Store
	splitter     *format.Splitter
	timers       *timers.Manager
	interactions *interactions.Store
	checkins     *checkin.Store
	loc          *time.Location

	now func() time.Time
}

func New(deps Deps) *Assistant {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	splitter := deps.Splitter
	if splitter == nil {
		splitter = format.NewSplitter(0, 0)
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewStore()
	}
	return &Assistant{
		bus:          deps.Bus,
		gw:           deps.Gateway,
		cal:          deps.Calendar,
		tasks:        deps.Tasks,
		bio:          deps.Biometrics,
		sessions:     sessions,
		splitter:     splitter,
		timers:       deps.Timers,
		interactions: deps.Interactions,
		checkins:     deps.Checkins,
		loc:          loc,
		now:          time.Now,
	}
}

// Run consumes the inbound bus until ctx is cancelled. Messages from
// different users are handled concurrently; the session store serializes
// messages of the same user.
func (a *Assistant) Run(ctx context.Context) {
	logger.InfoC("assistant", "Assistant loop started")
	for {
		msg, ok := a.bus.ConsumeInbound(ctx)
		if !ok {
			if ctx.Err() != nil {
				logger.InfoC("assistant", "Assistant loop stopped")
				return
			}
			continue
		}
		go a.handleMessage(ctx, msg)
	}
}

func userKey(msg bus.InboundMessage) string {
	if id := msg.Metadata["user_id"]; id != "" {
		return id
	}
	id := msg.SenderID
	if idx := strings.Index(id, "|"); idx > 0 {
		id = id[:idx]
	}
	return id
}

func (a *Assistant) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	a.sessions.Do(userKey(msg), func(s *session.Session) {
		a.process(ctx, msg, s)
	})
}

func (a *Assistant) send(channel, chatID, content string, buttons []string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	a.bus.PublishOutbound(bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
		Buttons: buttons,
	})
}

func isReadMore(msg bus.InboundMessage, lower string) bool {
	if lower == "smart_page" || lower == "leer más" {
		return true
	}
	return msg.IsCallback() && strings.Contains(lower, "leer más")
}

func (a *Assistant) process(ctx context.Context, msg bus.InboundMessage, s *session.Session) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return
	}
	lower := strings.ToLower(text)

	// "Leer más" continues a paginated response regardless of anything else
	// in flight.
	if isReadMore(msg, lower) {
		a.continuePagination(msg, s)
		return
	}

	// A pending mutation is resolved by the very next message, before any
	// routing happens.
	if s.Pending != nil {
		pending := s.Pending
		s.Pending = nil
		a.resolvePending(ctx, msg, pending, lower)
		return
	}

	if strings.HasPrefix(text, "/") {
		a.handleCommand(ctx, msg, s, text)
		return
	}

	if lower == "volver" {
		if a.timers != nil && a.timers.Cancel(msg.ChatID) {
			a.send(msg.Channel, msg.ChatID, "🔕 Timer cancelado. Volvemos.", nil)
		} else {
			a.send(msg.Channel, msg.ChatID, "No hay ningún timer activo.", nil)
		}
		return
	}

	// Mid check-in every message feeds the flow.
	if s.Checkin != nil && s.Checkin.Phase != session.CheckinIdle {
		a.advanceCheckin(ctx, msg, s, text)
		return
	}

	// /checkin keyboard answers.
	switch text {
	case "☀️ Mañana":
		a.startMorningCheckin(ctx, msg, s)
		return
	case "🌙 Noche":
		state, opener := checkin.StartEvening()
		s.Checkin = state
		a.send(msg.Channel, msg.ChatID, opener, nil)
		return
	}

	a.route(ctx, msg, s, text)
}

func (a *Assistant) handleCommand(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string) {
	// Any command aborts an in-flight check-in.
	s.Checkin = nil

	cmd := strings.ToLower(strings.Fields(text)[0])
	switch cmd {
	case "/start":
		a.send(msg.Channel, msg.ChatID, "Hola Ariel. Soy JARVISZ. Estoy listo para ayudarte.", nil)
	case "/help":
		a.send(msg.Channel, msg.ChatID, "Comandos disponibles:\n/start - Iniciar\n/checkin - Registrar estado\n/sos - Modo protección", nil)
	case "/checkin":
		a.send(msg.Channel, msg.ChatID, "¿Qué check-in querés hacer?", checkin.KindButtons)
	case "/sos":
		a.send(msg.Channel, msg.ChatID, "⚠️ Modo Protección Activado. Respira.", nil)
	default:
		a.send(msg.Channel, msg.ChatID, "No conozco ese comando. Probá /help.", nil)
	}
}

// --- Confirmation loop ---

func (a *Assistant) resolvePending(ctx context.Context, msg bus.InboundMessage, p *session.PendingAction, lower string) {
	if !affirmatives[lower] {
		a.send(msg.Channel, msg.ChatID, "🚫 Cancelado.", nil)
		return
	}

	var outcome string
	switch p.Kind {
	case gateway.ActionCreateEvent:
		if a.cal == nil {
			outcome = "❌ Error al agendar."
			break
		}
		if err := a.cal.AddEvent(ctx, p.Summary, p.StartTime); err != nil {
			logger.ErrorCF("assistant", "create event failed", map[string]interface{}{"error": err.Error()})
			outcome = "❌ Error al agendar."
		} else {
			outcome = fmt.Sprintf("✅ Agendado: %s", p.Summary)
		}

	case gateway.ActionDeleteEvent:
		if a.cal == nil {
			outcome = "❌ Error al eliminar."
			break
		}
		if err := a.cal.DeleteEvent(ctx, p.TargetID); err != nil {
			logger.ErrorCF("assistant", "delete event failed", map[string]interface{}{"error": err.Error()})
			outcome = "❌ Error al eliminar."
		} else {
			outcome = fmt.Sprintf("🗑️ Evento '%s' eliminado.", p.Summary)
		}

	case gateway.ActionCreateTask:
		if a.tasks == nil {
			outcome = "❌ Error al crear tarea."
			break
		}
		if err := a.tasks.CreateTask(ctx, p.Summary, p.StartTime); err != nil {
			logger.ErrorCF("assistant", "create task failed", map[string]interface{}{"error": err.Error()})
			outcome = "❌ Error al crear tarea."
		} else {
			outcome = fmt.Sprintf("✅ Tarea creada: %s", p.Summary)
		}

	case gateway.ActionDeleteTask:
		if a.tasks == nil {
			outcome = "❌ Error al eliminar tarea."
			break
		}
		if err := a.tasks.DeleteTask(ctx, p.TargetID, p.ListID); err != nil {
			logger.ErrorCF("assistant", "delete task failed", map[string]interface{}{"error": err.Error()})
			outcome = "❌ Error al eliminar tarea."
		} else {
			outcome = fmt.Sprintf("🗑️ Tarea '%s' eliminada.", p.Summary)
		}

	default:
		outcome = "🚫 Cancelado."
	}

	a.send(msg.Channel, msg.ChatID, outcome, nil)
}

// --- Check-ins ---

func (a *Assistant) startMorningCheckin(ctx context.Context, msg bus.InboundMessage, s *session.Session) {
	var metrics *gateway.Metrics
	if a.bio != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		m, err := a.bio.TodayMetrics(fetchCtx)
		if err != nil {
			logger.WarnCF("assistant", "biometrics unavailable for check-in", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			metrics = m
		}
	}

	state, opener, buttons := checkin.StartMorning(metrics)
	s.Checkin = state
	a.send(msg.Channel, msg.ChatID, opener, buttons)
}

func (a *Assistant) advanceCheckin(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string) {
	state := s.Checkin
	reply, buttons, done := checkin.Advance(state, text)
	if !done {
		a.send(msg.Channel, msg.ChatID, reply, buttons)
		return
	}
	s.Checkin = nil

	if state.Evening {
		a.send(msg.Channel, msg.ChatID, reply, nil)
	} else {
		analysis, err := a.gw.AnalyzeCheckin(ctx, state.Answers, text)
		if err != nil {
			logger.WarnCF("assistant", "check-in analysis failed", map[string]interface{}{
				"error": err.Error(),
			})
			analysis = "✅ Check-in registrado. No pude analizarlo ahora, pero quedó guardado."
		}
		a.smartSend(msg, s, analysis)
	}

	if a.checkins != nil {
		entry := checkin.FromAnswers(userKey(msg), state.Evening, state.Answers)
		if _, err := a.checkins.Save(ctx, entry); err != nil {
			logger.ErrorCF("assistant", "check-in save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// --- Routing ---

func (a *Assistant) route(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string) {
	lane := a.gw.Classify(ctx, text)
	logger.DebugCF("assistant", "message routed", map[string]interface{}{
		"lane": string(lane), "chat_id": msg.ChatID,
	})

	switch lane {
	case gateway.LaneManagement:
		a.handleManagement(ctx, msg, s, text)
	case gateway.LaneBreakdown:
		a.handleBreakdown(ctx, msg, s, text)
	case gateway.LaneCasual:
		a.converse(ctx, msg, s, text, gateway.LaneCasual)
	default:
		a.converse(ctx, msg, s, text, gateway.LaneConsultant)
	}
}

func (a *Assistant) handleManagement(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string) {
	req, err := a.gw.ExtractIntent(ctx, text, a.now())
	if err != nil {
		logger.DebugCF("assistant", "intent extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
		a.send(msg.Channel, msg.ChatID,
			"🤔 No entendí qué querés hacer con la agenda o las tareas. ¿Me lo decís de otra forma?", nil)
		return
	}

	switch req.Action {
	case gateway.ActionReadCalendar:
		if a.cal == nil {
			a.send(msg.Channel, msg.ChatID, "No tengo el calendario configurado.", nil)
			return
		}
		agenda, err := a.cal.Agenda(ctx, 7)
		if err != nil {
			logger.ErrorCF("assistant", "agenda fetch failed", map[string]interface{}{"error": err.Error()})
			a.send(msg.Channel, msg.ChatID, "❌ Error leyendo calendario.", nil)
			return
		}
		// The agenda is already formatted, send it verbatim.
		reply := "📅 **Agenda Semanal:**\n\n" + agenda
		a.smartSend(msg, s, reply)
		a.logInteraction(ctx, msg, text, reply, gateway.LaneManagement, gateway.Context{Agenda: agenda})

	case gateway.ActionReadTasks:
		if a.tasks == nil {
			a.send(msg.Channel, msg.ChatID, "No tengo las tareas configuradas.", nil)
			return
		}
		list, err := a.tasks.PendingList(ctx)
		if err != nil {
			logger.ErrorCF("assistant", "task fetch failed", map[string]interface{}{"error": err.Error()})
			a.send(msg.Channel, msg.ChatID, "❌ Error leyendo tareas.", nil)
			return
		}
		// The task list goes through the model for a short summary. If that
		// call fails the raw list still goes out.
		reply, rerr := a.gw.Respond(ctx, text, gateway.Context{Tasks: list}, nil)
		if rerr != nil {
			logger.WarnCF("assistant", "task summary failed", map[string]interface{}{"error": rerr.Error()})
			reply = "📋 **Pendientes:**\n\n" + list
		}
		a.smartSend(msg, s, reply)
		a.logInteraction(ctx, msg, text, reply, gateway.LaneManagement, gateway.Context{Tasks: list})

	case gateway.ActionCreateEvent:
		s.Pending = &session.PendingAction{Kind: req.Action, Summary: req.Summary, StartTime: req.StartTime}
		pretty := strings.Replace(req.StartTime, "T", " ", 1)
		a.send(msg.Channel, msg.ChatID,
			fmt.Sprintf("📅 **Confirmar Agendar:**\n\n📝 %s\n🕒 %s\n\n(Sí/No)", req.Summary, pretty),
			[]string{"Sí", "No"})

	case gateway.ActionDeleteEvent:
		if a.cal == nil {
			a.send(msg.Channel, msg.ChatID, "No tengo el calendario configurado.", nil)
			return
		}
		ev, err := a.cal.FindNextEvent(ctx, req.Summary)
		if err != nil {
			logger.ErrorCF("assistant", "event search failed", map[string]interface{}{"error": err.Error()})
			a.send(msg.Channel, msg.ChatID, "❌ Error buscando el evento.", nil)
			return
		}
		if ev == nil {
			a.send(msg.Channel, msg.ChatID,
				fmt.Sprintf("⚠️ No encontré ningún evento próximo que coincida con '%s'.", req.Summary), nil)
			return
		}
		s.Pending = &session.PendingAction{Kind: req.Action, Summary: ev.Summary, TargetID: ev.ID}
		a.send(msg.Channel, msg.ChatID,
			fmt.Sprintf("🗑️ **Confirmar Borrar Evento:**\n\n📝 %s\n🕒 %s\n\n(Sí/No)",
				ev.Summary, ev.Start.In(a.loc).Format("02/01 15:04")),
			[]string{"Sí", "No"})

	case gateway.ActionCreateTask:
		s.Pending = &session.PendingAction{Kind: req.Action, Summary: req.Summary, StartTime: req.StartTime}
		a.send(msg.Channel, msg.ChatID,
			fmt.Sprintf("📋 **Confirmar Crear Tarea:**\n\n📝 %s\n\n(Sí/No)", req.Summary),
			[]string{"Sí", "No"})

	case gateway.ActionDeleteTask:
		if a.tasks == nil {
			a.send(msg.Channel, msg.ChatID, "No tengo las tareas configuradas.", nil)
			return
		}
		task, err := a.tasks.FindTask(ctx, req.Summary)
		if err != nil {
			logger.ErrorCF("assistant", "task search failed", map[string]interface{}{"error": err.Error()})
			a.send(msg.Channel, msg.ChatID, "❌ Error buscando la tarea.", nil)
			return
		}
		if task == nil {
			a.send(msg.Channel, msg.ChatID,
				fmt.Sprintf("⚠️ No encontré ninguna tarea pendiente que coincida con '%s'.", req.Summary), nil)
			return
		}
		s.Pending = &session.PendingAction{Kind: req.Action, Summary: task.Title, TargetID: task.ID, ListID: task.ListID}
		a.send(msg.Channel, msg.ChatID,
			fmt.Sprintf("🗑️ **Confirmar Borrar Tarea:**\n\n📝 %s\n\n(Sí/No)", task.Title),
			[]string{"Sí", "No"})
	}
}

func (a *Assistant) handleBreakdown(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string) {
	steps := a.gw.Decompose(ctx, text)
	reply := "🧩 **Vamos paso a paso:**\n\n" + strings.Join(steps, "\n") +
		"\n\nArrancá por el 1. Nada más."
	a.smartSend(msg, s, reply)
	s.AppendExchange(text, reply)
	a.logInteraction(ctx, msg, text, reply, gateway.LaneBreakdown, gateway.Context{})
}

func (a *Assistant) converse(ctx context.Context, msg bus.InboundMessage, s *session.Session, text string, lane gateway.Lane) {
	var extra gateway.Context
	if lane == gateway.LaneConsultant {
		extra = a.gatherContext(ctx)
	}

	// Casual stays stateless: no context, no history, and the exchange is
	// not recorded.
	var history []gateway.Turn
	if lane != gateway.LaneCasual {
		history = s.History()
	}

	reply, err := a.gw.Respond(ctx, text, extra, history)
	if err != nil {
		logger.ErrorCF("assistant", "respond failed", map[string]interface{}{"error": err.Error()})
		a.send(msg.Channel, msg.ChatID, "⚠️ Ando saturado. Probá de nuevo en unos minutos.", nil)
		return
	}

	a.smartSend(msg, s, reply)
	if lane != gateway.LaneCasual {
		s.AppendExchange(text, reply)
	}
	a.logInteraction(ctx, msg, text, reply, lane, extra)
}

// gatherContext pulls whatever sources respond in time. Failures degrade to
// an empty field, never to a user-visible error.
func (a *Assistant) gatherContext(ctx context.Context) gateway.Context {
	var out gateway.Context
	fetchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if a.bio != nil {
		if m, err := a.bio.TodayMetrics(fetchCtx); err == nil {
			out.Biometrics = m
		}
	}
	if a.cal != nil {
		if agenda, err := a.cal.Agenda(fetchCtx, 7); err == nil {
			out.Agenda = agenda
		}
	}
	if a.tasks != nil {
		if list, err := a.tasks.PendingList(fetchCtx); err == nil {
			out.Tasks = list
		}
	}
	return out
}

// --- Smart response pipeline ---

// smartSend strips directives, splits the reply into bubbles and sends the
// first batch. Leftover bubbles wait in the session behind a "Leer más"
// button; embedded buttons only appear once all text is out.
func (a *Assistant) smartSend(msg bus.InboundMessage, s *session.Session, reply string) {
	if clean, minutes, label, ok := timers.ParseTimerTag(reply); ok {
		if a.timers != nil {
			a.timers.Set(msg.Channel, msg.ChatID, minutes, label)
		}
		reply = clean
	}

	clean, def := format.ExtractButtons(reply)
	bubbles := a.splitter.SplitText(clean)
	if len(bubbles) == 0 {
		return
	}

	batch, remaining := a.splitter.NextBatch(bubbles)
	s.Remaining = remaining
	if len(remaining) > 0 {
		s.FinalButtons = def
		a.sendBatch(msg, batch, []string{readMoreLabel})
		return
	}
	s.FinalButtons = ""
	a.sendBatch(msg, batch, format.ParseButtonDef(def))
}

func (a *Assistant) continuePagination(msg bus.InboundMessage, s *session.Session) {
	if len(s.Remaining) == 0 {
		a.send(msg.Channel, msg.ChatID, "No hay más contenido.", nil)
		return
	}

	batch, remaining := a.splitter.NextBatch(s.Remaining)
	s.Remaining = remaining
	if len(remaining) > 0 {
		a.sendBatch(msg, batch, []string{readMoreLabel})
		return
	}
	def := s.FinalButtons
	s.FinalButtons = ""
	a.sendBatch(msg, batch, format.ParseButtonDef(def))
}

func (a *Assistant) sendBatch(msg bus.InboundMessage, batch []string, lastButtons []string) {
	for i, bubble := range batch {
		if i == len(batch)-1 {
			a.send(msg.Channel, msg.ChatID, bubble, lastButtons)
		} else {
			a.send(msg.Channel, msg.ChatID, bubble, nil)
		}
	}
}

// --- Interaction log ---

func (a *Assistant) logInteraction(ctx context.Context, msg bus.InboundMessage, userText, reply string, lane gateway.Lane, extra gateway.Context) {
	if a.interactions == nil {
		return
	}
	_, err := a.interactions.Log(ctx, interactions.Record{
		UserID:        userKey(msg),
		Channel:       msg.Channel,
		Lane:          string(lane),
		UserMessage:   userText,
		BotResponse:   reply,
		HasBiometrics: extra.Biometrics != nil,
		HasCalendar:   extra.Agenda != "",
		HasTasks:      extra.Tasks != "",
	})
	if err != nil {
		logger.WarnCF("assistant", "interaction log failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
