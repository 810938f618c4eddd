package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arielsz/jarvisz/pkg/logger"
	"github.com/arielsz/jarvisz/pkg/providers"
)

const maxContextChars = 2000

// Gateway wraps the LLM backends behind the operations the assistant needs:
// classify, extract, respond, analyze, decompose.
type Gateway struct {
	chat      providers.LLMProvider
	breakdown providers.LLMProvider
	loc       *time.Location
	kbPath    string

	// now is swappable in tests.
	now func() time.Time
}

func New(chat, breakdown providers.LLMProvider, loc *time.Location, kbPath string) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{
		chat:      chat,
		breakdown: breakdown,
		loc:       loc,
		kbPath:    kbPath,
		now:       time.Now,
	}
}

const classifyPrompt = `Sos el despachador de JARVISZ, un asistente personal.
Clasificá el mensaje del usuario en UNO de estos destinos:

- "casual": charla liviana, saludos, comentarios sin pedido concreto.
- "management": pedidos de agendar, borrar, crear o consultar eventos del calendario o tareas pendientes.
- "breakdown": pide ayuda para arrancar o desglosar una tarea que lo abruma.
- "consultant": consultas sobre su estado, energía, prioridades o que necesitan contexto personal.

FORMATO JSON RESPUESTA:
{"destination": "..."}

Solo JSON.`

// Classify picks the lane for a raw message. It never fails: any parse
// problem or unknown destination falls open to the consultant lane, which is
// the one lane that always produces a meaningful answer.
func (g *Gateway) Classify(ctx context.Context, text string) Lane {
	raw, err := g.chat.Complete(ctx, []providers.Message{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: text},
	}, providers.CompleteOptions{Temperature: 0.1, MaxTokens: 64})
	if err != nil {
		logger.WarnCF("gateway", "Classification call failed, defaulting to consultant", map[string]interface{}{
			"error": err.Error(),
		})
		return LaneConsultant
	}

	var payload struct {
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &payload); err != nil {
		return LaneConsultant
	}

	switch Lane(strings.ToLower(strings.TrimSpace(payload.Destination))) {
	case LaneCasual:
		return LaneCasual
	case LaneManagement:
		return LaneManagement
	case LaneBreakdown:
		return LaneBreakdown
	case LaneConsultant:
		return LaneConsultant
	}
	return LaneConsultant
}

func extractPrompt(now time.Time) string {
	return fmt.Sprintf(`Sos el modulo de gestión de JARVISZ.
HOY: %s

Tu tarea es clasificar la intención y extraer datos en JSON.

ACCIONES POSIBLES:
- "create_event": Agendar reunion/turno/evento en calendario.
- "delete_event": Borrar/Cancelar un evento del calendario.
- "create_task": Crear una tarea/pendiente/recordatorio.
- "delete_task": Borrar/Tachar una tarea.
- "read_calendar": Consultar la agenda (solo lectura).
- "read_tasks": Consultar tareas pendientes (solo lectura).

FORMATO JSON RESPUESTA:
{
    "action": "...",
    "summary": "Titulo del evento o tarea (o texto de búsqueda para borrar)",
    "start_time": "ISO8601 si aplica"
}

Solo JSON.`, now.Format(time.RFC3339))
}

// ExtractIntent turns a management-lane message into a typed ActionRequest.
// Missing required fields yield ErrExtraction rather than a half-filled
// request.
func (g *Gateway) ExtractIntent(ctx context.Context, text string, now time.Time) (ActionRequest, error) {
	raw, err := g.chat.Complete(ctx, []providers.Message{
		{Role: "system", Content: extractPrompt(now.In(g.loc))},
		{Role: "user", Content: text},
	}, providers.CompleteOptions{Temperature: 0.1, MaxTokens: 256})
	if err != nil {
		return ActionRequest{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var payload struct {
		Action    string `json:"action"`
		Summary   string `json:"summary"`
		StartTime string `json:"start_time"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &payload); err != nil {
		return ActionRequest{}, fmt.Errorf("%w: malformed payload", ErrExtraction)
	}

	req := ActionRequest{
		Action:    ActionKind(strings.ToLower(strings.TrimSpace(payload.Action))),
		Summary:   strings.TrimSpace(payload.Summary),
		StartTime: strings.TrimSpace(payload.StartTime),
	}

	switch req.Action {
	case ActionReadCalendar, ActionReadTasks:
		return req, nil
	case ActionCreateEvent:
		if req.Summary == "" || req.StartTime == "" {
			return ActionRequest{}, fmt.Errorf("%w: create_event needs summary and start_time", ErrExtraction)
		}
		return req, nil
	case ActionCreateTask, ActionDeleteEvent, ActionDeleteTask:
		if req.Summary == "" {
			return ActionRequest{}, fmt.Errorf("%w: %s needs a summary", ErrExtraction, req.Action)
		}
		return req, nil
	}
	return ActionRequest{}, fmt.Errorf("%w: unknown action %q", ErrExtraction, payload.Action)
}

var spanishDays = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

func dayPart(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "mañana"
	case hour >= 12 && hour < 19:
		return "tarde"
	default:
		return "noche"
	}
}

func (g *Gateway) temporalContext() string {
	now := g.now().In(g.loc)
	return fmt.Sprintf("FECHA ACTUAL: %s %s (%s)",
		spanishDays[now.Weekday()],
		now.Format("02/01/2006 15:04"),
		dayPart(now.Hour()))
}

func (g *Gateway) knowledgeBase() string {
	if g.kbPath == "" {
		return "Usuario: Ariel."
	}
	data, err := os.ReadFile(g.kbPath)
	if err != nil {
		return "Usuario: Ariel."
	}
	return string(data)
}

func truncateContext(s string) string {
	if len(s) > maxContextChars {
		return s[:maxContextChars] + "... [TRUNCADO POR SEGURIDAD]"
	}
	return s
}

// Respond generates a conversational reply. An empty Context and nil history
// is the cheap casual path; the consultant lane passes both.
func (g *Gateway) Respond(ctx context.Context, userText string, extra Context, history []Turn) (string, error) {
	var sb strings.Builder
	sb.WriteString(g.temporalContext())
	sb.WriteByte('\n')

	if extra.Biometrics != nil {
		m := extra.Biometrics
		sb.WriteString("SALUD (Garmin):\n")
		fmt.Fprintf(&sb, "- Body Battery: %s (Reserva de energía)\n", intOrNA(m.BodyBattery))
		fmt.Fprintf(&sb, "- Estrés Promedio: %s (0-100)\n", intOrNA(m.StressAvg))
		fmt.Fprintf(&sb, "- HR Reposo: %s\n", intOrNA(m.RestingHR))
		fmt.Fprintf(&sb, "- Sueño: %s\n", intOrNA(m.SleepScore))
	}
	if extra.Agenda != "" {
		fmt.Fprintf(&sb, "AGENDA (Próx 7 días): %s\n", truncateContext(extra.Agenda))
	}
	if extra.Tasks != "" {
		fmt.Fprintf(&sb, "TAREAS: %s\n", truncateContext(extra.Tasks))
	}

	systemMessage := fmt.Sprintf(`Sos JARVISZ, el asistente inteligente de Ariel (50 años).

--- TUS REGLAS DE ORO ---
1. **INFORMACIÓN:** Los datos que ves abajo (AGENDA, TAREAS, CONOCIMIENTO) son la **ÚNICA VERDAD**. No inventes nada.
2. **AGENDA:** Si no ves eventos en la lista, decí "No veo nada agendado". No digas "No tengo acceso".
3. **PERSONALIDAD:** Sé directo, usa lenguaje natural argentino ("agendaste", "tenés"). No pidas disculpas todo el tiempo.
4. **INTERACCIÓN:** Si ofrecés opciones concretas, podés terminar con <<BUTTONS: opción1, opción2>>. Si proponés un bloque de foco, podés agregar <<TIMER: 25m, etiqueta>>.

--- CONOCIMIENTO BASE ---
%s

--- CONTEXTO EN TIEMPO REAL ---
%s

Instrucción Final: Responde la consulta de Ariel basándote EXCLUSIVAMENTE en lo de arriba.`,
		g.knowledgeBase(), sb.String())

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemMessage})
	for _, turn := range history {
		messages = append(messages, providers.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, providers.Message{Role: "user", Content: userText})

	return g.chat.Complete(ctx, messages, providers.CompleteOptions{Temperature: 0.7, MaxTokens: 1024})
}

// AnalyzeCheckin produces the short empathetic read on a finished check-in.
func (g *Gateway) AnalyzeCheckin(ctx context.Context, data map[string]interface{}, userInput string) (string, error) {
	encoded, _ := json.Marshal(data)
	now := g.now().In(g.loc)

	systemMessage := fmt.Sprintf(`Sos JARVISZ, asistente personal para Ariel (50 años, TDAH, Duelo).

INFO ACTUAL: %s %s
DATOS: %s

INSTRUCCIÓN: Analizá el estado de Ariel. Sé empático, breve (2-3 oraciones) y da un consejo accionable basado en su energía (Body Battery/Sueño). Si es de noche, no sugieras actividades energéticas.`,
		spanishDays[now.Weekday()], now.Format("02/01 15:04"), string(encoded))

	return g.chat.Complete(ctx, []providers.Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: userInput},
	}, providers.CompleteOptions{Temperature: 0.7, MaxTokens: 512})
}

const decomposePrompt = `Sos un experto en TDAH y Funciones Ejecutivas.
Tu tarea: Desglosar una tarea intimidante en 5 MICRO-PASOS ridículamente fáciles.

REGLAS:
1. Exactamente 5 pasos.
2. Cada paso debe tener una duración estimada (minutos).
3. El primer paso debe ser "estúpido" de tan fácil (ej: "Ponerse las zapatillas").
4. Output JSON: ["1. Paso (2m)", "2. Paso (5m)", ...]

NO uses markdown, solo array JSON puro.`

// cannedPlan is the deterministic fallback when the model does not honor the
// five-step contract.
var cannedPlan = []string{
	"1. Respirar hondo (1m)",
	"2. Escribir qué querías hacer (1m)",
	"3. Tomar agua (1m)",
	"4. Mirar el primer paso real (1m)",
	"5. Empezar (sin presión) (5m)",
}

// CannedPlan returns a copy of the fixed 5-step fallback plan.
func CannedPlan() []string {
	out := make([]string, len(cannedPlan))
	copy(out, cannedPlan)
	return out
}

// Decompose breaks a task into exactly 5 micro-steps. Any deviation from the
// arity contract falls back to the canned plan instead of propagating
// malformed output.
func (g *Gateway) Decompose(ctx context.Context, task string) []string {
	raw, err := g.breakdown.Complete(ctx, []providers.Message{
		{Role: "system", Content: decomposePrompt},
		{Role: "user", Content: "Tarea: " + task},
	}, providers.CompleteOptions{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		logger.WarnCF("gateway", "Decompose call failed, using canned plan", map[string]interface{}{
			"error": err.Error(),
		})
		return CannedPlan()
	}

	var steps []string
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &steps); err != nil || len(steps) != 5 {
		return CannedPlan()
	}
	for _, s := range steps {
		if strings.TrimSpace(s) == "" {
			return CannedPlan()
		}
	}
	return steps
}

func intOrNA(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}
