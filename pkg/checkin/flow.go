package checkin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arielsz/jarvisz/pkg/gateway"
	"github.com/arielsz/jarvisz/pkg/session"
)

// MoodButtons are the inline options offered during the mood step.
var MoodButtons = []string{
	"😫 1 - Agotado",
	"😕 2 - Bajo",
	"😐 3 - Normal",
	"🙂 4 - Bien",
	"😊 5 - Excelente",
}

// KindButtons let the user pick which check-in to run from /checkin.
var KindButtons = []string{"☀️ Mañana", "🌙 Noche"}

// StartMorning begins the morning flow. When biometrics are available the
// sleep and body battery questions are skipped and the opener includes a
// qualitative read of the numbers.
func StartMorning(metrics *gateway.Metrics) (*session.CheckinState, string, []string) {
	state := &session.CheckinState{Answers: map[string]interface{}{}}

	if metrics != nil && metrics.BodyBattery != nil {
		bb := *metrics.BodyBattery
		state.Answers["body_battery"] = bb
		if metrics.SleepScore != nil {
			state.Answers["sleep_score"] = *metrics.SleepScore
		}

		msg := "☀️ **Hola Ariel, analicé tu estado físico:**\n\n" + panorama(bb)
		if metrics.SleepScore != nil && *metrics.SleepScore < 50 {
			msg += "\n_(El mal sueño de anoche te va a jugar en contra, paciencia con vos mismo)_"
		}
		msg += "\n\nPara cerrar la estrategia del día:\n**¿Cómo te sentís de ánimo?**"

		state.Phase = session.CheckinMood
		return state, msg, MoodButtons
	}

	state.Phase = session.CheckinSleepHours
	return state, "☀️ **Buenos días Ariel**\n\n(No pude leer Garmin hoy)\n¿Cuántas horas dormiste anoche aprox?", nil
}

// StartEvening begins the evening flow.
func StartEvening() (*session.CheckinState, string) {
	state := &session.CheckinState{
		Phase:   session.CheckinDayScore,
		Evening: true,
		Answers: map[string]interface{}{},
	}
	return state, "🌙 **Buenas noches Ariel**\n\nDel 1 al 10, ¿qué tan pesado se sintió el día hoy?"
}

func panorama(bb int) string {
	switch {
	case bb >= 75:
		return "🚀 **Motor al 100%.**\nTu cuerpo recuperó bárbaro. Tenés nafta para encarar las cosas difíciles que venís pateando. Es un día para aprovechar."
	case bb >= 45:
		return "⚖️ **Motor estable.**\nTenés energía pero no es infinita. Si te organizás, llegás bien a la noche. Ojo con el hiperfoco que te drene rápido."
	default:
		return "🔋 **Modo Ahorro de Energía.**\nTu cuerpo está pidiendo tregua. Hoy no es día para héroes. Hacé lo mínimo indispensable y buscá momentos de silencio."
	}
}

// Advance consumes one user message and moves the flow one step. It returns
// the next prompt (or closing message), optional inline buttons, and whether
// the flow finished. On an invalid answer the phase does not move and the
// reply is a correction prompt.
func Advance(state *session.CheckinState, input string) (string, []string, bool) {
	input = strings.TrimSpace(input)

	switch state.Phase {
	case session.CheckinSleepHours:
		hours, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", "."), 64)
		if err != nil {
			return "Ups, pasame solo el número (ej: 7 o 6.5)", nil, false
		}
		state.Answers["sleep_hours"] = hours
		if _, ok := state.Answers["body_battery"]; ok {
			state.Phase = session.CheckinMood
			return "Joya. ¿Cómo te sentís para arrancar?", MoodButtons, false
		}
		state.Phase = session.CheckinBodyBattery
		return "Oki. ¿Y cuánto dice el **Body Battery** ahora? (0-100)", nil, false

	case session.CheckinBodyBattery:
		bb, err := strconv.Atoi(input)
		if err != nil || bb < 0 || bb > 100 {
			return "Solo números enteros porfa (0-100).", nil, false
		}
		state.Answers["body_battery"] = bb
		state.Phase = session.CheckinMood
		return "Bien. ¿Cómo te sentís para arrancar?", MoodButtons, false

	case session.CheckinMood:
		mood, ok := parseMood(input)
		if !ok {
			return "Elegí un mood del 1 al 5.", MoodButtons, false
		}
		state.Answers["mood_score"] = mood
		state.Phase = session.CheckinInteroception
		return fmt.Sprintf("Mood: %d/5 registrado.\n\n🧠 **Ejercicio de Interocepción**\n\n"+
			"Definí tu estado actual en **DOS PALABRAS**:\n"+
			"1. Una emoción (ej: Ansioso, Calmo, Irritado)\n"+
			"2. Una sensación física (ej: Pecho cerrado, Hombros tensos, Ligero)\n\n"+
			"Escribilas juntas.", mood), nil, false

	case session.CheckinInteroception:
		words := strings.Fields(input)
		emotion, sensation := "N/A", "N/A"
		if len(words) > 0 {
			emotion = words[0]
		}
		if len(words) > 1 {
			sensation = strings.Join(words[1:], " ")
		}
		state.Answers["emotion"] = emotion
		state.Answers["sensation"] = sensation
		state.Answers["interoception_raw"] = input
		state.Phase = session.CheckinIdle
		return "", nil, true

	case session.CheckinDayScore:
		score, err := strconv.Atoi(input)
		if err != nil || score < 1 || score > 10 {
			return "Del 1 al 10, número entero.", nil, false
		}
		state.Answers["day_score"] = score
		state.Phase = session.CheckinStress
		return "¿Cuál fue tu nivel de estrés promedio hoy? (0-100, mirá el reloj si querés)", nil, false

	case session.CheckinStress:
		stress, err := strconv.Atoi(input)
		if err != nil || stress < 0 || stress > 100 {
			return "Número entero (0-100).", nil, false
		}
		state.Answers["stress_level"] = stress
		state.Phase = session.CheckinReflection
		return "¿Algo para destacar del día? (Logros, broncas, o un simple 'nada').\nSi escribís 'skip', lo salto.", nil, false

	case session.CheckinReflection:
		if strings.EqualFold(input, "skip") {
			input = ""
		}
		state.Answers["reflection"] = input
		state.Phase = session.CheckinIdle
		return eveningClose(state.Answers), nil, true
	}

	return "", nil, true
}

func parseMood(input string) (int, bool) {
	for _, r := range input {
		if r >= '1' && r <= '5' {
			return int(r - '0'), true
		}
	}
	return 0, false
}

func eveningClose(answers map[string]interface{}) string {
	stress, _ := answers["stress_level"].(int)

	out := "😴 **Check-in nocturno guardado.**\n\n"
	switch {
	case stress > 60:
		out += "🔴 **Día intenso.**\nEl cortisol está alto. Tratá de hacer una bajada a tierra (respiración o ducha) antes de dormir para recuperar mejor."
	case stress < 30:
		out += "🟢 **Día tranquilo.**\nBien ahí protegiendo la energía. A descansar."
	default:
		out += "🟡 **Día normal.**\nHasta mañana Ariel."
	}
	return out
}
