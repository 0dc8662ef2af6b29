package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type message struct {
	Title       string
	Accent      string
	QueueName   string
	Position    int
	Wait        string
	CheckInCode string
	StatusURL   string
}

const (
	accentBlue  = "linear-gradient(135deg, #667eea 0%, #764ba2 100%)"
	accentGreen = "linear-gradient(135deg, #4caf50 0%, #45a049 100%)"
)

// Notifier собирает письма трёх видов и передаёт их диспетчеру.
type Notifier struct {
	dispatch Dispatcher
	appURL   string
	log      *slog.Logger
	pages    map[string]*template.Template
}

func NewNotifier(d Dispatcher, appURL string, log *slog.Logger) (*Notifier, error) {
	n := &Notifier{
		dispatch: d,
		appURL:   strings.TrimRight(appURL, "/"),
		log:      log,
		pages:    make(map[string]*template.Template),
	}
	for _, name := range []string{"joined", "position", "turn"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		n.pages[name] = t
	}
	return n, nil
}

// FormatWait — «5 minutes», «1 minute».
func FormatWait(minutes int) string {
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// CheckInCode — код для подтверждения на месте: QG + первые 8 символов id очереди + позиция.
func CheckInCode(queueID string, position int) string {
	id := strings.ReplaceAll(queueID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("QG%s%d", strings.ToUpper(id), position)
}

func (n *Notifier) QueueJoined(ctx context.Context, to, queueName string, position, waitMinutes int) {
	wait := FormatWait(waitMinutes)
	n.send(ctx, to, "joined", message{
		Title:     "Queue Confirmation",
		Accent:    accentBlue,
		QueueName: queueName,
		Position:  position,
		Wait:      wait,
		StatusURL: n.appURL + "/my-queue",
	},
		fmt.Sprintf("You've joined %s - Position #%d", queueName, position),
		fmt.Sprintf("You've joined %s! You are position #%d with an estimated wait of %s.", queueName, position, wait),
	)
}

func (n *Notifier) PositionUpdate(ctx context.Context, to, queueName string, position, waitMinutes int) {
	n.send(ctx, to, "position", message{
		Title:     "Queue Update",
		Accent:    accentBlue,
		QueueName: queueName,
		Position:  position,
		Wait:      FormatWait(waitMinutes),
	},
		fmt.Sprintf("Queue Update: You're now #%d in %s", position, queueName),
		fmt.Sprintf("Queue update: You're now #%d in %s", position, queueName),
	)
}

func (n *Notifier) YourTurn(ctx context.Context, to, queueName, checkInCode string) {
	n.send(ctx, to, "turn", message{
		Title:       "It's Your Turn!",
		Accent:      accentGreen,
		QueueName:   queueName,
		CheckInCode: checkInCode,
	},
		fmt.Sprintf("It's your turn! - %s", queueName),
		fmt.Sprintf("It's your turn at %s! Check-in code: %s", queueName, checkInCode),
	)
}

func (n *Notifier) send(ctx context.Context, to, page string, m message, subject, text string) {
	to = strings.TrimSpace(to)
	if to == "" {
		return
	}
	var buf bytes.Buffer
	if err := n.pages[page].ExecuteTemplate(&buf, "layout", m); err != nil {
		n.log.Error("Ошибка шаблона письма", "template", page, "error", err)
		return
	}
	n.dispatch.Dispatch(ctx, Email{To: []string{to}, Subject: subject, HTML: buf.String(), Text: text})
}
