package transcript

import (
	"bytes"
	"encoding/json"
	"strings"

	"ragchat/internal/domain"
)

// TimeLayout is the timestamp layout of the text transcript.
const TimeLayout = "2006-01-02 15:04:05"

// Formatter renders one turn as the bytes appended to a transcript file.
type Formatter interface {
	Format(turn domain.Turn) ([]byte, error)
}

// TextFormatter renders a human-readable block ending in a dashed separator.
type TextFormatter struct{}

func (TextFormatter) Format(turn domain.Turn) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("\n[" + turn.Timestamp.Format(TimeLayout) + "]\n")
	b.WriteString("User: " + turn.User + "\n")
	b.WriteString("Bot: " + turn.Assistant + "\n")
	if len(turn.Sources) > 0 {
		b.WriteString("Sources: " + strings.Join(turn.Sources, ", ") + "\n")
	}
	b.WriteString(strings.Repeat("-", 50) + "\n")
	return b.Bytes(), nil
}

// JSONFormatter renders exactly one JSON object per line.
type JSONFormatter struct{}

func (JSONFormatter) Format(turn domain.Turn) ([]byte, error) {
	if turn.Sources == nil {
		turn.Sources = []string{}
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
