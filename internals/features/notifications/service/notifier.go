package service

import (
	"context"
	"fmt"
	"strings"
)

// Field is one key/value line of a notice; order is preserved.
type Field struct {
	Key   string
	Value string
}

// Notice is a human-readable admin message.
type Notice struct {
	Title  string
	Fields []Field
}

func (n Notice) With(key string, value any) Notice {
	n.Fields = append(append([]Field(nil), n.Fields...), Field{Key: key, Value: fmt.Sprint(value)})
	return n
}

// PlainText renders the notice as "Title\nkey: value" lines.
func (n Notice) PlainText() string {
	var b strings.Builder
	b.WriteString(n.Title)
	for _, f := range n.Fields {
		b.WriteString("\n")
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Notifier is best effort: implementations log their own failures and never
// block the caller's outcome.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Fanout delivers the notice to every configured channel in turn.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notice) {
	for _, nt := range f {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

type Nop struct{}

func (Nop) Notify(context.Context, Notice) {}
