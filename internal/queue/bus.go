package queue

import "context"

// Bus delivers commands and events. Commands have exactly one handler;
// events may have none or many.
type Bus interface {
	DispatchCommand(ctx context.Context, cmd Message) error
	PublishEvent(ctx context.Context, ev Message) error
}

// DeadLetter is a message that exhausted its retries or failed
// permanently.
type DeadLetter struct {
	Type       string
	Body       []byte
	Transport  string
	RetryCount int
	Err        error
}
