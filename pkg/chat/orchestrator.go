package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/ai"
	"github.com/scribehub/scribe/pkg/search"
)

// Completion watchdog timing: warm up, then sample the buffer; two equal
// consecutive samples or the hard cap force completion when the model
// stream's own termination never arrives.
const (
	watchdogWarmup   = 3 * time.Second
	watchdogInterval = 2 * time.Second
	watchdogCap      = 28 * time.Second
)

// referenceSnippetLimit truncates each retrieved passage in the context
// block.
const referenceSnippetLimit = 300

// Reference block delimiters in the system prompt.
const (
	refStart = "<<REF>>"
	refEnd   = "<<END>>"
)

// Searcher retrieves permissioned context passages.
type Searcher interface {
	SearchWithPermission(ctx context.Context, query, username string, topK int) ([]search.Result, error)
}

// Streamer streams model completions.
type Streamer interface {
	StreamChat(ctx context.Context, messages []ai.Message, onDelta func(content string)) error
}

// SendFunc delivers one frame to the client. Implementations must be safe
// for concurrent use.
type SendFunc func(frame any) error

// Frame payloads.
type chunkFrame struct {
	Chunk string `json:"chunk"`
}

type completionFrame struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type stopAckFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Config tunes the orchestrator.
type Config struct {
	// SystemPrompt holds the deployment rules prepended to every request.
	SystemPrompt string

	// NoReferencesLine replaces the reference block content when retrieval
	// returns nothing.
	NoReferencesLine string

	// TopK is the number of passages retrieved per user message.
	TopK int
}

// Orchestrator runs one grounded exchange per user message.
type Orchestrator struct {
	searcher Searcher
	llm      Streamer
	conv     *ConversationStore
	cfg      Config
}

// NewOrchestrator wires the orchestrator. Zero config fields default to
// topK 5 and a standard no-references line.
func NewOrchestrator(searcher Searcher, llm Streamer, conv *ConversationStore, cfg Config) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.NoReferencesLine == "" {
		cfg.NoReferencesLine = "(No references were retrieved this round)"
	}
	return &Orchestrator{searcher: searcher, llm: llm, conv: conv, cfg: cfg}
}

// Respond handles one user message on the session: retrieve context, stream
// the model response as chunk frames, then emit a completion frame and
// persist the exchange. Deltas arriving while the session's cancel flag is
// set are discarded.
func (o *Orchestrator) Respond(ctx context.Context, sess *Session, username, message string, send SendFunc) {
	sess.ResetBuffer()

	conversationID, err := o.conv.CurrentConversationID(ctx, username)
	if err != nil {
		o.fail(ctx, sess, send, err)
		return
	}

	history, err := o.conv.History(ctx, conversationID)
	if err != nil {
		o.fail(ctx, sess, send, err)
		return
	}

	messages := o.buildMessages(ctx, username, message, history)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- o.llm.StreamChat(streamCtx, messages, func(content string) {
			if sess.AppendChunk(content) {
				if err := send(chunkFrame{Chunk: content}); err != nil {
					logger.WarnCtx(ctx, "failed to send chunk frame", logger.KeyError, err)
				}
			}
		})
	}()

	// The stream's own termination is authoritative; the watchdog only
	// covers a wedged upstream.
	select {
	case err := <-streamDone:
		if err != nil {
			o.fail(ctx, sess, send, err)
			return
		}
	case <-o.watchdog(ctx, sess):
		logger.WarnCtx(ctx, "completion forced by watchdog",
			logger.KeySessionID, sess.ID)
		cancelStream()
	}

	response := sess.BufferString()
	o.complete(ctx, sess, send, "finished")

	now := time.Now().Format(time.RFC3339)
	err = o.conv.Append(ctx, conversationID,
		Message{Role: ai.RoleUser, Content: message, Timestamp: now},
		Message{Role: ai.RoleAssistant, Content: response, Timestamp: now},
	)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to persist conversation",
			logger.KeyConversationID, conversationID, logger.KeyError, err)
	}
	sess.ResetBuffer()
}

// buildMessages composes the model request: system rules plus the delimited
// reference block, prior history, then the user message.
func (o *Orchestrator) buildMessages(ctx context.Context, username, message string, history []Message) []ai.Message {
	contextBlock := o.retrieveContext(ctx, username, message)

	var sys strings.Builder
	if o.cfg.SystemPrompt != "" {
		sys.WriteString(o.cfg.SystemPrompt)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextBlock != "" {
		sys.WriteString(contextBlock)
	} else {
		sys.WriteString(o.cfg.NoReferencesLine)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: sys.String()})
	for _, h := range history {
		messages = append(messages, ai.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: message})
	return messages
}

// retrieveContext renders the top hits as "[i] (filename) <text>\n" lines.
// Retrieval failure degrades to an ungrounded exchange.
func (o *Orchestrator) retrieveContext(ctx context.Context, username, message string) string {
	results, err := o.searcher.SearchWithPermission(ctx, message, username, o.cfg.TopK)
	if err != nil {
		logger.WarnCtx(ctx, "context retrieval failed, answering ungrounded",
			logger.KeyError, err)
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i >= o.cfg.TopK {
			break
		}
		text := r.TextContent
		if len([]rune(text)) > referenceSnippetLimit {
			text = string([]rune(text)[:referenceSnippetLimit])
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, r.FileName, text)
	}
	return b.String()
}

// watchdog fires when the buffer stops growing or the hard cap elapses.
func (o *Orchestrator) watchdog(ctx context.Context, sess *Session) <-chan struct{} {
	fired := make(chan struct{})
	go func() {
		deadline := time.NewTimer(watchdogCap)
		defer deadline.Stop()

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			close(fired)
			return
		case <-time.After(watchdogWarmup):
		}

		ticker := time.NewTicker(watchdogInterval)
		defer ticker.Stop()
		prev := -1

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				close(fired)
				return
			case <-ticker.C:
				cur := sess.BufferLen()
				if cur == prev {
					close(fired)
					return
				}
				prev = cur
			}
		}
	}()
	return fired
}

func (o *Orchestrator) complete(ctx context.Context, sess *Session, send SendFunc, status string) {
	err := send(completionFrame{
		Type:      "completion",
		Status:    status,
		Message:   "response complete",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		logger.WarnCtx(ctx, "failed to send completion frame", logger.KeyError, err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, sess *Session, send SendFunc, cause error) {
	logger.ErrorCtx(ctx, "chat exchange failed",
		logger.KeySessionID, sess.ID, logger.KeyError, cause)
	if err := send(errorFrame{Error: cause.Error()}); err != nil {
		logger.WarnCtx(ctx, "failed to send error frame", logger.KeyError, err)
	}
	o.complete(ctx, sess, send, "error")
	sess.ResetBuffer()
}

// AcknowledgeStop emits the stop acknowledgement frame.
func AcknowledgeStop(send SendFunc) error {
	return send(stopAckFrame{
		Type:      "stop",
		Message:   "generation stopped",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
