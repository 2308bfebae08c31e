package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	catalogx "github.com/velaline/booking-agent/agent/catalog"
	contractx "github.com/velaline/booking-agent/agent/contract"
	promptx "github.com/velaline/booking-agent/agent/prompt"
	statex "github.com/velaline/booking-agent/agent/state"
	toolx "github.com/velaline/booking-agent/agent/tool"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

const (
	defaultMaxToolRounds = 3

	// Shown when the model invocation itself fails; the human always gets
	// a reply, never a raw error.
	fallbackReply = "Sorry, something went wrong on my side just now. Could you try that again in a moment?"
)

// Engine drives one conversation turn end to end: load context, classify
// intent, call the model with the role's toolset, execute requested tools,
// obtain the final reply, persist. Turns for one session run strictly
// sequentially; turns for different sessions are independent.
type Engine struct {
	store      statex.Store
	chatModel  einomodel.ToolCallingChatModel
	catalog    *catalogx.Resolver
	exec       *toolx.Executor
	prompts    promptx.PromptSet
	summarizer contractx.Summarizer

	graphRunner compose.Runnable[TurnInput, TurnOutput]

	maxToolRounds int
	now           func() time.Time

	locksMu      sync.Mutex
	sessionLocks map[string]*sessionLock
}

// sessionLock serializes turns for one session. Entries are refcounted and
// removed once no turn holds or waits on them, so sessionLocks stays
// bounded by in-flight sessions rather than every session id ever seen.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type TurnInput struct {
	SessionID string
	Role      contractx.Role
	Text      string
}

type TurnOutput struct {
	Reply string
}

type Option func(*Engine)

func WithSummarizer(s contractx.Summarizer) Option {
	return func(e *Engine) {
		e.summarizer = s
	}
}

func WithMaxToolRounds(rounds int) Option {
	return func(e *Engine) {
		if rounds > 0 {
			e.maxToolRounds = rounds
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(
	store statex.Store,
	chatModel einomodel.ToolCallingChatModel,
	catalog *catalogx.Resolver,
	exec *toolx.Executor,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog resolver is required")
	}
	if exec == nil {
		return nil, errors.New("tool executor is required")
	}

	e := &Engine{
		store:         store,
		chatModel:     chatModel,
		catalog:       catalog,
		exec:          exec,
		prompts:       promptx.LoadPromptSet(),
		maxToolRounds: defaultMaxToolRounds,
		now:           time.Now,
		sessionLocks:  make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	graphRunner, err := e.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.graphRunner = graphRunner

	return e, nil
}

// HandleTurn processes one inbound user message and returns the reply. The
// role only matters on first contact; an existing session keeps the role
// it was created with.
func (e *Engine) HandleTurn(ctx context.Context, sessionID string, role contractx.Role, text string) (string, error) {
	lock := e.acquireSession(sessionID)
	defer e.releaseSession(sessionID, lock)

	out, err := e.graphRunner.Invoke(ctx, TurnInput{
		SessionID: sessionID,
		Role:      role,
		Text:      text,
	})
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// ResetSession clears identity, memory, and history, preserving the role.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) (*statex.SessionContext, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	lock := e.acquireSession(sessionID)
	defer e.releaseSession(sessionID, lock)

	now := e.now()
	role := contractx.RoleCustomer
	if existing, err := e.store.Load(ctx, sessionID); err == nil {
		role = existing.Role
	} else if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}

	fresh := statex.NewSessionContext(sessionID, role, now)
	if err := e.store.Save(ctx, fresh); err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}
	return fresh, nil
}

func (e *Engine) acquireSession(sessionID string) *sessionLock {
	e.locksMu.Lock()
	lock, ok := e.sessionLocks[sessionID]
	if !ok {
		lock = &sessionLock{}
		e.sessionLocks[sessionID] = lock
	}
	lock.refs++
	e.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *Engine) releaseSession(sessionID string, lock *sessionLock) {
	lock.mu.Unlock()

	e.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.sessionLocks, sessionID)
	}
	e.locksMu.Unlock()
}
