package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/voxelware/aura/internal/agent"
	"github.com/voxelware/aura/internal/conversation"
	"github.com/voxelware/aura/internal/mailbox"
	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/stt"
)

// writeTimeout bounds a single frame write. The mailboxes already decouple
// producers, so a stuck client only stalls its own drain task.
const writeTimeout = 10 * time.Second

// replyTitle is the notification title used for spoken agent replies.
const replyTitle = "Aura"

// client is one WebSocket session. Per the concurrency contract it runs four
// tasks: the read loop (audio + control frames), the notification drain, the
// switch drain, and the transcript drain feeding the coordinator.
type client struct {
	cfg  Config
	deps Deps
	conn *websocket.Conn

	coord    *conversation.Coordinator
	notifs   *mailbox.Mailbox[notificationMessage]
	switches *mailbox.Mailbox[switchMessage]

	// current is the person id from the latest switch notice, as a string.
	current atomic.Value
}

func newClient(cfg Config, deps Deps, conn *websocket.Conn) *client {
	c := &client{
		cfg:      cfg,
		deps:     deps,
		conn:     conn,
		notifs:   mailbox.New[notificationMessage](),
		switches: mailbox.New[switchMessage](),
	}
	c.current.Store(string(vision.NoPerson))
	return c
}

func (c *client) run(ctx context.Context) {
	log := c.deps.Log
	c.deps.Metrics.ActiveClients.Add(ctx, 1)
	defer c.deps.Metrics.ActiveClients.Add(context.WithoutCancel(ctx), -1)
	defer c.conn.CloseNow()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ag, err := c.deps.NewAgent(func(title, message string) {
		c.notifs.Put(notificationMessage{Type: "notification", Title: title, Message: message})
	})
	if err != nil {
		log.Error("agent construction failed", slog.String("error", err.Error()))
		return
	}

	c.coord = conversation.NewCoordinator(ag, c.deps.Summarizer, conversation.Sinks{
		Switch: c.onSwitch,
		Reply: func(text string) {
			c.notifs.Put(notificationMessage{Type: "notification", Title: replyTitle, Message: text})
		},
	}, log, conversation.WithMetrics(c.deps.Metrics))

	session, err := c.deps.STT.StartStream(ctx, c.cfg.Stream)
	if err != nil {
		log.Error("stt session failed", slog.String("error", err.Error()))
		c.writeJSON(ctx, errorMessage{Type: "error", Message: "speech recognition unavailable"})
		return
	}
	defer session.Close()

	if err := c.writeJSON(ctx, connectedMessage{Type: "connected", Message: c.cfg.Greeting}); err != nil {
		return
	}

	subID, sub := c.deps.Bus.Subscribe()
	defer c.deps.Bus.Unsubscribe(subID)

	g, gctx := errgroup.WithContext(ctx)

	// Read loop: binary frames are PCM audio, text frames are control
	// messages. Its exit tears the whole session down.
	g.Go(func() error {
		defer cancel()
		return c.readLoop(gctx, session)
	})

	// Notification drain.
	g.Go(func() error {
		for {
			m, ok := c.notifs.Next(gctx)
			if !ok {
				return nil
			}
			if err := c.writeJSON(gctx, m); err != nil {
				return nil
			}
		}
	})

	// Switch drain.
	g.Go(func() error {
		for {
			m, ok := c.switches.Next(gctx)
			if !ok {
				return nil
			}
			if err := c.writeJSON(gctx, m); err != nil {
				return nil
			}
		}
	})

	// Transcript drain: finalized ASR results feed the coordinator.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case tr, ok := <-session.Finals():
				if !ok {
					return nil
				}
				if tr.Text == "" {
					continue
				}
				c.coord.HandleTranscript(tr.Text, tr.At)
			}
		}
	})

	// Partials are not routed anywhere yet; keep the provider unblocked.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case _, ok := <-session.Partials():
				if !ok {
					return nil
				}
			}
		}
	})

	// Bridge the recognition bus into the coordinator's ordered inbox.
	g.Go(func() error {
		for {
			ev, ok := sub.Next(gctx)
			if !ok {
				return nil
			}
			c.coord.HandleSwitch(ev)
		}
	})

	g.Go(func() error {
		if err := c.coord.Run(gctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Warn("client session error", slog.String("error", err.Error()))
	}
	c.coord.Close()
	c.conn.Close(websocket.StatusNormalClosure, "session closed")
	log.Info("client disconnected")
}

// onSwitch runs on the coordinator goroutine. It records the new person and
// hands the wire frame to the switch drain.
func (c *client) onSwitch(n conversation.SwitchNotice) {
	c.current.Store(string(n.PersonID))
	c.switches.Put(switchMessage{
		Type:       "switch_interaction_person",
		PersonID:   string(n.PersonID),
		PersonName: n.PersonName,
		Blurb:      n.Blurb,
		Recap:      n.Recap,
	})
}

func (c *client) readLoop(ctx context.Context, session stt.SessionHandle) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			// Any read failure means the client is gone.
			return nil
		}
		switch typ {
		case websocket.MessageBinary:
			if err := session.SendAudio(data); err != nil {
				c.deps.Log.Warn("audio forward failed", slog.String("error", err.Error()))
			}
		case websocket.MessageText:
			c.handleControl(ctx, data)
		}
	}
}

// handleControl processes one inbound text frame. Malformed frames produce
// an error frame, never a disconnect.
func (c *client) handleControl(ctx context.Context, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.writeJSON(ctx, errorMessage{Type: "error", Message: "malformed message"})
		return
	}

	switch msg.Type {
	case msgPing:
		c.writeJSON(ctx, pongMessage{Type: "pong"})
	case msgSetInteractionID:
		if msg.InteractionID == "" {
			c.writeJSON(ctx, errorMessage{Type: "error", Message: "interaction_id must not be empty"})
			return
		}
		c.coord.SetConversationID(msg.InteractionID)
	case msgChangeName:
		c.writeJSON(ctx, changeNameResponse{Type: "change_name_response", Success: c.changeName(ctx, msg)})
	default:
		c.writeJSON(ctx, errorMessage{Type: "error", Message: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// changeName renames either the person in view or the one named in the
// request, reusing the agent's name-resolution tool.
func (c *client) changeName(ctx context.Context, msg inboundMessage) bool {
	if c.deps.Directory == nil {
		return false
	}
	args, err := json.Marshal(map[string]string{
		"new_name":    msg.NewName,
		"person_name": msg.PersonName,
	})
	if err != nil {
		return false
	}
	tool := agent.UpdateNameTool{Directory: c.deps.Directory}
	tc := agent.ToolContext{PersonID: vision.PersonID(c.current.Load().(string))}
	if _, err := tool.Invoke(ctx, tc, args); err != nil {
		c.deps.Log.Warn("change_name failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (c *client) writeJSON(ctx context.Context, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.conn, v)
}
