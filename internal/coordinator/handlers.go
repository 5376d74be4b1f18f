package coordinator

import (
	"encoding/json"

	"github.com/solpbc/hopper/internal/lifecycle"
	"github.com/solpbc/hopper/internal/protocol"
	"github.com/solpbc/hopper/internal/store"
	"github.com/solpbc/hopper/internal/transport"
)

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// handleMessage is the transport.Handlers.OnMessage callback: it parses
// one line and dispatches to the matching handler. Parse errors are
// silently dropped per the transport spec.
func (co *Coordinator) handleMessage(c *transport.Conn, line []byte) {
	env, err := protocol.Decode(line)
	if err != nil {
		co.logActivity("coordinator: dropping malformed message: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypeConnect:
		co.handleConnect(c, env)
	case protocol.TypePing:
		co.reply(c, map[string]any{"type": protocol.TypePong})
	case protocol.TypeLodeList:
		co.handleLodeList(c)
	case protocol.TypeArchivedList:
		co.handleArchivedList(c)
	case protocol.TypeBacklogList:
		co.handleBacklogList(c)
	case protocol.TypeLodeRegister:
		co.handleLodeRegister(c, env)
	case protocol.TypeLodeCreate:
		co.handleLodeCreate(c, env)
	case protocol.TypeLodeSetStage:
		co.handleSetField(env, "stage")
	case protocol.TypeLodeSetState:
		co.handleSetField(env, "state")
	case protocol.TypeLodeSetStatus:
		co.handleSetField(env, "status")
	case protocol.TypeLodeSetTitle:
		co.handleSetField(env, "title")
	case protocol.TypeLodeSetBranch:
		co.handleSetField(env, "branch")
	case protocol.TypeLodeSetAuto:
		co.handleSetField(env, "auto")
	case protocol.TypeLodeSetCodexThread:
		co.handleSetField(env, "codex_thread")
	case protocol.TypeLodeSetClaudeStarted:
		co.handleSetField(env, "claude_started")
	case protocol.TypeLodeResetClaudeStage:
		co.handleSetField(env, "reset_claude_stage")
	case protocol.TypeLodeArchiveReq:
		co.handleLodeArchive(env)
	case protocol.TypeLodePromoteBacklog:
		co.handleLodePromoteBacklog(c, env)
	case protocol.TypeBacklogAdd:
		co.handleBacklogAdd(env)
	case protocol.TypeBacklogRemove:
		co.handleBacklogRemove(env)
	case protocol.TypeBacklogUpdate:
		co.handleBacklogUpdate(env)
	case protocol.TypeBacklogSetQueued:
		co.handleBacklogSetQueued(env)
	case protocol.TypeProjectsReload:
		co.handleProjectsReload()
	default:
		co.logActivity("coordinator: unknown message type %q", env.Type)
	}
}

func (co *Coordinator) handleConnect(c *transport.Conn, env protocol.Envelope) {
	var req protocol.ConnectRequest
	json.Unmarshal(env.Raw, &req)

	resp := map[string]any{
		"type":          "connect",
		"tmux_location": co.tmuxLocation,
	}
	if req.LodeID != nil {
		co.mu.Lock()
		l, err := co.Store.FindActive(*req.LodeID)
		co.mu.Unlock()
		if err == nil {
			resp["lode"] = l
			resp["lode_found"] = true
		} else {
			resp["lode_found"] = false
		}
	}
	co.reply(c, resp)
}

func (co *Coordinator) handleLodeList(c *transport.Conn) {
	co.mu.Lock()
	snapshot := append([]store.Lode(nil), co.Store.Active...)
	co.mu.Unlock()
	co.reply(c, map[string]any{"type": "lode_list", "lodes": snapshot})
}

func (co *Coordinator) handleArchivedList(c *transport.Conn) {
	co.mu.Lock()
	snapshot := append([]store.Lode(nil), co.Store.Archived...)
	co.mu.Unlock()
	co.reply(c, map[string]any{"type": "archived_list", "lodes": snapshot})
}

func (co *Coordinator) handleBacklogList(c *transport.Conn) {
	co.mu.Lock()
	snapshot := append([]store.BacklogItem(nil), co.Store.Backlog...)
	co.mu.Unlock()
	co.reply(c, map[string]any{"type": "backlog_list", "items": snapshot})
}

func (co *Coordinator) handleLodeRegister(c *transport.Conn, env protocol.Envelope) {
	var req protocol.LodeRegisterRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}

	co.mu.Lock()
	evicted := co.registerOwner(req.LodeID, c)
	err := co.Store.Register(req.LodeID, req.TmuxPane, req.PID)
	var snapshot *store.Lode
	if err == nil {
		l, _ := co.Store.FindActive(req.LodeID)
		cp := *l
		snapshot = &cp
	}
	co.mu.Unlock()

	if evicted != nil {
		co.Server.CloseConn(evicted)
	}
	if err != nil {
		co.logActivity("coordinator: lode_register %s failed: %v", req.LodeID, err)
		return
	}
	co.logActivity("lode_register lode=%s", req.LodeID)
	co.broadcast(map[string]any{"type": protocol.TypeLodeUpdated, "lode": snapshot})
}

func (co *Coordinator) handleLodeCreate(c *transport.Conn, env protocol.Envelope) {
	var req protocol.LodeCreateRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}

	co.mu.Lock()
	l, err := co.Store.CreateLode(req.Project, req.Scope, req.Title)
	var snapshot store.Lode
	if err == nil {
		if saveErr := co.Store.SaveActive(); saveErr != nil {
			err = saveErr
		} else {
			snapshot = *l
		}
	}
	co.mu.Unlock()

	if err != nil {
		co.reply(c, map[string]any{"type": "error", "message": err.Error()})
		return
	}
	co.logActivity("lode_create lode=%s project=%s", snapshot.ID, snapshot.Project)
	co.reply(c, map[string]any{"type": protocol.TypeLodeCreated, "lode": snapshot})
	co.broadcast(map[string]any{"type": protocol.TypeLodeCreated, "lode": snapshot})

	if req.Spawn && co.Spawner != nil {
		if err := co.Spawner.Spawn(snapshot.ID, snapshot.Stage, true); err != nil {
			co.logActivity("coordinator: spawn for %s failed: %v", snapshot.ID, err)
		}
	}
}

// handleSetField dispatches the nine lode_set_* one-way mutations.
// Each touches updated_at, persists, and broadcasts lode_updated.
func (co *Coordinator) handleSetField(env protocol.Envelope, field string) {
	var req protocol.LodeFieldRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}

	co.mu.Lock()
	var err error
	switch field {
	case "stage":
		err = co.Store.SetStage(req.LodeID, store.Stage(req.Value))
	case "state":
		err = co.Store.SetState(req.LodeID, req.Value, "")
	case "status":
		err = co.Store.SetStatus(req.LodeID, req.Value)
	case "title":
		err = co.Store.SetTitle(req.LodeID, req.Value)
	case "branch":
		err = co.Store.SetBranch(req.LodeID, req.Value)
	case "auto":
		err = co.Store.SetAuto(req.LodeID, req.Flag)
	case "codex_thread":
		err = co.Store.SetCodexThread(req.LodeID, req.Value)
	case "claude_started":
		err = co.Store.SetClaudeStarted(req.LodeID, store.Stage(req.Value))
	case "reset_claude_stage":
		err = co.Store.ResetClaudeStage(req.LodeID, store.Stage(req.Value))
	}
	var snapshot *store.Lode
	if err == nil {
		l, _ := co.Store.FindActive(req.LodeID)
		if l != nil {
			cp := *l
			snapshot = &cp
		}
	}
	co.mu.Unlock()

	if err != nil {
		co.logActivity("coordinator: %s on %s failed: %v", field, req.LodeID, err)
		return
	}
	if snapshot == nil {
		return
	}
	co.logActivity("%s lode=%s value=%s", field, req.LodeID, req.Value)
	co.broadcast(map[string]any{"type": protocol.TypeLodeUpdated, "lode": snapshot})
}

func (co *Coordinator) handleLodeArchive(env protocol.Envelope) {
	var req protocol.LodeArchiveRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	l, err := co.Store.Archive(req.LodeID)
	var snapshot store.Lode
	if err == nil {
		snapshot = *l
	}
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: archive %s failed: %v", req.LodeID, err)
		return
	}
	co.logActivity("lode_archive lode=%s", req.LodeID)
	co.broadcast(map[string]any{"type": protocol.TypeLodeArchived, "lode": snapshot})
}

func (co *Coordinator) handleLodePromoteBacklog(c *transport.Conn, env protocol.Envelope) {
	var req protocol.LodePromoteBacklogRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	l, err := co.Store.PromoteBacklog(req.ItemID)
	var snapshot store.Lode
	if err == nil {
		snapshot = *l
	}
	co.mu.Unlock()
	if err != nil {
		co.reply(c, map[string]any{"type": "error", "message": err.Error()})
		return
	}
	co.logActivity("lode_promote_backlog item=%s lode=%s", req.ItemID, snapshot.ID)
	co.reply(c, map[string]any{"type": protocol.TypeLodePromoted, "lode": snapshot})
}

func (co *Coordinator) handleBacklogAdd(env protocol.Envelope) {
	var req protocol.BacklogAddRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	item, err := co.Store.AddBacklog(req.Project, req.Description, req.LodeID)
	var snapshot store.BacklogItem
	if err == nil {
		snapshot = *item
	}
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: backlog_add failed: %v", err)
		return
	}
	co.broadcast(map[string]any{"type": protocol.TypeBacklogAdded, "item": snapshot})
}

func (co *Coordinator) handleBacklogRemove(env protocol.Envelope) {
	var req protocol.BacklogRemoveRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	item, err := co.Store.RemoveBacklog(req.ItemID)
	var snapshot store.BacklogItem
	if err == nil {
		snapshot = *item
	}
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: backlog_remove failed: %v", err)
		return
	}
	co.broadcast(map[string]any{"type": protocol.TypeBacklogRemoved, "item": snapshot})
}

func (co *Coordinator) handleBacklogUpdate(env protocol.Envelope) {
	var req protocol.BacklogUpdateRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	item, err := co.Store.UpdateBacklog(req.ItemID, req.Description)
	var snapshot store.BacklogItem
	if err == nil {
		snapshot = *item
	}
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: backlog_update failed: %v", err)
		return
	}
	co.broadcast(map[string]any{"type": "backlog_updated", "item": snapshot})
}

func (co *Coordinator) handleBacklogSetQueued(env protocol.Envelope) {
	var req protocol.BacklogSetQueuedRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		return
	}
	co.mu.Lock()
	item, err := co.Store.SetBacklogQueued(req.ItemID, req.Queued)
	var snapshot store.BacklogItem
	if err == nil {
		snapshot = *item
	}
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: backlog_set_queued failed: %v", err)
		return
	}
	co.broadcast(map[string]any{"type": "backlog_updated", "item": snapshot})
}

func (co *Coordinator) handleProjectsReload() {
	co.mu.Lock()
	err := co.Store.Load()
	co.mu.Unlock()
	if err != nil {
		co.logActivity("coordinator: projects_reload failed: %v", err)
	}
}

// handleDisconnect is the transport.Handlers.OnDisconnect callback: it
// clears ownership, persists, broadcasts, and evaluates auto-advance.
// Per the open-question resolution in the design notes, the spawn
// decision is made here, after the registry has already been updated,
// so it never races a still-open connection.
func (co *Coordinator) handleDisconnect(c *transport.Conn) {
	co.mu.Lock()
	lodeID, owned := co.releaseConn(c)
	if !owned {
		co.mu.Unlock()
		return
	}
	err := co.Store.ClearOwnership(lodeID)
	var snapshot store.Lode
	var spawnStage store.Stage
	var shouldSpawn bool
	if err == nil {
		if l, ferr := co.Store.FindActive(lodeID); ferr == nil {
			snapshot = *l
			spawnStage, shouldSpawn = lifecycle.ShouldAutoAdvance(*l)
		}
	}
	co.mu.Unlock()

	if err != nil {
		co.logActivity("coordinator: clear ownership for %s failed: %v", lodeID, err)
		return
	}
	co.logActivity("disconnect lode=%s", lodeID)
	co.broadcast(map[string]any{"type": protocol.TypeLodeUpdated, "lode": snapshot})

	if shouldSpawn && co.Spawner != nil {
		if err := co.Spawner.Spawn(lodeID, spawnStage, false); err != nil {
			co.logActivity("coordinator: auto-advance spawn for %s stage %s failed: %v", lodeID, spawnStage, err)
		}
	}
}
