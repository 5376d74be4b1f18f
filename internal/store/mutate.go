package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/solpbc/hopper/internal/idgen"
)

// CreateLode allocates a fresh id and three per-stage session uuids,
// appends the lode to the active list, and returns it. It does not
// persist; callers save after any additional field setup (e.g.
// embedding a backlog snapshot).
func (s *Store) CreateLode(project, scope, title string) (*Lode, error) {
	id, err := s.NewLodeID()
	if err != nil {
		return nil, err
	}
	now := idgen.NowMS()
	l := Lode{
		ID:        id,
		Stage:     StageMill,
		State:     StateNew,
		Status:    "New lode",
		Title:     title,
		Project:   project,
		Scope:     scope,
		Branch:    "hopper-" + id,
		CreatedAt: now,
		UpdatedAt: now,
		Claude: ClaudeSessions{
			Mill:   ClaudeSession{SessionID: uuid.NewString()},
			Refine: ClaudeSession{SessionID: uuid.NewString()},
			Ship:   ClaudeSession{SessionID: uuid.NewString()},
		},
	}
	s.Active = append(s.Active, l)
	return &s.Active[len(s.Active)-1], nil
}

// SetStage advances a lode's stage. Only forward moves in pipeline order
// are allowed, plus the one explicit ship->refine revert (invariant 3).
func (s *Store) SetStage(id string, stage Stage) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	if l.Stage == StageShip && stage == StageRefine {
		// explicit "resume refine" revert, allowed whenever the lode is
		// in ship; a shipped lode cannot go back.
	} else if stage.Before(l.Stage) {
		return fmt.Errorf("store: cannot move lode %s from stage %s back to %s", id, l.Stage, stage)
	}
	l.Stage = stage
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetState sets the free-form state field and touches updated_at.
func (s *Store) SetState(id, state, status string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.State = state
	if status != "" {
		l.Status = status
	}
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetStatus sets the status line only.
func (s *Store) SetStatus(id, status string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Status = status
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetTitle sets the title field.
func (s *Store) SetTitle(id, title string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Title = title
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetBranch sets the branch field.
func (s *Store) SetBranch(id, branch string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Branch = branch
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetAuto sets the auto-advance flag.
func (s *Store) SetAuto(id string, auto bool) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Auto = auto
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetCodexThread sets codex_thread_id once. Per invariant 8 it is
// immutable once non-null; a second attempt to set it is a no-op rather
// than an error, since a reconnecting runner may resend the same value.
func (s *Store) SetCodexThread(id, threadID string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	if l.CodexThreadID != nil {
		return nil
	}
	l.CodexThreadID = &threadID
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// SetClaudeStarted flips claude[stage].started to true.
func (s *Store) SetClaudeStarted(id string, stage Stage) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	sess := l.Claude.Get(stage)
	sess.Started = true
	l.Claude = l.Claude.Set(stage, sess)
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// ResetClaudeStage rotates the stage's session uuid to a fresh one and
// clears started. Only legal while the lode is not actively owned.
func (s *Store) ResetClaudeStage(id string, stage Stage) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	if l.Active {
		return fmt.Errorf("store: cannot reset claude stage while lode %s is active", id)
	}
	l.Claude = l.Claude.Set(stage, ClaudeSession{SessionID: uuid.NewString()})
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// Register claims ownership of a lode for a connection's pane/pid.
func (s *Store) Register(id string, tmuxPane *string, pid *int) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Active = true
	l.TmuxPane = tmuxPane
	l.PID = pid
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// ClearOwnership clears active/tmux_pane/pid for id, as performed on
// disconnect or at startup reconciliation.
func (s *Store) ClearOwnership(id string) error {
	l, err := s.FindActive(id)
	if err != nil {
		return err
	}
	l.Active = false
	l.TmuxPane = nil
	l.PID = nil
	l.Touch(idgen.NowMS())
	return s.SaveActive()
}

// Archive moves a lode from active to archived, persisting both files.
func (s *Store) Archive(id string) (*Lode, error) {
	for i := range s.Active {
		if s.Active[i].ID == id {
			l := s.Active[i]
			s.Active = append(s.Active[:i], s.Active[i+1:]...)
			if err := s.SaveActive(); err != nil {
				return nil, err
			}
			if err := s.AppendArchived(l); err != nil {
				return nil, err
			}
			s.Archived = append(s.Archived, l)
			return &s.Archived[len(s.Archived)-1], nil
		}
	}
	return nil, ErrNoSuchLode
}

// PromoteBacklog creates a lode from a backlog item, embedding a
// snapshot of the item's description, and removes the item from the
// backlog.
func (s *Store) PromoteBacklog(itemID string) (*Lode, error) {
	idx := -1
	for i, it := range s.Backlog {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("store: no such backlog item %s", itemID)
	}
	item := s.Backlog[idx]
	l, err := s.CreateLode(item.Project, item.Description, item.Description)
	if err != nil {
		return nil, err
	}
	l.Backlog = &BacklogSnapshot{ID: item.ID, Description: item.Description}
	if err := s.SaveActive(); err != nil {
		return nil, err
	}
	s.Backlog = append(s.Backlog[:idx], s.Backlog[idx+1:]...)
	if err := s.SaveBacklog(); err != nil {
		return nil, err
	}
	return l, nil
}

// AddBacklog appends a new backlog item.
func (s *Store) AddBacklog(project, description string, lodeID *string) (*BacklogItem, error) {
	id, err := s.NewBacklogID()
	if err != nil {
		return nil, err
	}
	item := BacklogItem{
		ID:          id,
		Project:     project,
		Description: description,
		CreatedAt:   idgen.NowMS(),
		LodeID:      lodeID,
	}
	s.Backlog = append(s.Backlog, item)
	if err := s.SaveBacklog(); err != nil {
		return nil, err
	}
	return &s.Backlog[len(s.Backlog)-1], nil
}

// RemoveBacklog deletes a backlog item by exact id.
func (s *Store) RemoveBacklog(id string) (*BacklogItem, error) {
	for i, it := range s.Backlog {
		if it.ID == id {
			removed := it
			s.Backlog = append(s.Backlog[:i], s.Backlog[i+1:]...)
			if err := s.SaveBacklog(); err != nil {
				return nil, err
			}
			return &removed, nil
		}
	}
	return nil, fmt.Errorf("store: no such backlog item %s", id)
}

// UpdateBacklog replaces a backlog item's description.
func (s *Store) UpdateBacklog(id, description string) (*BacklogItem, error) {
	for i := range s.Backlog {
		if s.Backlog[i].ID == id {
			s.Backlog[i].Description = description
			if err := s.SaveBacklog(); err != nil {
				return nil, err
			}
			return &s.Backlog[i], nil
		}
	}
	return nil, fmt.Errorf("store: no such backlog item %s", id)
}

// SetBacklogQueued sets or clears the queued-behind lode id on an item.
func (s *Store) SetBacklogQueued(id string, queued *string) (*BacklogItem, error) {
	for i := range s.Backlog {
		if s.Backlog[i].ID == id {
			s.Backlog[i].Queued = queued
			if err := s.SaveBacklog(); err != nil {
				return nil, err
			}
			return &s.Backlog[i], nil
		}
	}
	return nil, fmt.Errorf("store: no such backlog item %s", id)
}

// FindBacklogByPrefix returns the unique backlog item whose id starts
// with prefix, or an error if zero or more than one match.
func (s *Store) FindBacklogByPrefix(prefix string) (*BacklogItem, error) {
	var match *BacklogItem
	for i := range s.Backlog {
		if len(s.Backlog[i].ID) >= len(prefix) && s.Backlog[i].ID[:len(prefix)] == prefix {
			if match != nil {
				return nil, fmt.Errorf("store: ambiguous backlog id prefix %q", prefix)
			}
			match = &s.Backlog[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("store: no backlog item matches prefix %q", prefix)
	}
	return match, nil
}
