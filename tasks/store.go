// Package tasks keeps the ordered task list and mirrors it into one
// persisted key-value slot.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spdeepak/offlinecache/kv"
	"golang.org/x/text/unicode/norm"
)

const (
	// SlotKey is the slot holding the JSON task list.
	SlotKey = "pwa-tasks"
	// MaxTextLength is the longest task text accepted, in characters.
	MaxTextLength = 50
)

var (
	ErrEmptyText   = errors.New("task text is empty")
	ErrTextTooLong = errors.New("task text is too long")
)

// Task is one entry of the list. The JSON shape is the persisted format.
type Task struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store holds the task list in memory and rewrites the slot after every change.
// The in-memory list stays authoritative when a write fails.
type Store struct {
	slot      kv.Store
	messenger Messenger
	now       func() time.Time

	mu     sync.Mutex
	tasks  []Task
	lastID int64
}

// Option configures a Store.
type Option func(*Store)

// WithMessenger sets where user-facing messages go.
func WithMessenger(m Messenger) Option {
	return func(s *Store) {
		if m != nil {
			s.messenger = m
		}
	}
}

// WithClock replaces time.Now for IDs and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads the task list from slot. A missing or unreadable list starts empty.
func Open(ctx context.Context, slot kv.Store, opts ...Option) *Store {
	s := &Store{
		slot:      slot,
		messenger: discardMessenger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tasks = s.load(ctx)
	for _, task := range s.tasks {
		s.lastID = max(s.lastID, task.ID)
	}
	return s
}

func (s *Store) load(ctx context.Context) []Task {
	raw, ok, err := s.slot.Get(ctx, SlotKey)
	if err != nil {
		slog.Error("Error loading tasks", slog.Any("error", err))
		return nil
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		slog.Error("Error loading tasks", slog.Any("error", err))
		return nil
	}
	return tasks
}

// save must be called with s.mu held.
func (s *Store) save(ctx context.Context) {
	tasks := s.tasks
	if tasks == nil {
		tasks = []Task{}
	}
	raw, err := json.Marshal(tasks)
	if err == nil {
		err = s.slot.Put(ctx, SlotKey, raw)
	}
	if err != nil {
		slog.Error("Error saving tasks", slog.Any("error", err))
		s.messenger.Show(KindError, "Error saving tasks!")
	}
}

// Add validates text and puts a new task at the top of the list.
func (s *Store) Add(ctx context.Context, text string) (Task, error) {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		s.messenger.Show(KindError, "Please enter a task!")
		return Task{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		s.messenger.Show(KindError, "Task is too long! Maximum 50 characters.")
		return Task{}, ErrTextTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	task := Task{ID: id, Text: text, CreatedAt: now}
	s.tasks = slices.Insert(s.tasks, 0, task)
	s.save(ctx)
	s.messenger.Show(KindSuccess, "Task added successfully!")
	return task, nil
}

// Toggle flips the completion flag of the task with id.
func (s *Store) Toggle(ctx context.Context, id int64) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.tasks, func(t Task) bool { return t.ID == id })
	if i < 0 {
		return Task{}, false
	}
	s.tasks[i].Completed = !s.tasks[i].Completed
	s.save(ctx)
	return s.tasks[i], true
}

// Delete removes the task with id.
func (s *Store) Delete(ctx context.Context, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.tasks)
	s.tasks = slices.DeleteFunc(s.tasks, func(t Task) bool { return t.ID == id })
	if len(s.tasks) == before {
		return false
	}
	s.save(ctx)
	s.messenger.Show(KindInfo, "Task deleted!")
	return true
}

// Clear removes every task and persists the empty list. It reports whether
// there was anything to clear.
func (s *Store) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		s.messenger.Show(KindInfo, "No tasks to clear!")
		return false
	}
	s.tasks = []Task{}
	s.save(ctx)
	s.messenger.Show(KindInfo, "All tasks cleared!")
	return true
}

// List returns the tasks, newest first.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks)
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
