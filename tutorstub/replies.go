package tutorstub

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/degreepathco/advisor/pkg/tutor"
)

// Reply is one canned tutor answer, selected when any of its keywords
// appears in the student's message.
type Reply struct {
	Topic    string   `toml:"topic"`
	Keywords []string `toml:"keywords"`
	Text     string   `toml:"text"`
}

type replyFile struct {
	Fallback string  `toml:"fallback"`
	Replies  []Reply `toml:"reply"`
}

// ReplyBook holds the canned replies the stub streams back. It can be
// seeded with built-in defaults, loaded from a TOML file, and hot-reloaded
// while the stub is running.
type ReplyBook struct {
	mu       sync.RWMutex
	replies  []Reply
	fallback string
}

// DefaultReplyBook returns the built-in reply set, covering the topics the
// advising conversations most commonly hit.
func DefaultReplyBook() *ReplyBook {
	return &ReplyBook{
		fallback: "Hi {name}! I can help with unit prerequisites, study planning, and what to take next. What would you like to know?",
		replies: []Reply{
			{
				Topic:    "prerequisites",
				Keywords: []string{"prerequisite", "prereq", "require", "need to take"},
				Text:     "Prerequisites depend on the unit. Check the unit guide for the exact chain, and remember you must complete them before enrolling. Based on your record you have completed {completed} units so far.",
			},
			{
				Topic:    "enrollment",
				Keywords: []string{"enroll", "enrol", "register", "sign up"},
				Text:     "Enrollment opens through the student portal. Make sure the prerequisites are done and watch for timetable clashes with your current units.",
			},
			{
				Topic:    "study_tips",
				Keywords: []string{"study", "prepare", "learn", "tips"},
				Text:     "Spread the work across the semester: review lecture material weekly, start assignments the week they open, and use the practice exercises before assessments.",
			},
			{
				Topic:    "assignments",
				Keywords: []string{"assignment", "project", "homework", "task"},
				Text:     "Start assignments early and submit drafts if the unit allows it. Most marks are lost to late starts, not hard content.",
			},
			{
				Topic:    "difficulty",
				Keywords: []string{"hard", "difficult", "struggle", "confused"},
				Text:     "If a unit feels hard, go back to its prerequisites and fill the gaps first. Tutors and PAL sessions help more than re-reading slides.",
			},
			{
				Topic:    "career",
				Keywords: []string{"career", "job", "work", "industry"},
				Text:     "Pick electives that build a portfolio: project-heavy units carry more weight with employers than one extra theory unit.",
			},
			{
				Topic:    "schedule",
				Keywords: []string{"schedule", "time", "plan", "week"},
				Text:     "Plan around 8-10 hours per week per unit. Block fixed slots for lectures and keep one catch-up slot free before assessments.",
			},
		},
	}
}

// LoadFile replaces the book's contents with the TOML file at path.
func (b *ReplyBook) LoadFile(path string) error {
	var parsed replyFile
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return fmt.Errorf("decode reply file: %w", err)
	}
	if len(parsed.Replies) == 0 {
		return fmt.Errorf("reply file %s defines no replies", path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = parsed.Replies
	if parsed.Fallback != "" {
		b.fallback = parsed.Fallback
	}
	return nil
}

// Watch reloads the book whenever the file at path changes. It blocks until
// the watcher fails and is meant to run in its own goroutine.
func (b *ReplyBook) Watch(path string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := b.LoadFile(path); err != nil {
				logger.Warn("reply file reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("reply file reloaded", zap.String("path", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("reply file watcher error", zap.Error(err))
		}
	}
}

// Pick selects the reply for a message by keyword match, falling back to a
// generic greeting, and fills in the student placeholders.
func (b *ReplyBook) Pick(message string, profile tutor.StudentProfile) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lower := strings.ToLower(message)
	text := b.fallback
	for _, reply := range b.replies {
		if matchesAny(lower, reply.Keywords) {
			text = reply.Text
			break
		}
	}
	return fillPlaceholders(text, profile)
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func fillPlaceholders(text string, profile tutor.StudentProfile) string {
	name := profile.Name
	if i := strings.IndexByte(name, ' '); i > 0 {
		name = name[:i]
	}
	replacer := strings.NewReplacer(
		"{name}", name,
		"{degree}", profile.Degree,
		"{completed}", fmt.Sprintf("%d", len(profile.CompletedUnits)),
	)
	return replacer.Replace(text)
}
