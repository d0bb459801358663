package session

import "time"

// scheduleAutoSaveLocked arms the debounced auto-save. Each mutation resets
// the timer, so at most one save is pending and it fires only after the
// interval passes with no further changes. Caller holds the mutex.
func (s *Session) scheduleAutoSaveLocked() {
	if !s.settings.AutoSave || s.conversationID == "" {
		return
	}

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.autoSaveInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.saveTimer = nil
		s.saveLocked()
	})
}

// stopAutoSaveLocked cancels a pending save. Caller holds the mutex.
func (s *Session) stopAutoSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}
