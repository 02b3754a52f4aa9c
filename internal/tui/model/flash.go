package model

import (
	"sync"
	"time"
)

// FlashLevel colors a flash message in the status bar.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashError
)

// Flash is a transient notification shown until it expires.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   FlashLevel
	expires time.Time
}

// Set shows msg at info level for d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.set(msg, FlashInfo, d)
}

// Error shows msg at error level for d.
func (f *Flash) Error(msg string, d time.Duration) {
	f.set(msg, FlashError, d)
}

func (f *Flash) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = time.Now().Add(d)
}

// Get returns the current message, or "" once expired.
func (f *Flash) Get() string {
	msg, _ := f.Current()
	return msg
}

// Current returns the live message with its level.
func (f *Flash) Current() (string, FlashLevel) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", FlashInfo
	}
	return f.message, f.level
}
