package utils

import (
	"sync"
)

// OptionalMutex is a mutex that can be switched off for allocators whose consumers guarantee
// they are only ever used from one goroutine at a time
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
