package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateHandler - на одну команду можно зарегистрировать только один handler
	ErrDuplicateHandler = errors.New("handler already registered for command")
	// ErrNoHandler - для команды не зарегистрирован handler
	ErrNoHandler = errors.New("no handler registered for command")
)

// Command - запрос на действие. Маршрутизируется по имени команды,
// один handler на команду.
type Command interface {
	CommandName() string
}

// HandlerFunc обрабатывает одну команду и возвращает результат
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Registry - явный реестр command handlers. Все handlers регистрируются
// на старте приложения (app.Build), никакой рефлексии в момент вызова.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register регистрирует handler для команды с указанным именем.
// Повторная регистрация - ошибка конфигурации приложения.
func (r *Registry) Register(name string, h HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

// Send находит handler по имени команды и выполняет его
func (r *Registry) Send(ctx context.Context, cmd Command) (any, error) {
	r.mu.RLock()
	h, exists := r.handlers[cmd.CommandName()]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, cmd.CommandName())
	}
	return h(ctx, cmd)
}
