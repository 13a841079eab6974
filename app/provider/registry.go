package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	items := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		items[a.Code()] = a
	}
	return &Registry{adapters: items}
}

func (r *Registry) Get(code string) (Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return adapter, nil
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	return codes
}
