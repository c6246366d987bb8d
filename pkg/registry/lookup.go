package registry

import (
	"fmt"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

// Lookup returns a copy of the named module.
func (r *Registry) Lookup(module string) (*endpoints.Module, error) {
	i, ok := r.index[module]
	if !ok {
		return nil, &RegistryError{
			Code:    CodeModuleNotFound,
			Message: fmt.Sprintf("Module not found: %s", module),
		}
	}
	m := r.modules[i].Clone()
	return &m, nil
}

// AllModules returns copies of every module, sorted by name.
func (r *Registry) AllModules() []endpoints.Module {
	out := make([]endpoints.Module, len(r.modules))
	for i, m := range r.modules {
		out[i] = m.Clone()
	}
	return out
}

// Service returns a copy of one service within a module.
func (r *Registry) Service(module, service string) (*endpoints.Service, error) {
	svc, err := r.service(module, service)
	if err != nil {
		return nil, err
	}
	out := svc.Clone()
	return &out, nil
}

// service returns the stored service without copying. Callers must not mutate it.
func (r *Registry) service(module, service string) (*endpoints.Service, error) {
	i, ok := r.index[module]
	if !ok {
		return nil, &RegistryError{
			Code:    CodeModuleNotFound,
			Message: fmt.Sprintf("Module not found: %s", module),
		}
	}
	m := &r.modules[i]
	for si := range m.Services {
		if m.Services[si].Name == service {
			return &m.Services[si], nil
		}
	}
	return nil, &RegistryError{
		Code:    CodeServiceNotFound,
		Message: fmt.Sprintf("Service not found: %s/%s", module, service),
	}
}
