package vmstats

import (
	"sync"
	"testing"
)

func TestContadoresConcurrentes(t *testing.T) {
	c := NuevosContadores()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Notificar(EscrituraSwap)
			}
		}()
	}
	wg.Wait()

	if c.Valor(EscrituraSwap) != 800 {
		t.Errorf("EscrituraSwap = %d, want 800", c.Valor(EscrituraSwap))
	}
}

func TestVerificarIdentidades(t *testing.T) {
	tests := []struct {
		name    string
		eventos []Evento
		errores int
	}{
		{
			name:    "vacío",
			eventos: nil,
			errores: 0,
		},
		{
			name:    "recarga con slot libre",
			eventos: []Evento{FalloTLB, RecargaTLB, FalloTLBLibre},
			errores: 0,
		},
		{
			name:    "carga desde ELF con reemplazo",
			eventos: []Evento{FalloTLB, FalloPaginaDisco, FalloPaginaELF, FalloTLBReemplazo},
			errores: 0,
		},
		{
			name:    "fallo sin instalación",
			eventos: []Evento{FalloTLB, FalloPaginaCero},
			errores: 1,
		},
		{
			name:    "disco sin origen",
			eventos: []Evento{FalloTLB, FalloPaginaDisco, FalloTLBLibre},
			errores: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NuevosContadores()
			for _, e := range tt.eventos {
				c.Notificar(e)
			}
			if errs := c.Verificar(); len(errs) != tt.errores {
				t.Errorf("Verificar() = %v, want %d errores", errs, tt.errores)
			}
		})
	}
}

func TestInstantanea(t *testing.T) {
	c := NuevosContadores()
	c.Notificar(RecargaTLB)
	c.Notificar(Evento(99))

	r := c.Instantanea()
	if r["TLB Reloads"] != 1 {
		t.Errorf("TLB Reloads = %d, want 1", r["TLB Reloads"])
	}
	if len(r) != int(cantidadEventos) {
		t.Errorf("la instantánea tiene %d claves, want %d", len(r), cantidadEventos)
	}
	if Evento(99).String() != "Evento(99)" {
		t.Errorf("String() de un evento desconocido = %q", Evento(99).String())
	}
}
