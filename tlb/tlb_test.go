package tlb

import (
	"testing"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
)

// hardwareEspia verifica que nadie toque los slots sin enmascarar
type hardwareEspia struct {
	*Simulada
	t      *testing.T
	nucleo *Nucleo
}

func (h *hardwareEspia) Escribir(slot int, hi, lo uint32) {
	if !h.nucleo.Enmascaradas() {
		h.t.Errorf("escritura en el slot %d con interrupciones habilitadas", slot)
	}
	h.Simulada.Escribir(slot, hi, lo)
}

func nuevoControlador(t *testing.T, slots int) (*Controlador, *Simulada) {
	t.Helper()
	hw := NuevaSimulada(slots)
	nucleo := &Nucleo{}
	return NuevoControlador(&hardwareEspia{Simulada: hw, t: t, nucleo: nucleo}, nucleo), hw
}

func pagina(n int) direcciones.Virtual {
	return direcciones.Virtual(0x400000 + n*direcciones.TamanioPagina)
}

func TestRoundRobinRecorreTodosLosSlots(t *testing.T) {
	for _, n := range []int{1, 4, 64} {
		rr := NuevoRoundRobin(n)
		vistos := make(map[int]bool)
		for i := 0; i < n; i++ {
			slot := rr.SeleccionarVictima()
			if slot < 0 || slot >= n {
				t.Fatalf("slot %d fuera de rango [0,%d)", slot, n)
			}
			if vistos[slot] {
				t.Fatalf("n=%d: slot %d repetido antes de completar la vuelta", n, slot)
			}
			vistos[slot] = true
		}
		if primero := rr.SeleccionarVictima(); primero != 0 {
			t.Errorf("n=%d: la segunda vuelta empezó en %d", n, primero)
		}
	}
}

func TestInstalarPrefiereSlotsInvalidos(t *testing.T) {
	c, hw := nuevoControlador(t, 4)

	for i := 0; i < 4; i++ {
		if libre := c.Instalar(pagina(i), direcciones.DireccionMarco(10+i), true); !libre {
			t.Fatalf("instalación %d debería usar un slot libre", i)
		}
	}
	if c.Validas() != 4 {
		t.Fatalf("Validas() = %d, want 4", c.Validas())
	}

	if libre := c.Instalar(pagina(4), direcciones.DireccionMarco(20), true); libre {
		t.Errorf("con la TLB llena la instalación tiene que reemplazar")
	}
	// la primera víctima round robin es el slot 0
	if hi, _ := hw.Leer(0); hi != uint32(pagina(4)) {
		t.Errorf("slot 0 tiene hi %#x, want %#x", hi, uint32(pagina(4)))
	}
	if _, _, ok := c.Buscar(pagina(0)); ok {
		t.Errorf("la página pisada sigue traducida")
	}
}

func TestInstalarMismaPaginaReusaSlot(t *testing.T) {
	c, _ := nuevoControlador(t, 2)
	c.Instalar(pagina(1), direcciones.DireccionMarco(3), false)
	c.Instalar(pagina(2), direcciones.DireccionMarco(4), false)

	if libre := c.Instalar(pagina(1), direcciones.DireccionMarco(3), true); !libre {
		t.Errorf("reinstalar una página cargada no debería reemplazar otra")
	}
	if _, escribible, _ := c.Buscar(pagina(1)); !escribible {
		t.Errorf("la reinstalación no actualizó los permisos")
	}
	if c.Validas() != 2 {
		t.Errorf("Validas() = %d, want 2", c.Validas())
	}
}

func TestBuscarDevuelvePermisos(t *testing.T) {
	c, _ := nuevoControlador(t, 8)
	c.Instalar(pagina(0)+0x123, direcciones.DireccionMarco(7), false)

	marco, escribible, ok := c.Buscar(pagina(0) + 0xFFF)
	if !ok {
		t.Fatal("la página no se encontró")
	}
	if marco != direcciones.DireccionMarco(7) {
		t.Errorf("marco = %v, want %v", marco, direcciones.DireccionMarco(7))
	}
	if escribible {
		t.Errorf("la página se instaló de solo lectura")
	}
}

func TestInvalidarYVaciar(t *testing.T) {
	c, hw := nuevoControlador(t, 8)
	for i := 0; i < 3; i++ {
		c.Instalar(pagina(i), direcciones.DireccionMarco(i+1), true)
	}

	if !c.InvalidarDireccion(pagina(1)) {
		t.Fatal("InvalidarDireccion no encontró la página")
	}
	if c.InvalidarDireccion(pagina(1)) {
		t.Errorf("la página ya estaba invalidada")
	}
	if hi, lo := hw.Leer(1); hi != HiInvalido(1) || lo != 0 {
		t.Errorf("slot 1 = (%#x, %#x), want (%#x, 0)", hi, lo, HiInvalido(1))
	}

	c.Vaciar()
	if c.Validas() != 0 {
		t.Errorf("Validas() después de Vaciar = %d", c.Validas())
	}
}

func TestNuevaSimuladaPorDefecto(t *testing.T) {
	hw := NuevaSimulada(0)
	if hw.Cantidad() != CantidadSlots {
		t.Errorf("Cantidad() = %d, want %d", hw.Cantidad(), CantidadSlots)
	}
	for i := 0; i < hw.Cantidad(); i++ {
		if hi, lo := hw.Leer(i); hi != HiInvalido(i) || lo&Valido != 0 {
			t.Fatalf("slot %d no arrancó inválido", i)
		}
	}
}
