package ipt

import "github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"

// Indice resuelve (pid, página) -> marco sobre las entradas de la tabla.
// La tabla llama a Actualizar con su lock tomado cada vez que cambia una entrada.
type Indice interface {
	Buscar(entradas []Entrada, pid direcciones.PID, pagina direcciones.Virtual) (int, bool)
	Actualizar(marco int, anterior, nueva Entrada)
}

// IndiceLineal recorre todos los marcos
type IndiceLineal struct{}

func (IndiceLineal) Buscar(entradas []Entrada, pid direcciones.PID, pagina direcciones.Virtual) (int, bool) {
	for i, e := range entradas {
		if e.PID == pid && e.Vaddr == pagina {
			return i, true
		}
	}
	return -1, false
}

func (IndiceLineal) Actualizar(int, Entrada, Entrada) {}

// IndiceHash mantiene un mapa (pid, página) -> marco
type IndiceHash struct {
	marcos map[Entrada]int
}

func NuevoIndiceHash() *IndiceHash {
	return &IndiceHash{marcos: make(map[Entrada]int)}
}

func (h *IndiceHash) Buscar(_ []Entrada, pid direcciones.PID, pagina direcciones.Virtual) (int, bool) {
	marco, ok := h.marcos[Entrada{PID: pid, Vaddr: pagina}]
	return marco, ok
}

func (h *IndiceHash) Actualizar(marco int, anterior, nueva Entrada) {
	if anterior.PID != direcciones.SinDuenio {
		if m, ok := h.marcos[anterior]; ok && m == marco {
			delete(h.marcos, anterior)
		}
	}
	if nueva.PID != direcciones.SinDuenio {
		h.marcos[nueva] = marco
	}
}

// NuevoIndice elige la implementación por nombre ("lineal" o "hash")
func NuevoIndice(tipo string) Indice {
	if tipo == "hash" {
		return NuevoIndiceHash()
	}
	return IndiceLineal{}
}
